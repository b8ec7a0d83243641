// Package library stores broadcast tracks as plain files in one directory.
package library

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidName is returned for track names that are not a plain file name.
var ErrInvalidName = errors.New("invalid track name")

const tempPattern = ".upload-*.tmp"

// Library is a directory of track files. Track identifiers are file names.
type Library struct {
	dir    string
	logger *slog.Logger
}

var module = "library"

// New creates the library directory if needed.
func New(cfg Config, logger slog.Logger) (*Library, error) {
	if cfg.Dir == "" {
		cfg.Dir = defaultDir
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create library directory")
	}

	return &Library{
		dir:    cfg.Dir,
		logger: logger.With("module", module),
	}, nil
}

// Dir returns the directory backing the library.
func (l *Library) Dir() string {
	return l.dir
}

// List returns the regular files in the library in lexical order. Hidden
// files, which include uploads in progress, are left out.
func (l *Library) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read library directory")
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)

	return ids, nil
}

// Exists reports whether id names a regular file in the library.
func (l *Library) Exists(id string) bool {
	path, err := l.path(id)
	if err != nil {
		return false
	}

	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Open returns the track positioned at offset.
func (l *Library) Open(id string, offset int64) (io.ReadCloser, error) {
	path, err := l.path(id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", id)
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "failed to seek %s to %d", id, offset)
		}
	}

	return f, nil
}

// Save writes r to the library as name, replacing any track of the same
// name. The content becomes visible under name only once it is complete.
func (l *Library) Save(name string, r io.Reader) (int64, error) {
	dest, err := l.path(name)
	if err != nil {
		return 0, err
	}

	f, err := os.CreateTemp(l.dir, tempPattern)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create temp file")
	}
	tempPath := f.Name()

	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tempPath)
		return n, errors.Wrapf(err, "failed to write %s", name)
	}
	if err := f.Sync(); err != nil {
		l.logger.Error("error syncing file", "err", err, "path", tempPath)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tempPath)
		return n, errors.Wrapf(err, "failed to close %s", name)
	}

	if err := l.commitTempFile(tempPath, dest); err != nil {
		return n, err
	}

	l.logger.Info("saved track", "track", name, "size", n)
	return n, nil
}

// commitTempFile moves a finished upload into place.
func (l *Library) commitTempFile(tempPath, destPath string) error {
	if _, err := os.Stat(destPath); err == nil {
		l.logger.Debug("replacing track", "path", destPath)
	} else if !os.IsNotExist(err) {
		_ = os.Remove(tempPath)
		return errors.Wrapf(err, "failed to stat %s", destPath)
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		l.logger.Error("error renaming temp to dest", "err", err, "temp", tempPath, "dest", destPath)
		_ = os.Remove(tempPath)
		return errors.Wrap(err, "failed to commit upload")
	}

	return nil
}

// path maps a track name to its file, refusing anything but a plain name.
func (l *Library) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", errors.Wrapf(ErrInvalidName, "%q", name)
	}

	return filepath.Join(l.dir, name), nil
}
