package broadcaster

import (
	"context"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zachfi/zkit/pkg/tracing"
)

// Source provides the bytes of every track. The broadcaster never writes to it.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Exists(id string) bool
	Open(id string, offset int64) (io.ReadCloser, error)
}

// Catalog is the ordered list of track identifiers driving the broadcast. The
// loop reads it only between tracks, so neither Rescan nor SetOrder touches the
// track currently on air.
type Catalog struct {
	mu         sync.RWMutex
	tracks     []string
	source     Source
	extensions map[string]struct{}
}

func NewCatalog(source Source, extensions []string) *Catalog {
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}

	return &Catalog{
		source:     source,
		extensions: exts,
	}
}

// Rescan re-lists the source and replaces the catalog membership with the
// supported tracks. Tracks still present keep their current order; new ones
// follow in lexical order. The first scan is therefore lexical.
func (c *Catalog) Rescan(ctx context.Context) error {
	ctx, span := otel.Tracer("broadcaster").Start(ctx, "Catalog.Rescan")

	ids, err := c.source.List(ctx)
	if err != nil {
		return tracing.ErrHandler(span, errors.Wrap(err, "failed to list tracks"), "rescan failed", nil)
	}

	tracks := make([]string, 0, len(ids))
	for _, id := range ids {
		if c.supported(id) {
			tracks = append(tracks, id)
		}
	}
	sort.Strings(tracks)

	c.mu.Lock()
	tracks = merge(c.tracks, tracks)
	c.tracks = tracks
	c.mu.Unlock()

	span.AddEvent("listed", trace.WithAttributes(
		attribute.Int("files", len(ids)),
		attribute.Int("tracks", len(tracks)),
	))

	return tracing.ErrHandler(span, nil, "", nil)
}

// merge keeps the entries of current found in listed, in their current order,
// and appends the rest of listed.
func merge(current, listed []string) []string {
	present := make(map[string]bool, len(listed))
	for _, id := range listed {
		present[id] = false
	}

	out := make([]string, 0, len(listed))
	for _, id := range current {
		if kept, ok := present[id]; ok && !kept {
			present[id] = true
			out = append(out, id)
		}
	}
	for _, id := range listed {
		if !present[id] {
			out = append(out, id)
		}
	}
	return out
}

// SetOrder replaces the order wholesale. Every entry must already be in the
// catalog and appear once; tracks left out of newOrder drop out of rotation
// until the next rescan brings them back at the end.
func (c *Catalog) SetOrder(newOrder []string) error {
	if newOrder == nil {
		return errors.Wrap(ErrInvalidOrder, "order is null")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	known := make(map[string]struct{}, len(c.tracks))
	for _, id := range c.tracks {
		known[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(newOrder))
	for _, id := range newOrder {
		if _, ok := known[id]; !ok {
			return errors.Wrapf(ErrInvalidOrder, "unknown track %q", id)
		}
		if _, ok := seen[id]; ok {
			return errors.Wrapf(ErrInvalidOrder, "duplicate track %q", id)
		}
		seen[id] = struct{}{}
	}

	c.tracks = append([]string(nil), newOrder...)
	return nil
}

func (c *Catalog) Get(index int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if index < 0 || index >= len(c.tracks) {
		return "", false
	}
	return c.tracks[index], true
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tracks)
}

// IndexOf returns the position of id, or -1.
func (c *Catalog) IndexOf(id string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i, t := range c.tracks {
		if t == id {
			return i
		}
	}
	return -1
}

// Tracks returns a copy of the current order.
func (c *Catalog) Tracks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.tracks...)
}

func (c *Catalog) supported(id string) bool {
	_, ok := c.extensions[strings.ToLower(filepath.Ext(id))]
	return ok
}
