package api

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/zachfi/radiogo/modules/broadcaster"
	"github.com/zachfi/radiogo/pkg/icy"
	"github.com/zachfi/radiogo/pkg/library"
)

const uploadField = "flacFiles"

type message struct {
	Message string   `json:"message"`
	Files   []string `json:"files,omitempty"`
}

type orderRequest struct {
	NewOrder []string `json:"newOrder"`
}

type statusResponse struct {
	Playing   bool      `json:"playing"`
	Track     string    `json:"track,omitempty"`
	Index     int       `json:"index"`
	StartedAt time.Time `json:"started_at"`
	Bytes     int64     `json:"bytes"`
	Listeners int       `json:"listeners"`
	Tracks    int       `json:"tracks"`
}

// stream sends the broadcast to one listener until it disconnects.
func (a *API) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", a.cfg.ContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("icy-name", a.cfg.StationName)

	var out io.Writer = newFlushWriter(w)
	framing := "plain"
	if r.Header.Get("Icy-MetaData") == "1" && a.cfg.IcyMetaint > 0 {
		iw, err := icy.NewWriter(out, a.cfg.IcyMetaint, a.title)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("icy-metaint", strconv.Itoa(a.cfg.IcyMetaint))
		out = iw
		framing = "icy"
	}
	a.metrics.streams.WithLabelValues(framing).Inc()

	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	sess := a.radio.Join(out)
	a.logger.Debug("stream opened", "session", sess.ID, "remote", r.RemoteAddr, "framing", framing)
	if err := sess.Run(r.Context()); err != nil {
		a.logger.Warn("stream ended", "session", sess.ID, "remote", r.RemoteAddr, "err", err)
	}
}

// title is the ICY stream title: the track on air without its extension.
func (a *API) title() string {
	pos, ok := a.radio.NowPlaying()
	if !ok {
		return a.cfg.StationName
	}
	return strings.TrimSuffix(pos.Track, filepath.Ext(pos.Track))
}

func (a *API) playlist(w http.ResponseWriter, r *http.Request) {
	if err := a.radio.RescanCatalog(r.Context()); err != nil {
		a.logger.Error("playlist rescan failed", "err", err)
		http.Error(w, "failed to read playlist", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, a.radio.Tracks())
}

func (a *API) order(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewOrder == nil {
		http.Error(w, "Invalid playlist order data", http.StatusBadRequest)
		return
	}

	if err := a.radio.SetOrder(req.NewOrder); err != nil {
		if errors.Is(err, broadcaster.ErrInvalidOrder) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		a.logger.Error("playlist order update failed", "err", err)
		http.Error(w, "failed to update playlist order", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, message{Message: "Playlist order updated"})
}

func (a *API) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxUploadSize)

	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expected a multipart upload", http.StatusBadRequest)
		return
	}

	var saved []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			a.uploadFailed(w, r, saved, "", err)
			return
		}

		name, err := a.savePart(part)
		_ = part.Close()
		if err != nil {
			a.uploadFailed(w, r, saved, part.FileName(), err)
			return
		}
		if name != "" {
			a.metrics.uploads.WithLabelValues("ok").Inc()
			saved = append(saved, name)
		}
	}

	if len(saved) == 0 {
		http.Error(w, "no files in field "+uploadField, http.StatusBadRequest)
		return
	}

	a.rescan(r)
	writeJSON(w, http.StatusOK, message{Message: "Files uploaded successfully!", Files: saved})
}

// uploadFailed answers a failed upload. Files saved before the failure stay in
// the library, so the catalog still picks them up.
func (a *API) uploadFailed(w http.ResponseWriter, r *http.Request, saved []string, file string, err error) {
	a.metrics.uploads.WithLabelValues("error").Inc()
	if len(saved) > 0 {
		a.rescan(r)
	}

	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		a.logger.Warn("upload too large", "file", file, "limit", tooBig.Limit, "saved", saved)
		http.Error(w, "upload exceeds "+strconv.FormatInt(tooBig.Limit, 10)+" bytes", http.StatusRequestEntityTooLarge)
	case errors.Is(err, library.ErrInvalidName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case file == "":
		a.logger.Warn("upload failed", "err", err, "saved", saved)
		http.Error(w, "failed to read upload", http.StatusBadRequest)
	default:
		a.logger.Warn("upload failed", "file", file, "err", err, "saved", saved)
		http.Error(w, "failed to save "+file, http.StatusInternalServerError)
	}
}

func (a *API) rescan(r *http.Request) {
	if err := a.radio.RescanCatalog(r.Context()); err != nil {
		a.logger.Error("rescan after upload failed", "err", err)
	}
}

// savePart stores one uploaded file and returns its name. Parts that are not
// files of the upload field are skipped.
func (a *API) savePart(part *multipart.Part) (string, error) {
	if part.FormName() != uploadField || part.FileName() == "" {
		return "", nil
	}

	name := part.FileName()
	n, err := a.store.Save(name, part)
	if err != nil {
		return "", err
	}
	a.metrics.uploadBytes.Add(float64(n))

	return name, nil
}

func (a *API) status(w http.ResponseWriter, _ *http.Request) {
	pos, playing := a.radio.NowPlaying()

	resp := statusResponse{
		Playing:   playing,
		Listeners: a.radio.Listeners(),
		Tracks:    len(a.radio.Tracks()),
	}
	if playing {
		resp.Track = pos.Track
		resp.Index = pos.Index
		resp.StartedAt = pos.StartedAt
		resp.Bytes = pos.Bytes
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) playlistM3U(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "audio/x-mpegurl")
	_, _ = io.WriteString(w, icy.M3U(a.cfg.StationName, streamURL(r)))
}

func (a *API) playlistPLS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "audio/x-scpls")
	_, _ = io.WriteString(w, icy.PLS(a.cfg.StationName, streamURL(r)))
}

// streamURL is the absolute /stream URL as seen by the requesting client.
func streamURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + "/stream"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding error can only be dropped.
	_ = json.NewEncoder(w).Encode(v)
}

// flushWriter pushes every write to the client so listeners are not held
// back by response buffering.
type flushWriter struct {
	w io.Writer
	f http.Flusher
}

func newFlushWriter(w http.ResponseWriter) *flushWriter {
	f, _ := w.(http.Flusher)
	return &flushWriter{w: w, f: f}
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.f != nil && n > 0 {
		fw.f.Flush()
	}
	return n, err
}
