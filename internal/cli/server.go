package cli

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/roach88/atlas/internal/engine"
	"github.com/roach88/atlas/internal/incident"
	"github.com/roach88/atlas/internal/metrics"
	"github.com/roach88/atlas/internal/route"
)

// engineView is the part of the engine the status server reads and drives.
type engineView interface {
	Incidents() []incident.Incident
	Routes() []route.Feature
	Route(assetID string) (route.Summary, bool)
	Status() engine.Status
	Select(assetID string) bool
	ClearSelection() bool
}

// surfaceView exposes the rendered map state.
type surfaceView interface {
	MarkersGeoJSON() *geojson.FeatureCollection
	Highlighted() string
	Viewport() (orb.Bound, bool)
}

// Selection is the current highlight and viewport.
type Selection struct {
	Highlighted string     `json:"highlighted"`
	Viewport    *orb.Bound `json:"viewport,omitempty"`
}

type apiError struct {
	Error string `json:"error"`
}

// newServer builds the local HTTP status surface.
func newServer(eng engineView, surface surfaceView, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /incidents", func(w http.ResponseWriter, r *http.Request) {
		list := eng.Incidents()
		if list == nil {
			list = []incident.Incident{}
		}
		writeJSON(w, http.StatusOK, list)
	})
	mux.HandleFunc("GET /incidents.geojson", func(w http.ResponseWriter, r *http.Request) {
		writeGeoJSON(w, surface.MarkersGeoJSON())
	})
	mux.HandleFunc("GET /routes.geojson", func(w http.ResponseWriter, r *http.Request) {
		writeGeoJSON(w, route.Collection(eng.Routes()))
	})
	mux.HandleFunc("GET /routes/{assetId}", func(w http.ResponseWriter, r *http.Request) {
		s, ok := eng.Route(r.PathValue("assetId"))
		if !ok {
			writeJSON(w, http.StatusNotFound, apiError{Error: "unknown route"})
			return
		}
		writeJSON(w, http.StatusOK, s)
	})
	mux.HandleFunc("POST /routes/{assetId}/select", func(w http.ResponseWriter, r *http.Request) {
		s, ok := eng.Route(r.PathValue("assetId"))
		if !ok {
			writeJSON(w, http.StatusNotFound, apiError{Error: "unknown route"})
			return
		}
		if !eng.Select(s.AssetID) {
			writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "engine stopped"})
			return
		}
		writeJSON(w, http.StatusAccepted, s)
	})
	mux.HandleFunc("GET /selection", func(w http.ResponseWriter, r *http.Request) {
		sel := Selection{Highlighted: surface.Highlighted()}
		if b, ok := surface.Viewport(); ok {
			sel.Viewport = &b
		}
		writeJSON(w, http.StatusOK, sel)
	})
	mux.HandleFunc("DELETE /selection", func(w http.ResponseWriter, r *http.Request) {
		if !eng.ClearSelection() {
			writeJSON(w, http.StatusServiceUnavailable, apiError{Error: "engine stopped"})
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, eng.Status())
	})
	mux.Handle("GET /metrics", metrics.Handler())

	return accessLog(logger)(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeGeoJSON(w http.ResponseWriter, fc *geojson.FeatureCollection) {
	data, err := fc.MarshalJSON()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(data)
}

// statusWriter records the status code and body size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// accessLog logs one debug line per request.
func accessLog(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			l.Debug("http access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
				"ip", r.RemoteAddr,
			)
		})
	}
}
