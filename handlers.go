package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/kwv/probemesh/mesh"
)

// scannerResponse is the /scanners/{id} payload
type scannerResponse struct {
	ScannerID  int                 `json:"scannerId"`
	Parent     int                 `json:"parent"`
	Position   mesh.Point3         `json:"position"`
	Transform  mesh.RigidTransform `json:"transform"` // scanner frame to global frame
	Alignment  *mesh.Alignment     `json:"alignment,omitempty"`
	ProbeCount int                 `json:"probeCount"`
}

// newHTTPServer creates the HTTP router with all endpoints
func newHTTPServer(stateTracker *mesh.StateTracker, config *mesh.Config, metrics *mesh.Metrics, store *mesh.Store, hub *frameHub) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasFrame  bool      `json:"hasFrame"`
			Scanners  int       `json:"scanners"`
			LastError string    `json:"lastError,omitempty"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasFrame:  stateTracker.HasFrame(),
			Scanners:  len(stateTracker.Scanners()),
		}
		if err := stateTracker.LastError(); err != nil {
			status.LastError = err.Error()
		}
		writeJSON(w, status)
	}).Methods(http.MethodGet)

	r.HandleFunc("/frame", func(w http.ResponseWriter, r *http.Request) {
		frame, ok := requireFrame(w, stateTracker)
		if !ok {
			return
		}
		writeJSON(w, frame.Summary())
	}).Methods(http.MethodGet)

	r.HandleFunc("/frame/landmarks", func(w http.ResponseWriter, r *http.Request) {
		frame, ok := requireFrame(w, stateTracker)
		if !ok {
			return
		}
		writeJSON(w, frame.Landmarks)
	}).Methods(http.MethodGet)

	r.HandleFunc("/scanners/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(mux.Vars(r)["id"])
		if err != nil {
			http.Error(w, "Scanner id must be an integer", http.StatusBadRequest)
			return
		}
		snap, ok := stateTracker.Snapshot()
		if !ok {
			http.Error(w, "No frame solved yet", http.StatusServiceUnavailable)
			return
		}
		pos, ok := snap.Frame.Position(id)
		if !ok {
			http.Error(w, "Unknown scanner", http.StatusNotFound)
			return
		}

		resp := scannerResponse{
			ScannerID: pos.ScannerID,
			Parent:    pos.Parent,
			Position:  pos.Position,
		}
		resp.Transform, _ = snap.Frame.Transform(id)
		if a, ok := snap.Graph.Alignment(id); ok {
			resp.Alignment = &a
		}
		if s, ok := snap.Scanner(id); ok {
			resp.ProbeCount = len(s.Probes)
		}
		writeJSON(w, resp)
	}).Methods(http.MethodGet)

	r.HandleFunc("/frame.geojson", func(w http.ResponseWriter, r *http.Request) {
		frame, ok := requireFrame(w, stateTracker)
		if !ok {
			return
		}
		data, err := mesh.FrameToGeoJSON(frame).MarshalJSON()
		if err != nil {
			log.Printf("[HTTP] Error encoding GeoJSON: %v", err)
			http.Error(w, "Failed to encode GeoJSON", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(data); err != nil {
			log.Printf("[HTTP] Error writing GeoJSON: %v", err)
		}
	}).Methods(http.MethodGet)

	r.HandleFunc("/frame.png", func(w http.ResponseWriter, r *http.Request) {
		frame, ok := requireFrame(w, stateTracker)
		if !ok {
			return
		}
		renderer := mesh.NewFrameRenderer(frame)
		if config != nil {
			renderer.ApplyConfig(config.Render)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.WritePNG(w); err != nil {
			log.Printf("[HTTP] Error encoding frame PNG: %v", err)
		}
	}).Methods(http.MethodGet)

	r.HandleFunc("/frame.svg", func(w http.ResponseWriter, r *http.Request) {
		frame, ok := requireFrame(w, stateTracker)
		if !ok {
			return
		}
		renderer := mesh.NewVectorRenderer(frame)
		if config != nil {
			renderer.ApplyConfig(config.Render)
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := renderer.RenderToSVG(w); err != nil {
			log.Printf("[HTTP] Error encoding frame SVG: %v", err)
		}
	}).Methods(http.MethodGet)

	r.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "Run history disabled", http.StatusNotFound)
			return
		}
		limit := 20
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}
		runs, err := store.ListRuns(r.Context(), limit)
		if err != nil {
			log.Printf("[HTTP] Error listing runs: %v", err)
			http.Error(w, "Failed to list runs", http.StatusInternalServerError)
			return
		}
		writeJSON(w, runs)
	}).Methods(http.MethodGet)

	if hub != nil {
		r.HandleFunc("/ws", hub.serveWS(stateTracker)).Methods(http.MethodGet)
	}

	if metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	return r
}

// requireFrame writes 503 and returns false until a frame has been solved
func requireFrame(w http.ResponseWriter, stateTracker *mesh.StateTracker) (*mesh.GlobalFrame, bool) {
	frame := stateTracker.Frame()
	if frame == nil {
		http.Error(w, "No frame solved yet", http.StatusServiceUnavailable)
		return nil, false
	}
	return frame, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding response: %v", err)
	}
}
