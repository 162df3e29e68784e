package server

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// StatusResponse is the /status endpoint response
type StatusResponse struct {
	Version       string `json:"version"`
	Format        string `json:"format"`
	UptimeSeconds int    `json:"uptime_seconds"`
	Artifacts     int    `json:"artifacts"`
	BootstrapKeys int    `json:"bootstrap_keys"`
	ChunkSize     int    `json:"chunk_size"`
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Version:       s.config.Version,
			Format:        s.config.Format.String(),
			UptimeSeconds: int(time.Since(s.startTime).Seconds()),
			ChunkSize:     s.config.ChunkSize,
		}

		if b, err := s.source.Collect(); err == nil {
			resp.Artifacts = len(b.EntryNames(s.config.Names))
			resp.BootstrapKeys = len(b.BootstrapPairs)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
