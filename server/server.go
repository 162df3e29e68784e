// Package server exposes a key-set download service: the packed
// archive is built off the request goroutine and streamed to clients
// over a websocket as indexed chunk messages, the same message
// contract the in-process transfer worker uses.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/proxyre/prebundle/bundle"
	"github.com/proxyre/prebundle/engine"
)

// KeySetSource provides the key set served to clients. A live engine
// implements it through EngineSource; a key directory through a
// SourceFunc over a store.
type KeySetSource interface {
	Collect() (*bundle.Bundle, error)
}

// SourceFunc adapts a function to a KeySetSource.
type SourceFunc func() (*bundle.Bundle, error)

func (f SourceFunc) Collect() (*bundle.Bundle, error) { return f() }

// EngineSource serves the key set of a live engine.
type EngineSource struct {
	Eng    engine.Engine
	Format engine.Format
}

func (s EngineSource) Collect() (*bundle.Bundle, error) {
	return bundle.Collect(s.Eng, s.Format)
}

// Server serves key-set archives over HTTP
type Server struct {
	source     KeySetSource
	archiver   *bundle.Archiver
	config     *Config
	startTime  time.Time
	httpServer *http.Server
}

// Config configures the server
type Config struct {
	Addr      string
	Format    engine.Format
	Names     bundle.FileNames
	ChunkSize int
	Version   string
	Logger    bundle.Logger
}

// New creates a new HTTP server
func New(source KeySetSource, archiver *bundle.Archiver, config *Config) *Server {
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = bundle.DEFAULT_CHUNK_SIZE
	}

	s := &Server{
		source:    source,
		archiver:  archiver,
		config:    config,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus())
	mux.HandleFunc("/keyset", s.handleKeySet())

	s.httpServer = &http.Server{
		Addr:    config.Addr,
		Handler: mux,
	}

	return s
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
