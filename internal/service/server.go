package service

import (
	"fmt"
	"net/http"

	"depot/internal/sigv4"
)

// Server wires the classifier, the storage engine, and the response
// builder into a single http.Handler, grounded on the teacher's
// pkg/core.Server.
type Server struct {
	cfg     Config
	handler http.Handler
}

// NewServer builds a Server from cfg. An unconfigured Auth engine defaults
// to AnonymousEngine (spec.md §4.2: auth is only enforced when a
// credential is configured).
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("service: a storage engine is required")
	}
	if cfg.Auth == nil {
		cfg.Auth = sigv4.AnonymousEngine{}
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = 5 * 1024 * 1024 * 1024
	}

	s := &Server{cfg: cfg}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the assembled http.Handler, ready to be passed to an
// http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
