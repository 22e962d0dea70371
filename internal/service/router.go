package service

import "net/http"

// routes assembles the path-style route table with http.ServeMux's
// PathValue-based patterns, grounded on the teacher's pkg/core/router.go.
// Virtual-hosted-style requests are rewritten to path-style by
// virtualHostedRewrite before they reach this mux, so every pattern below
// only ever needs to handle "/{bucket}" and "/{bucket}/{key...}".
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("HEAD /{$}", s.handleRoot)

	mux.HandleFunc("PUT /{bucket}", s.handleCreateBucket)
	mux.HandleFunc("HEAD /{bucket}", s.handleHeadBucket)
	mux.HandleFunc("DELETE /{bucket}", s.handleDeleteBucket)
	mux.HandleFunc("GET /{bucket}", s.handleBucketGet)
	mux.HandleFunc("POST /{bucket}", s.handleBucketPost)

	mux.HandleFunc("PUT /{bucket}/{key...}", s.handleObjectPut)
	mux.HandleFunc("GET /{bucket}/{key...}", s.handleObjectGet)
	mux.HandleFunc("HEAD /{bucket}/{key...}", s.handleHeadObject)
	mux.HandleFunc("DELETE /{bucket}/{key...}", s.handleObjectDelete)
	mux.HandleFunc("POST /{bucket}/{key...}", s.handleObjectPost)

	var handler http.Handler = mux
	handler = s.requireAuthentication(handler)
	handler = s.virtualHostedRewrite(handler)
	handler = slashFix(handler)
	handler = logRequest(handler)
	handler = recoverer(handler)
	return handler
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.listBuckets(w, r)
}
