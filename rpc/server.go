// Package rpc exposes shell state over HTTP using the path-based endpoint
// layout a Tezos-style node presents: /version, /monitor/bootstrapped,
// /chains/:id/..., /injection/operation, /helpers/{baking,endorsing}_rights.
package rpc

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"
)

// Server is the shell's HTTP RPC endpoint: request-limiting, timeouts and
// bearer-auth wrap a path+method router instead of a single JSON-RPC
// method field.
type Server struct {
	handler   *Handler
	addr      string
	authToken string // empty → no auth required
	srv       *http.Server
	ln        net.Listener
}

// NewServer creates a Server on addr. If authToken is non-empty, every
// request must carry a matching "Authorization: Bearer <token>" header.
func NewServer(addr string, handler *Handler, authToken string) *Server {
	s := &Server{handler: handler, addr: addr, authToken: authToken}
	mux := http.NewServeMux()
	mux.HandleFunc("/version", s.wrap(handler.Version))
	mux.HandleFunc("/monitor/bootstrapped", s.wrap(handler.MonitorBootstrapped))
	mux.HandleFunc("/chains/", s.wrap(handler.ChainRoute))
	mux.HandleFunc("/injection/operation", s.wrap(handler.InjectOperation))
	mux.HandleFunc("/helpers/baking_rights", s.wrap(handler.BakingRights))
	mux.HandleFunc("/helpers/endorsing_rights", s.wrap(handler.EndorsingRights))
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start binds the port synchronously (so callers know immediately if binding
// fails) then serves requests in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[rpc] server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listener's address. Useful when started on ":0".
func (s *Server) Addr() net.Addr {
	if s.ln != nil {
		return s.ln.Addr()
	}
	return nil
}

// Stop gracefully shuts down the HTTP server, waiting up to 5 seconds for
// in-flight requests to complete.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// wrap applies the shared auth check and body-size limit around a route
// handler so every endpoint gets the same protections without repeating
// them per route.
func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			if r.Header.Get("Authorization") != "Bearer "+s.authToken {
				w.WriteHeader(http.StatusUnauthorized)
				writeJSON(w, errBody("unauthorized"))
				return
			}
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1*1024*1024)
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[rpc] write response: %v", err)
	}
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
