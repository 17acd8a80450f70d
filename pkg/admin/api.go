// Package admin exposes a read-only HTTP API with pool and lease
// statistics for operators.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"dhcpd-go/pkg/ipam"
	"dhcpd-go/pkg/lease"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Server serves the admin API.
type Server struct {
	ipm    *ipam.Manager
	leases *lease.Store
	logger zerolog.Logger
	http   *http.Server
}

// NewServer creates an admin server bound to listen.
func NewServer(listen string, ipm *ipam.Manager, leases *lease.Store, logger zerolog.Logger) *Server {
	s := &Server{
		ipm:    ipm,
		leases: leases,
		logger: logger.With().Str("component", "admin").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/leases", s.handleLeases).Methods(http.MethodGet)
	api.HandleFunc("/subnets", s.handleSubnets).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         listen,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown. It blocks, so callers run it in a
// goroutine.
func (s *Server) Start() {
	s.logger.Info().Str("listen", s.http.Addr).Msg("Admin API listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error().Err(err).Msg("Admin API failed")
	}
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.http.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"pools":  s.ipm.Stats(),
		"leases": s.leases.Stats(),
	})
}

type leaseEntry struct {
	MAC string `json:"mac"`
	lease.Lease
}

func (s *Server) handleLeases(w http.ResponseWriter, r *http.Request) {
	all := s.leases.All()
	out := make([]leaseEntry, 0, len(all))
	for mac, l := range all {
		out = append(out, leaseEntry{MAC: mac.String(), Lease: l})
	}
	s.writeJSON(w, out)
}

type subnetEntry struct {
	Name    string   `json:"name"`
	Network string   `json:"network"`
	Gateway string   `json:"gateway,omitempty"`
	DNS     []string `json:"dns,omitempty"`
}

func (s *Server) handleSubnets(w http.ResponseWriter, r *http.Request) {
	subs := s.ipm.Subnets()
	out := make([]subnetEntry, 0, len(subs))
	for _, sub := range subs {
		e := subnetEntry{Name: sub.Name(), Network: sub.Network().String()}
		if sub.Gateway().IsValid() {
			e.Gateway = sub.Gateway().String()
		}
		for _, d := range sub.DNS() {
			e.DNS = append(e.DNS, d.String())
		}
		out = append(out, e)
	}
	s.writeJSON(w, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
