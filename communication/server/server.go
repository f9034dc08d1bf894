package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"mcot/experiments/metrics"
	"mcot/tree"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// maxRounds bounds the round history kept for /rounds.
const maxRounds = 1000

// Server exposes read-only progress of a search over HTTP.
type Server struct {
	tree     *tree.Tree
	rounds   []metrics.RoundMetric
	gatherer prometheus.Gatherer
	mutex    sync.RWMutex
}

func NewServer(gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{gatherer: gatherer}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /rounds", s.handleRounds)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			log.Warn().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().Msgf("serving stats on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mutex.RLock()
	t := s.tree
	s.mutex.RUnlock()
	if t == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, t.Stats())
}

func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	s.mutex.RLock()
	rounds := append([]metrics.RoundMetric{}, s.rounds...)
	s.mutex.RUnlock()
	writeJSON(w, rounds)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

func (s *Server) UpdateTree(t *tree.Tree) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.tree = t
	s.rounds = nil
}

func (s *Server) UpdateRound(m metrics.RoundMetric) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.rounds = append(s.rounds, m)
	if len(s.rounds) > maxRounds {
		s.rounds = s.rounds[len(s.rounds)-maxRounds:]
	}
}
