// Package api exposes the operational HTTP surface: liveness, indexing
// status and a recent-pairs feed for dashboards.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"zigscan/internal/chain"
	"zigscan/internal/eventbus"
	"zigscan/internal/models"
	"zigscan/internal/repository"

	"github.com/gorilla/mux"
)

const recentPairsMax = 50

// Server serves the ops endpoints.
type Server struct {
	repo   *repository.Repository
	client *chain.Client
	port   int

	mu     sync.RWMutex
	recent []models.PairCreated

	http *http.Server
}

func NewServer(repo *repository.Repository, client *chain.Client, port int) *Server {
	if port <= 0 {
		port = 8080
	}
	return &Server{repo: repo, client: client, port: port}
}

// WatchPairs subscribes the server to pair_created events so /pairs/recent
// reflects live creations.
func (s *Server) WatchPairs(ctx context.Context, bus *eventbus.Bus) {
	ch := make(chan eventbus.Event, 64)
	bus.Subscribe("pair_created", ch)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-ch:
				var pc models.PairCreated
				if err := json.Unmarshal([]byte(evt.Payload), &pc); err != nil {
					continue
				}
				s.mu.Lock()
				s.recent = append([]models.PairCreated{pc}, s.recent...)
				if len(s.recent) > recentPairsMax {
					s.recent = s.recent[:recentPairsMax]
				}
				s.mu.Unlock()
			}
		}
	}()
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/pairs/recent", s.handleRecentPairs).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
	}()

	log.Printf("[API] listening on :%d", s.port)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[API] server stopped: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	last, ok, err := s.repo.GetLastHeight(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	out := map[string]interface{}{
		"indexed_height": last,
		"has_checkpoint": ok,
	}
	if tip, err := s.client.Status(ctx); err == nil {
		out["tip_height"] = tip
		out["lag"] = tip - last
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRecentPairs(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	pairs := make([]models.PairCreated, len(s.recent))
	copy(pairs, s.recent)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, pairs)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
