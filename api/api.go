package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"rental-tracker/db"
	"rental-tracker/filter"
	"rental-tracker/models"

	"github.com/gorilla/mux"
)

// Server is the dashboard API. It is the only writer of the curated
// listing fields (favorite, dismissed, notes).
type Server struct {
	store    db.Store
	brokers  []models.Broker
	rules    []filter.Rule
	authUser string
	authPass string
	router   *mux.Router
}

// NewServer creates the API. Basic auth is required when authUser is set.
func NewServer(store db.Store, brokers []models.Broker, rules []filter.Rule, authUser, authPass string) *Server {
	s := &Server{
		store:    store,
		brokers:  brokers,
		rules:    rules,
		authUser: authUser,
		authPass: authPass,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/listings", s.handleListings).Methods(http.MethodGet)
	v1.HandleFunc("/brokers", s.handleBrokers).Methods(http.MethodGet)
	v1.HandleFunc("/searchFilter", s.handleSearchFilter).Methods(http.MethodGet)
	v1.HandleFunc("/favorite", s.handleFavorite).Methods(http.MethodPatch)
	v1.HandleFunc("/dismissed", s.handleDismissed).Methods(http.MethodPatch)
	v1.HandleFunc("/notes", s.handleNotes).Methods(http.MethodPatch)

	if s.authUser != "" {
		s.router.Use(s.basicAuth)
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API listening on %s\n", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.authUser)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.authPass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="rental-tracker"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleListings returns every listing keyed by address
func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	listings, err := s.store.ListListings(r.Context())
	if err != nil {
		log.Printf("Error: failed to list listings: %v\n", err)
		writeError(w, http.StatusInternalServerError, "failed to load listings")
		return
	}

	byAddress := make(map[string]models.Listing, len(listings))
	for _, l := range listings {
		byAddress[l.Address] = l
	}
	writeJSON(w, http.StatusOK, byAddress)
}

func (s *Server) handleBrokers(w http.ResponseWriter, r *http.Request) {
	brokers := append([]models.Broker{}, s.brokers...)
	writeJSON(w, http.StatusOK, brokers)
}

func (s *Server) handleSearchFilter(w http.ResponseWriter, r *http.Request) {
	raw := make([]filter.RawRule, 0, len(s.rules))
	for _, rule := range s.rules {
		raw = append(raw, rule.Raw())
	}
	writeJSON(w, http.StatusOK, raw)
}

type favoriteRequest struct {
	Address    string `json:"address"`
	IsFavorite *bool  `json:"isFavorite"`
}

type dismissedRequest struct {
	Address     string `json:"address"`
	IsDismissed *bool  `json:"isDismissed"`
}

type notesRequest struct {
	Address string  `json:"address"`
	Notes   *string `json:"notes"`
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Address == "" || req.IsFavorite == nil {
		writeError(w, http.StatusBadRequest, "address and isFavorite are required")
		return
	}
	s.update(w, r, req.Address, func(ctx context.Context) error {
		return s.store.SetFavorite(ctx, req.Address, *req.IsFavorite)
	})
}

func (s *Server) handleDismissed(w http.ResponseWriter, r *http.Request) {
	var req dismissedRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Address == "" || req.IsDismissed == nil {
		writeError(w, http.StatusBadRequest, "address and isDismissed are required")
		return
	}
	s.update(w, r, req.Address, func(ctx context.Context) error {
		return s.store.SetDismissed(ctx, req.Address, *req.IsDismissed)
	})
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Address == "" || req.Notes == nil {
		writeError(w, http.StatusBadRequest, "address and notes are required")
		return
	}
	s.update(w, r, req.Address, func(ctx context.Context) error {
		return s.store.SetNotes(ctx, req.Address, *req.Notes)
	})
}

// update applies fn and responds with the updated listing
func (s *Server) update(w http.ResponseWriter, r *http.Request, address string, fn func(ctx context.Context) error) {
	ctx := r.Context()
	if err := fn(ctx); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no listing at "+address)
			return
		}
		log.Printf("Error: failed to update %s: %v\n", address, err)
		writeError(w, http.StatusInternalServerError, "failed to update listing")
		return
	}

	l, err := s.store.GetListing(ctx, address)
	if err != nil {
		log.Printf("Error: failed to reload %s: %v\n", address, err)
		writeError(w, http.StatusInternalServerError, "failed to load listing")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: failed to write response: %v\n", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
