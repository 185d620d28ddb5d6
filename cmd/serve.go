package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taralshah99/email-dossier-cli/internal/auth"
	"github.com/taralshah99/email-dossier-cli/internal/model"
	"github.com/taralshah99/email-dossier-cli/internal/pipeline"
	"github.com/taralshah99/email-dossier-cli/internal/relevancy"
	"github.com/taralshah99/email-dossier-cli/internal/store"
)

const sessionCookie = "dossier_session"

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for the dossier pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		api := &apiServer{
			store:          env.Store,
			auth:           env.Auth,
			newCoordinator: env.NewCoordinator,
			sessions:       make(map[string]*pipeline.Coordinator),
			allowedOrigins: cfg.Server.AllowedOrigins,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.routes(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context30s()
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// apiServer owns the per-session coordinators and the HTTP surface over
// them.
type apiServer struct {
	store          store.Store
	auth           auth.Service
	newCoordinator func() *pipeline.Coordinator
	allowedOrigins []string

	mu       sync.Mutex
	sessions map[string]*pipeline.Coordinator
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/auth/status", s.handleAuthStatus)
		r.Get("/state", s.handleState)
		r.Get("/events", s.handleEvents)
		r.Get("/analysis/display", s.handleAnalysisDisplay)

		r.Post("/search", s.handleSearch)
		r.Post("/threads/{id}/toggle", s.handleToggle)
		r.Post("/selection/clear", s.handleClearSelection)
		r.Post("/process", s.handleProcess)
		r.Post("/generate", s.handleGenerate)
		r.Post("/identity", s.handleIdentity)
		r.Post("/reset", s.handleReset)

		r.Get("/dossiers", s.handleListDossiers)
		r.Get("/dossiers/{id}", s.handleGetDossier)
	})

	return r
}

// coordinator returns the coordinator bound to the request's session
// cookie, creating session and coordinator on first contact.
func (s *apiServer) coordinator(w http.ResponseWriter, r *http.Request) *pipeline.Coordinator {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if coord, ok := s.sessions[id]; ok {
			return coord
		}
	}

	id = uuid.New().String()
	coord := s.newCoordinator()
	s.sessions[id] = coord

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return coord
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.auth.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleState(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinator(w, r)
	writeJSON(w, http.StatusOK, coord.Snapshot())
}

type searchRequest struct {
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Keyword     string `json:"keyword"`
	SenderEmail string `json:"sender_email"`
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinator(w, r)

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	criteria := model.SearchCriteria{
		Keyword:     req.Keyword,
		SenderEmail: req.SenderEmail,
	}
	var err error
	if criteria.StartDate, err = parseDate(req.StartDate); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid start_date"))
		return
	}
	if criteria.EndDate, err = parseDate(req.EndDate); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid end_date"))
		return
	}

	threads, err := coord.Search(r.Context(), criteria)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

func (s *apiServer) handleToggle(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinator(w, r)

	if err := coord.ToggleThread(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coord.Snapshot())
}

func (s *apiServer) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinator(w, r)
	coord.ClearSelection()
	writeJSON(w, http.StatusOK, coord.Snapshot())
}

func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinator(w, r)

	meta, err := coord.Process(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

type generateRequest struct {
	Kind          model.DossierKind `json:"kind"`
	ReuseAnalysis bool              `json:"reuse_analysis"`
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinator(w, r)

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	d, err := coord.Generate(r.Context(), req.Kind, req.ReuseAnalysis)
	if err != nil {
		writeError(w, err)
		return
	}

	// Persist the generated dossier so history survives restarts.
	if err := s.store.SaveDossier(r.Context(), d); err != nil {
		zap.L().Warn("save dossier failed", zap.String("kind", string(d.Kind)), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, d)
}

type identityRequest struct {
	Selection  string `json:"selection"`
	CustomName string `json:"custom_name"`
}

func (s *apiServer) handleIdentity(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinator(w, r)

	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	if req.Selection != "" {
		coord.SetClientSelection(req.Selection)
	}
	if req.CustomName != "" {
		coord.SetClientCustomName(req.CustomName)
	}
	writeJSON(w, http.StatusOK, coord.Snapshot().Identity)
}

// handleAnalysisDisplay renders the current analysis as the grouped
// display model the UI shows between processing and generation.
func (s *apiServer) handleAnalysisDisplay(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinator(w, r)

	snap := coord.Snapshot()
	if snap.Analysis == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("no analysis available; generate a dossier first"))
		return
	}
	var participants map[string]model.Participant
	if snap.Metadata != nil {
		participants = snap.Metadata.Combined.Participants
	}
	writeJSON(w, http.StatusOK, relevancy.Group(snap.Analysis, participants))
}

func (s *apiServer) handleReset(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinator(w, r)
	coord.Reset()
	writeJSON(w, http.StatusOK, coord.Snapshot())
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	coord := s.coordinator(w, r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody("streaming unsupported"))
		return
	}

	ch, cancel := coord.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				zap.L().Warn("marshal snapshot failed", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *apiServer) handleListDossiers(w http.ResponseWriter, r *http.Request) {
	filter := store.DossierFilter{
		Kind:       model.DossierKind(r.URL.Query().Get("kind")),
		ClientName: r.URL.Query().Get("client"),
	}

	dossiers, err := s.store.ListDossiers(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dossiers": dossiers})
}

func (s *apiServer) handleGetDossier(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDossier(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if d == nil {
		writeJSON(w, http.StatusNotFound, errorBody("dossier not found"))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// helpers

func context30s() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// writeError maps pipeline errors to HTTP statuses: bad input is 400,
// busy stages and superseded results are 409, a lapsed login is 401,
// and upstream service failures are 502.
func writeError(w http.ResponseWriter, err error) {
	var (
		ve  *pipeline.ValidationError
		ese *pipeline.EmptySelectionError
		ape *pipeline.AlreadyInProgressError
		are *pipeline.AuthRequiredError
		use *pipeline.UpstreamServiceError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ve), errors.As(err, &ese):
		status = http.StatusBadRequest
	case errors.As(err, &ape), errors.Is(err, pipeline.ErrStale):
		status = http.StatusConflict
	case errors.As(err, &are):
		status = http.StatusUnauthorized
	case errors.As(err, &use):
		status = http.StatusBadGateway
	}

	writeJSON(w, status, errorBody(err.Error()))
}
