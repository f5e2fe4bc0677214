package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/genstudio/internal/ledger"
	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/prompt"
	"github.com/digkill/genstudio/internal/service"
)

type Generations interface {
	Submit(ctx context.Context, req models.GenerationRequest) (models.GeneratedMediaRecord, <-chan models.GeneratedMediaRecord, error)
	Redo(ctx context.Context, id string) (models.GeneratedMediaRecord, <-chan models.GeneratedMediaRecord, error)
	History() []models.GeneratedMediaRecord
	Credits() models.CreditState
	DeleteRecord(ctx context.Context, id string) error
	ToggleFavorite(ctx context.Context, id string) (models.GeneratedMediaRecord, error)
}

type Library interface {
	Save(ctx context.Context, recordID string) (models.LibraryRecord, error)
	List() []models.LibraryRecord
	Delete(ctx context.Context, libraryID string) error
}

type Settings interface {
	Current() models.Settings
	Remember(ctx context.Context, settings models.Settings)
}

type Composer interface {
	Compose(ctx context.Context, in prompt.ComposeInput) (string, error)
}

type Deps struct {
	Generations Generations
	Library     Library
	Settings    Settings
	Composer    Composer
}

type Server struct {
	addr     string
	username string
	password string
	log      *slog.Logger
	deps     Deps
	now      func() time.Time
	router   *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, deps Deps) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:     addr,
		username: username,
		password: password,
		log:      log,
		deps:     deps,
		now:      time.Now,
		router:   r,
	}
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Get("/catalog", s.handleCatalog)
		protected.Get("/credits", s.handleCredits)
		protected.Get("/settings", s.handleSettings)
		protected.Post("/generations", s.handleCreateGeneration)
		protected.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleListHistory)
			r.Post("/{id}/redo", s.handleRedo)
			r.Post("/{id}/favorite", s.handleToggleFavorite)
			r.Delete("/{id}", s.handleDeleteRecord)
		})
		protected.Route("/library", func(r chi.Router) {
			r.Get("/", s.handleListLibrary)
			r.Post("/", s.handleSaveToLibrary)
			r.Delete("/{id}", s.handleDeleteLibraryEntry)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("studio api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

type sizeView struct {
	ID     models.Size `json:"id"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
}

type catalogResponse struct {
	Styles  []models.Style          `json:"styles"`
	Sizes   []sizeView              `json:"sizes"`
	Helpers []models.HelperTemplate `json:"helpers"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	resp := catalogResponse{Styles: models.Styles(), Helpers: prompt.Helpers()}
	for _, size := range models.Sizes() {
		width, height := size.Dimensions()
		resp.Sizes = append(resp.Sizes, sizeView{ID: size, Width: width, Height: height})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCredits(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Generations.Credits())
}

func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Settings.Current())
}

type generationRequest struct {
	Prompt     string                   `json:"prompt"`
	Style      models.Style             `json:"style"`
	Size       models.Size              `json:"size"`
	AIAssisted bool                     `json:"ai_assisted"`
	Helpers    []models.HelperSelection `json:"helpers"`
}

// handleCreateGeneration composes and submits a request. With ?wait=true the
// response carries the settled record instead of the pending one.
func (s *Server) handleCreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req generationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !req.Style.Known() {
		http.Error(w, fmt.Sprintf("unknown style %q", req.Style), http.StatusBadRequest)
		return
	}
	if req.Size == "" {
		req.Size = models.SizeSquare
	}
	if !req.Size.Known() {
		http.Error(w, fmt.Sprintf("unknown size %q", req.Size), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	finalPrompt, err := s.deps.Composer.Compose(ctx, prompt.ComposeInput{
		Prompt:     req.Prompt,
		Style:      req.Style,
		Helpers:    req.Helpers,
		AIAssisted: req.AIAssisted,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.deps.Settings.Remember(ctx, models.Settings{
		Style:      req.Style,
		Size:       req.Size,
		Prompt:     req.Prompt,
		AIAssisted: req.AIAssisted,
		UpdatedAt:  s.now().UTC(),
	})

	rec, done, err := s.deps.Generations.Submit(ctx, models.GenerationRequest{
		FinalPrompt: finalPrompt,
		Style:       req.Style,
		Size:        req.Size,
		AIAssisted:  req.AIAssisted,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondSubmitted(w, r, rec, done)
}

func (s *Server) handleListHistory(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Generations.History())
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	rec, done, err := s.deps.Generations.Redo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respondSubmitted(w, r, rec, done)
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Generations.ToggleFavorite(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Generations.DeleteRecord(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListLibrary(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Library.List())
}

type saveRequest struct {
	RecordID string `json:"record_id"`
}

func (s *Server) handleSaveToLibrary(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.RecordID == "" {
		http.Error(w, "record_id required", http.StatusBadRequest)
		return
	}
	entry, err := s.deps.Library.Save(r.Context(), req.RecordID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleDeleteLibraryEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Library.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) respondSubmitted(w http.ResponseWriter, r *http.Request, rec models.GeneratedMediaRecord, done <-chan models.GeneratedMediaRecord) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		s.writeJSON(w, http.StatusAccepted, rec)
		return
	}
	select {
	case settled := <-done:
		s.writeJSON(w, http.StatusOK, settled)
	case <-r.Context().Done():
	}
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="genstudio"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientCredits):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, service.ErrRecordNotFound), errors.Is(err, service.ErrLibraryEntryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrNotReady):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, prompt.ErrEmptyPrompt),
		errors.Is(err, prompt.ErrUnknownHelper),
		errors.Is(err, prompt.ErrHelperDetailRequired),
		errors.Is(err, service.ErrEmptyPrompt):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error("admin handler error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
