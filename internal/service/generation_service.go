package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/genstudio/internal/ledger"
	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/repository"
)

var (
	ErrEmptyPrompt    = errors.New("prompt cannot be empty")
	ErrRecordNotFound = errors.New("record not found")
	errEmptyMediaURL  = errors.New("provider returned an empty media url")
)

type MediaGenerator interface {
	Generate(ctx context.Context, prompt string, size models.Size) (string, error)
}

type StateSaver interface {
	Save(ctx context.Context, snap repository.Snapshot) error
}

// GenerationService drives each request from debit to settlement and is the
// only writer of the credit ledger and the working history.
type GenerationService struct {
	log    *slog.Logger
	ledger *ledger.Ledger
	media  MediaGenerator
	state  StateSaver
	now    func() time.Time
	newID  func() string

	mu      sync.Mutex
	history []models.GeneratedMediaRecord

	persistMu sync.Mutex
	inflight  sync.WaitGroup
}

type GenerationOption func(*GenerationService)

func WithClock(now func() time.Time) GenerationOption {
	return func(s *GenerationService) { s.now = now }
}

func WithIDGenerator(newID func() string) GenerationOption {
	return func(s *GenerationService) { s.newID = newID }
}

func NewGenerationService(log *slog.Logger, credits *ledger.Ledger, media MediaGenerator, state StateSaver, history []models.GeneratedMediaRecord, opts ...GenerationOption) *GenerationService {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &GenerationService{
		log:     log,
		ledger:  credits,
		media:   media,
		state:   state,
		now:     time.Now,
		newID:   newRecordID,
		history: append([]models.GeneratedMediaRecord(nil), history...),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newRecordID returns a time-ordered UUIDv7.
func newRecordID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Submit debits one credit, records the request as generating and settles it
// in the background. The returned channel yields the settled record once.
func (s *GenerationService) Submit(ctx context.Context, req models.GenerationRequest) (models.GeneratedMediaRecord, <-chan models.GeneratedMediaRecord, error) {
	if strings.TrimSpace(req.FinalPrompt) == "" {
		return models.GeneratedMediaRecord{}, nil, ErrEmptyPrompt
	}
	if req.Size == "" {
		req.Size = models.SizeSquare
	}

	if _, err := s.ledger.Debit(); err != nil {
		s.log.Info("generation rejected", "err", err)
		return models.GeneratedMediaRecord{}, nil, err
	}

	rec := models.GeneratedMediaRecord{
		ID:        s.newID(),
		Prompt:    req.FinalPrompt,
		Style:     req.Style,
		Size:      req.Size,
		CreatedAt: s.now().UTC(),
		Status:    models.StatusGenerating,
	}
	s.mu.Lock()
	s.history = append([]models.GeneratedMediaRecord{rec}, s.history...)
	s.mu.Unlock()
	s.persist(ctx, true, true)
	s.log.Info("generation submitted", "id", rec.ID, "style", rec.Style, "size", rec.Size)

	done := make(chan models.GeneratedMediaRecord, 1)
	settleCtx := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer close(done)
		done <- s.settle(settleCtx, rec, req)
	}()
	return rec, done, nil
}

// Generate submits req and waits for it to settle.
func (s *GenerationService) Generate(ctx context.Context, req models.GenerationRequest) (models.GeneratedMediaRecord, error) {
	_, done, err := s.Submit(ctx, req)
	if err != nil {
		return models.GeneratedMediaRecord{}, err
	}
	return <-done, nil
}

func (s *GenerationService) settle(ctx context.Context, rec models.GeneratedMediaRecord, req models.GenerationRequest) models.GeneratedMediaRecord {
	mediaURL, genErr := s.media.Generate(ctx, req.FinalPrompt, req.Size)
	if genErr == nil && mediaURL == "" {
		genErr = errEmptyMediaURL
	}

	settled, found := s.mutate(rec.ID, func(r *models.GeneratedMediaRecord) error {
		if genErr != nil {
			return r.MarkFailed()
		}
		return r.MarkReady(mediaURL)
	})
	if !found {
		// Deleted while generating; settle the detached copy so accounting still holds.
		settled = rec
		if genErr != nil {
			_ = settled.MarkFailed()
		} else {
			_ = settled.MarkReady(mediaURL)
		}
	}

	if genErr != nil {
		s.ledger.Refund()
		s.log.Warn("generation failed, credit refunded", "id", rec.ID, "err", genErr)
	} else {
		s.log.Info("generation ready", "id", rec.ID)
	}
	s.persist(ctx, found, genErr != nil)
	return settled
}

// Redo submits a brand-new request reusing a stored record's prompt, style and size.
func (s *GenerationService) Redo(ctx context.Context, id string) (models.GeneratedMediaRecord, <-chan models.GeneratedMediaRecord, error) {
	rec, ok := s.Record(id)
	if !ok {
		return models.GeneratedMediaRecord{}, nil, ErrRecordNotFound
	}
	return s.Submit(ctx, models.GenerationRequest{FinalPrompt: rec.Prompt, Style: rec.Style, Size: rec.Size})
}

// Recover fails and refunds records left generating by a previous process.
func (s *GenerationService) Recover(ctx context.Context) int {
	s.mu.Lock()
	recovered := 0
	for i := range s.history {
		if s.history[i].Status != models.StatusGenerating {
			continue
		}
		if err := s.history[i].MarkFailed(); err == nil {
			recovered++
		}
	}
	s.mu.Unlock()

	if recovered == 0 {
		return 0
	}
	for i := 0; i < recovered; i++ {
		s.ledger.Refund()
	}
	s.persist(ctx, true, true)
	s.log.Warn("recovered orphaned generations", "count", recovered)
	return recovered
}

func (s *GenerationService) History() []models.GeneratedMediaRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.GeneratedMediaRecord(nil), s.history...)
}

func (s *GenerationService) Record(id string) (models.GeneratedMediaRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.history {
		if rec.ID == id {
			return rec, true
		}
	}
	return models.GeneratedMediaRecord{}, false
}

func (s *GenerationService) Credits() models.CreditState {
	return s.ledger.Snapshot()
}

func (s *GenerationService) DeleteRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrRecordNotFound
	}
	s.history = append(s.history[:idx:idx], s.history[idx+1:]...)
	s.mu.Unlock()

	s.persist(ctx, true, false)
	return nil
}

func (s *GenerationService) ToggleFavorite(ctx context.Context, id string) (models.GeneratedMediaRecord, error) {
	rec, found := s.mutate(id, func(r *models.GeneratedMediaRecord) error {
		r.Favorite = !r.Favorite
		return nil
	})
	if !found {
		return models.GeneratedMediaRecord{}, ErrRecordNotFound
	}
	s.persist(ctx, true, false)
	return rec, nil
}

// Wait blocks until every in-flight request has settled.
func (s *GenerationService) Wait() {
	s.inflight.Wait()
}

func (s *GenerationService) mutate(id string, fn func(*models.GeneratedMediaRecord) error) (models.GeneratedMediaRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return models.GeneratedMediaRecord{}, false
	}
	if err := fn(&s.history[idx]); err != nil {
		s.log.Error("record update rejected", "id", id, "err", err)
	}
	return s.history[idx], true
}

func (s *GenerationService) indexLocked(id string) int {
	for i := range s.history {
		if s.history[i].ID == id {
			return i
		}
	}
	return -1
}

// persist mirrors the current history and ledger. Saves are serialized and
// always take a fresh snapshot, so a later save never writes older state.
func (s *GenerationService) persist(ctx context.Context, history, credits bool) {
	if s.state == nil || (!history && !credits) {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	var snap repository.Snapshot
	if history {
		h := s.History()
		snap.History = &h
	}
	if credits {
		c := s.ledger.Snapshot()
		snap.Ledger = &c
	}
	if err := s.state.Save(ctx, snap); err != nil {
		s.log.Error("persist generation state", "err", fmt.Errorf("save: %w", err))
	}
}
