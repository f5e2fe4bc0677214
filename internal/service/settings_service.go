package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/repository"
)

// SettingsService holds the selections of the last confirmed wizard session.
type SettingsService struct {
	log   *slog.Logger
	state StateSaver

	mu      sync.Mutex
	current models.Settings
}

func NewSettingsService(log *slog.Logger, state StateSaver, current models.Settings) *SettingsService {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SettingsService{log: log, state: state, current: current}
}

func (s *SettingsService) Current() models.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Remember replaces the stored settings. Persistence failures are logged only.
func (s *SettingsService) Remember(ctx context.Context, settings models.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = settings
	if s.state == nil {
		return
	}
	if err := s.state.Save(ctx, repository.Snapshot{Settings: &settings}); err != nil {
		s.log.Error("persist settings", "err", err)
	}
}
