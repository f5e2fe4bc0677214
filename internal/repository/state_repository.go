package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/digkill/genstudio/internal/models"
)

const (
	KeyHistory  = "generation_history"
	KeyLedger   = "credit_ledger"
	KeySettings = "last_settings"
	KeyLibrary  = "image_library"
)

var ErrStateCorrupt = errors.New("persisted state corrupt")

type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// State is everything the pipeline restores at startup.
type State struct {
	History  []models.GeneratedMediaRecord
	Ledger   models.CreditState
	Settings models.Settings
	Library  []models.LibraryRecord
}

// Snapshot selects which collections Save writes; nil fields are left untouched.
type Snapshot struct {
	History  *[]models.GeneratedMediaRecord
	Ledger   *models.CreditState
	Settings *models.Settings
	Library  *[]models.LibraryRecord
}

type StateRepository struct {
	kv  KV
	log *slog.Logger
}

func NewStateRepository(kv KV, log *slog.Logger) *StateRepository {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StateRepository{kv: kv, log: log}
}

// Load reads each key independently. A key that cannot be read or parsed falls
// back to its value in defaults without affecting the others.
func (r *StateRepository) Load(ctx context.Context, defaults State) State {
	return State{
		History:  loadKey(ctx, r, KeyHistory, defaults.History),
		Ledger:   loadKey(ctx, r, KeyLedger, defaults.Ledger),
		Settings: loadKey(ctx, r, KeySettings, defaults.Settings),
		Library:  loadKey(ctx, r, KeyLibrary, defaults.Library),
	}
}

func loadKey[T any](ctx context.Context, r *StateRepository, key string, fallback T) T {
	raw, ok, err := r.kv.Get(ctx, key)
	if err != nil {
		r.log.Warn("state read failed, using default", "key", key, "err", fmt.Errorf("%w: %w", ErrStateCorrupt, err))
		return fallback
	}
	if !ok {
		return fallback
	}
	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		r.log.Warn("state parse failed, using default", "key", key, "err", fmt.Errorf("%w: %w", ErrStateCorrupt, err))
		return fallback
	}
	return value
}

func (r *StateRepository) Save(ctx context.Context, snap Snapshot) error {
	var errs []error
	if snap.History != nil {
		errs = append(errs, r.put(ctx, KeyHistory, *snap.History))
	}
	if snap.Ledger != nil {
		errs = append(errs, r.put(ctx, KeyLedger, *snap.Ledger))
	}
	if snap.Settings != nil {
		errs = append(errs, r.put(ctx, KeySettings, *snap.Settings))
	}
	if snap.Library != nil {
		errs = append(errs, r.put(ctx, KeyLibrary, *snap.Library))
	}
	return errors.Join(errs...)
}

func (r *StateRepository) put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return r.kv.Put(ctx, key, string(data))
}
