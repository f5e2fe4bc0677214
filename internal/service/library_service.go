package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/prompt"
	"github.com/digkill/genstudio/internal/repository"
)

var (
	ErrNotReady             = errors.New("record is not ready")
	ErrLibraryEntryNotFound = errors.New("library entry not found")
)

const maxTitleLength = 60

type RecordSource interface {
	Record(id string) (models.GeneratedMediaRecord, bool)
}

// LibraryService keeps the curated collection of saved generations.
type LibraryService struct {
	log     *slog.Logger
	records RecordSource
	state   StateSaver
	now     func() time.Time
	newID   func() string

	mu      sync.Mutex
	library []models.LibraryRecord

	persistMu sync.Mutex
}

func NewLibraryService(log *slog.Logger, records RecordSource, state StateSaver, library []models.LibraryRecord) *LibraryService {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LibraryService{
		log:     log,
		records: records,
		state:   state,
		now:     time.Now,
		newID:   newRecordID,
		library: append([]models.LibraryRecord(nil), library...),
	}
}

// Save copies a ready record into the library. Every call adds a new entry,
// even for a record that was saved before.
func (s *LibraryService) Save(ctx context.Context, recordID string) (models.LibraryRecord, error) {
	rec, ok := s.records.Record(recordID)
	if !ok {
		return models.LibraryRecord{}, ErrRecordNotFound
	}
	if rec.Status != models.StatusReady {
		return models.LibraryRecord{}, fmt.Errorf("%w: %s is %s", ErrNotReady, rec.ID, rec.Status)
	}

	title, description, tags := DeriveMetadata(rec.Prompt, rec.Style, rec.Size)
	entry := models.LibraryRecord{
		GeneratedMediaRecord: rec,
		LibraryID:            s.newID(),
		Title:                title,
		Description:          description,
		Tags:                 tags,
		SavedAt:              s.now().UTC(),
	}

	s.mu.Lock()
	s.library = append([]models.LibraryRecord{entry}, s.library...)
	s.mu.Unlock()
	s.persist(ctx)

	s.log.Info("saved to library", "library_id", entry.LibraryID, "record_id", rec.ID)
	return entry, nil
}

// List returns saved entries, newest first.
func (s *LibraryService) List() []models.LibraryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LibraryRecord(nil), s.library...)
}

func (s *LibraryService) Delete(ctx context.Context, libraryID string) error {
	s.mu.Lock()
	idx := -1
	for i := range s.library {
		if s.library[i].LibraryID == libraryID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrLibraryEntryNotFound
	}
	s.library = append(s.library[:idx:idx], s.library[idx+1:]...)
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

// DeriveMetadata builds the title, description and tags shown for a saved entry.
func DeriveMetadata(text string, style models.Style, size models.Size) (string, string, []string) {
	text = strings.Join(strings.Fields(text), " ")
	width, height := size.Dimensions()
	description := fmt.Sprintf("%s style, %s (%dx%d): %s", style, size, width, height, text)

	tags := []string{string(style), string(size)}
	for _, category := range prompt.MatchCategories(text) {
		if !slices.Contains(tags, category) {
			tags = append(tags, category)
		}
	}
	return deriveTitle(text), description, tags
}

func deriveTitle(text string) string {
	var b strings.Builder
	for _, word := range strings.Fields(text) {
		if b.Len() == 0 {
			if len(word) > maxTitleLength {
				word = word[:maxTitleLength]
			}
			b.WriteString(word)
			continue
		}
		if b.Len()+1+len(word) > maxTitleLength {
			break
		}
		b.WriteByte(' ')
		b.WriteString(word)
	}
	return cases.Title(language.English).String(strings.ToValidUTF8(b.String(), ""))
}

func (s *LibraryService) persist(ctx context.Context) {
	if s.state == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	lib := s.List()
	if err := s.state.Save(ctx, repository.Snapshot{Library: &lib}); err != nil {
		s.log.Error("persist library", "err", err)
	}
}
