package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/repository"
)

type recordMap map[string]models.GeneratedMediaRecord

func (m recordMap) Record(id string) (models.GeneratedMediaRecord, bool) {
	rec, ok := m[id]
	return rec, ok
}

type librarySaver struct {
	library []models.LibraryRecord
	touched []string
}

func (s *librarySaver) Save(_ context.Context, snap repository.Snapshot) error {
	if snap.Library != nil {
		s.library = *snap.Library
		s.touched = append(s.touched, repository.KeyLibrary)
	}
	if snap.History != nil || snap.Ledger != nil || snap.Settings != nil {
		s.touched = append(s.touched, "other")
	}
	return nil
}

func newTestLibrary(records recordMap, saver StateSaver) *LibraryService {
	svc := NewLibraryService(nil, records, saver, nil)
	n := 0
	svc.newID = func() string {
		n++
		return "lib-" + string(rune('0'+n))
	}
	svc.now = func() time.Time { return time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC) }
	return svc
}

func readyRecord() models.GeneratedMediaRecord {
	return models.GeneratedMediaRecord{
		ID:        "rec-1",
		URL:       "https://cdn.example/1.png",
		Prompt:    "our team working together in a sunny office",
		Style:     models.StyleCorporate,
		Size:      models.SizeLandscape,
		CreatedAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		Status:    models.StatusReady,
	}
}

func TestLibrarySaveDerivesMetadata(t *testing.T) {
	saver := &librarySaver{}
	svc := newTestLibrary(recordMap{"rec-1": readyRecord()}, saver)

	got, err := svc.Save(context.Background(), "rec-1")
	require.NoError(t, err)

	want := models.LibraryRecord{
		GeneratedMediaRecord: readyRecord(),
		LibraryID:            "lib-1",
		Title:                "Our Team Working Together In A Sunny Office",
		Description:          "corporate style, landscape (1216x832): our team working together in a sunny office",
		Tags:                 []string{"corporate", "landscape", "team", "office"},
		SavedAt:              time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Save() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{repository.KeyLibrary}, saver.touched)
	assert.Equal(t, []models.LibraryRecord{got}, saver.library)
}

func TestLibrarySaveTwiceAppends(t *testing.T) {
	svc := newTestLibrary(recordMap{"rec-1": readyRecord()}, nil)

	first, err := svc.Save(context.Background(), "rec-1")
	require.NoError(t, err)
	second, err := svc.Save(context.Background(), "rec-1")
	require.NoError(t, err)

	list := svc.List()
	require.Len(t, list, 2)
	assert.NotEqual(t, first.LibraryID, second.LibraryID)
	assert.Equal(t, second.LibraryID, list[0].LibraryID)

	ignore := cmpopts.IgnoreFields(models.LibraryRecord{}, "LibraryID")
	if diff := cmp.Diff(first, second, ignore); diff != "" {
		t.Fatalf("saved entries differ beyond LibraryID (-first +second):\n%s", diff)
	}
}

func TestLibrarySaveRequiresReady(t *testing.T) {
	pending := readyRecord()
	pending.ID, pending.URL, pending.Status = "rec-2", "", models.StatusGenerating
	failed := readyRecord()
	failed.ID, failed.URL, failed.Status = "rec-3", "", models.StatusFailed
	svc := newTestLibrary(recordMap{"rec-2": pending, "rec-3": failed}, nil)

	_, err := svc.Save(context.Background(), "rec-2")
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = svc.Save(context.Background(), "rec-3")
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = svc.Save(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.Empty(t, svc.List())
}

func TestLibraryDelete(t *testing.T) {
	saver := &librarySaver{}
	svc := newTestLibrary(recordMap{"rec-1": readyRecord()}, saver)
	entry, err := svc.Save(context.Background(), "rec-1")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), entry.LibraryID))
	assert.Empty(t, svc.List())
	assert.Empty(t, saver.library)
	assert.ErrorIs(t, svc.Delete(context.Background(), entry.LibraryID), ErrLibraryEntryNotFound)
}

func TestDeriveTitleLimit(t *testing.T) {
	long := strings.Repeat("word ", 30)
	title, _, tags := DeriveMetadata(long, models.StyleMinimalist, models.SizeSquare)
	assert.LessOrEqual(t, len(title), maxTitleLength)
	assert.True(t, strings.HasPrefix(title, "Word Word"), title)
	assert.Equal(t, []string{"minimalist", "square"}, tags)

	title, _, _ = DeriveMetadata(strings.Repeat("x", 80), models.StyleMinimalist, models.SizeSquare)
	assert.Len(t, title, maxTitleLength)
}
