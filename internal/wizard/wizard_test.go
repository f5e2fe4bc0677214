package wizard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/prompt"
)

type fakeComposer struct {
	in  prompt.ComposeInput
	out string
	err error
}

func (f *fakeComposer) Compose(_ context.Context, in prompt.ComposeInput) (string, error) {
	f.in = in
	return f.out, f.err
}

type fakeSubmitter struct {
	calls int
	req   models.GenerationRequest
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, req models.GenerationRequest) (models.GeneratedMediaRecord, <-chan models.GeneratedMediaRecord, error) {
	f.calls++
	f.req = req
	if f.err != nil {
		return models.GeneratedMediaRecord{}, nil, f.err
	}
	done := make(chan models.GeneratedMediaRecord, 1)
	rec := models.GeneratedMediaRecord{ID: "rec-1", Prompt: req.FinalPrompt, Status: models.StatusGenerating}
	done <- rec
	close(done)
	return rec, done, nil
}

type fakeRecorder struct {
	saved []models.Settings
}

func (f *fakeRecorder) Remember(_ context.Context, s models.Settings) {
	f.saved = append(f.saved, s)
}

func walkToConfirm(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.SelectStyle(models.StyleLuxury))
	require.NoError(t, s.Next())
	require.NoError(t, s.SelectSize(models.SizePortrait))
	require.NoError(t, s.Next())
	require.NoError(t, s.SelectHelper("mood"))
	require.NoError(t, s.CaptureDetail("mood", "calm and confident"))
	require.NoError(t, s.Next())
	require.NoError(t, s.SetPrompt("red sports car"))
	require.NoError(t, s.Next())
	require.Equal(t, StepConfirm, s.View().Step)
}

func TestHappyPathConfirm(t *testing.T) {
	s := New(models.Settings{})
	s.now = func() time.Time { return time.Date(2026, 5, 3, 10, 0, 0, 0, time.UTC) }
	walkToConfirm(t, s)
	require.NoError(t, s.SetAIAssisted(true))

	composer := &fakeComposer{out: "final prompt"}
	submitter := &fakeSubmitter{}
	recorder := &fakeRecorder{}

	rec, done, err := s.Confirm(context.Background(), composer, submitter, recorder)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", rec.ID)
	assert.NotNil(t, done)

	assert.Equal(t, prompt.ComposeInput{
		Prompt:     "red sports car",
		Style:      models.StyleLuxury,
		Helpers:    []models.HelperSelection{{ID: "mood", Detail: "calm and confident"}},
		AIAssisted: true,
	}, composer.in)
	assert.Equal(t, models.GenerationRequest{
		FinalPrompt: "final prompt",
		Style:       models.StyleLuxury,
		Size:        models.SizePortrait,
		AIAssisted:  true,
	}, submitter.req)
	require.Len(t, recorder.saved, 1)
	assert.Equal(t, models.Settings{
		Style:      models.StyleLuxury,
		Size:       models.SizePortrait,
		Prompt:     "red sports car",
		AIAssisted: true,
		UpdatedAt:  time.Date(2026, 5, 3, 10, 0, 0, 0, time.UTC),
	}, recorder.saved[0])
	assert.True(t, s.Closed())
}

func TestGuards(t *testing.T) {
	s := New(models.Settings{})

	assert.ErrorIs(t, s.Back(), ErrFirstStep)
	assert.ErrorIs(t, s.Next(), ErrStyleRequired)
	assert.ErrorIs(t, s.SelectStyle("neon"), ErrUnknownStyle)
	assert.ErrorIs(t, s.SelectSize(models.SizeSquare), ErrWrongStep)

	require.NoError(t, s.SelectStyle(models.StyleCreative))
	require.NoError(t, s.Next())
	assert.ErrorIs(t, s.Next(), ErrSizeRequired)
	assert.ErrorIs(t, s.SelectSize("huge"), ErrUnknownSize)
	require.NoError(t, s.SelectSize(models.SizeStory))
	require.NoError(t, s.Next())

	assert.ErrorIs(t, s.SelectHelper("nope"), ErrUnknownHelper)
	require.NoError(t, s.SelectHelper("brand-colors"))
	id, pending := s.PendingHelper()
	assert.True(t, pending)
	assert.Equal(t, "brand-colors", id)
	assert.ErrorIs(t, s.Next(), ErrHelperDetailPending)
	assert.ErrorIs(t, s.CaptureDetail("brand-colors", "   "), ErrHelperDetailPending)
	assert.ErrorIs(t, s.CaptureDetail("mood", "x"), ErrHelperNotSelected)

	require.NoError(t, s.DeselectHelper("brand-colors"))
	require.NoError(t, s.Next())

	assert.ErrorIs(t, s.Next(), ErrPromptRequired)
	require.NoError(t, s.SetPrompt("  office party  "))
	require.NoError(t, s.Next())
	assert.ErrorIs(t, s.Next(), ErrLastStep)

	require.NoError(t, s.Back())
	assert.Equal(t, StepPromptEntry, s.View().Step)
	assert.Equal(t, "office party", s.View().Prompt)
}

func TestSelectHelperIsIdempotent(t *testing.T) {
	s := New(models.Settings{Style: models.StyleVibrant, Size: models.SizeSquare})
	require.NoError(t, s.Next())
	require.NoError(t, s.Next())

	require.NoError(t, s.SelectHelper("setting"))
	require.NoError(t, s.CaptureDetail("setting", "rooftop at dusk"))
	require.NoError(t, s.SelectHelper("setting"))

	assert.Equal(t, []models.HelperSelection{{ID: "setting", Detail: "rooftop at dusk"}}, s.View().Helpers)
}

func TestNewSeedsFromSettings(t *testing.T) {
	s := New(models.Settings{Style: models.StyleMinimalist, Size: models.SizeLandscape, Prompt: "desk setup", AIAssisted: true})

	v := s.View()
	assert.Equal(t, StepStyleSelect, v.Step)
	assert.Equal(t, models.StyleMinimalist, v.Style)
	assert.Equal(t, models.SizeLandscape, v.Size)
	assert.Equal(t, "desk setup", v.Prompt)
	assert.True(t, v.AIAssisted)

	unknown := New(models.Settings{Style: "retro", Size: "banner"})
	assert.ErrorIs(t, unknown.Next(), ErrStyleRequired)
}

func TestConfirmOnlyAtConfirmStep(t *testing.T) {
	s := New(models.Settings{})
	submitter := &fakeSubmitter{}

	_, _, err := s.Confirm(context.Background(), &fakeComposer{}, submitter, nil)
	assert.ErrorIs(t, err, ErrWrongStep)
	assert.False(t, s.Closed())
	assert.Zero(t, submitter.calls)
}

func TestSessionClosesRegardlessOfOutcome(t *testing.T) {
	cases := []struct {
		name      string
		composer  *fakeComposer
		submitter *fakeSubmitter
	}{
		{name: "compose fails", composer: &fakeComposer{err: errors.New("boom")}, submitter: &fakeSubmitter{}},
		{name: "submit fails", composer: &fakeComposer{out: "p"}, submitter: &fakeSubmitter{err: errors.New("insufficient credits")}},
		{name: "submit succeeds", composer: &fakeComposer{out: "p"}, submitter: &fakeSubmitter{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(models.Settings{})
			walkToConfirm(t, s)

			_, _, _ = s.Confirm(context.Background(), tc.composer, tc.submitter, nil)
			assert.True(t, s.Closed())

			_, _, err := s.Confirm(context.Background(), tc.composer, tc.submitter, nil)
			assert.ErrorIs(t, err, ErrSessionClosed)
			assert.ErrorIs(t, s.Back(), ErrSessionClosed)
			assert.ErrorIs(t, s.SetPrompt("again"), ErrSessionClosed)
		})
	}
}

func TestComposeFailureSkipsSubmission(t *testing.T) {
	s := New(models.Settings{})
	walkToConfirm(t, s)
	submitter := &fakeSubmitter{}
	recorder := &fakeRecorder{}

	_, _, err := s.Confirm(context.Background(), &fakeComposer{err: prompt.ErrEmptyPrompt}, submitter, recorder)
	assert.ErrorIs(t, err, prompt.ErrEmptyPrompt)
	assert.Zero(t, submitter.calls)
	assert.Empty(t, recorder.saved)
}
