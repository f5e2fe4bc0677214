// Package wizard collects the inputs of one generation request in five guarded steps.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/digkill/genstudio/internal/models"
	"github.com/digkill/genstudio/internal/prompt"
)

type Step int

const (
	StepStyleSelect Step = iota
	StepSizeSelect
	StepHelperSelect
	StepPromptEntry
	StepConfirm
)

func (s Step) String() string {
	switch s {
	case StepStyleSelect:
		return "style"
	case StepSizeSelect:
		return "size"
	case StepHelperSelect:
		return "helpers"
	case StepPromptEntry:
		return "prompt"
	case StepConfirm:
		return "confirm"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

var (
	ErrSessionClosed       = errors.New("wizard session closed")
	ErrWrongStep           = errors.New("action not available at this step")
	ErrUnknownStyle        = errors.New("unknown style")
	ErrUnknownSize         = errors.New("unknown size")
	ErrUnknownHelper       = errors.New("unknown helper")
	ErrHelperNotSelected   = errors.New("helper not selected")
	ErrHelperDetailPending = errors.New("helper detail not captured")
	ErrStyleRequired       = errors.New("style required")
	ErrSizeRequired        = errors.New("size required")
	ErrPromptRequired      = errors.New("prompt required")
	ErrFirstStep           = errors.New("already at the first step")
	ErrLastStep            = errors.New("already at the last step")
)

type Composer interface {
	Compose(ctx context.Context, in prompt.ComposeInput) (string, error)
}

type Submitter interface {
	Submit(ctx context.Context, req models.GenerationRequest) (models.GeneratedMediaRecord, <-chan models.GeneratedMediaRecord, error)
}

// SettingsRecorder remembers the selections of the last confirmed session.
type SettingsRecorder interface {
	Remember(ctx context.Context, settings models.Settings)
}

// View is a read-only copy of a session for rendering.
type View struct {
	Step       Step
	Style      models.Style
	Size       models.Size
	AIAssisted bool
	Helpers    []models.HelperSelection
	Prompt     string
}

type Session struct {
	mu         sync.Mutex
	step       Step
	style      models.Style
	size       models.Size
	aiAssisted bool
	helpers    []models.HelperSelection
	prompt     string
	closed     bool
	now        func() time.Time
}

// New starts a session pre-filled from the last confirmed settings.
func New(defaults models.Settings) *Session {
	s := &Session{
		step:       StepStyleSelect,
		aiAssisted: defaults.AIAssisted,
		prompt:     strings.TrimSpace(defaults.Prompt),
		now:        time.Now,
	}
	if defaults.Style.Known() {
		s.style = defaults.Style
	}
	if defaults.Size.Known() {
		s.size = defaults.Size
	}
	return s
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Step:       s.step,
		Style:      s.style,
		Size:       s.size,
		AIAssisted: s.aiAssisted,
		Helpers:    append([]models.HelperSelection(nil), s.helpers...),
		Prompt:     s.prompt,
	}
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) SelectStyle(style models.Style) error {
	return s.at(StepStyleSelect, func() error {
		if !style.Known() {
			return fmt.Errorf("%w: %s", ErrUnknownStyle, style)
		}
		s.style = style
		return nil
	})
}

func (s *Session) SelectSize(size models.Size) error {
	return s.at(StepSizeSelect, func() error {
		if !size.Known() {
			return fmt.Errorf("%w: %s", ErrUnknownSize, size)
		}
		s.size = size
		return nil
	})
}

// SelectHelper marks a helper as chosen. Its detail must be captured before
// the session can leave the helper step.
func (s *Session) SelectHelper(id string) error {
	return s.at(StepHelperSelect, func() error {
		if _, ok := prompt.LookupHelper(id); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownHelper, id)
		}
		if s.helperIndex(id) >= 0 {
			return nil
		}
		s.helpers = append(s.helpers, models.HelperSelection{ID: id})
		return nil
	})
}

func (s *Session) CaptureDetail(id, detail string) error {
	return s.at(StepHelperSelect, func() error {
		idx := s.helperIndex(id)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrHelperNotSelected, id)
		}
		detail = strings.TrimSpace(detail)
		if detail == "" {
			return fmt.Errorf("%w: %s", ErrHelperDetailPending, id)
		}
		s.helpers[idx].Detail = detail
		return nil
	})
}

func (s *Session) DeselectHelper(id string) error {
	return s.at(StepHelperSelect, func() error {
		idx := s.helperIndex(id)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrHelperNotSelected, id)
		}
		s.helpers = append(s.helpers[:idx:idx], s.helpers[idx+1:]...)
		return nil
	})
}

// PendingHelper reports the first selected helper still waiting for its detail.
func (s *Session) PendingHelper() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.helpers {
		if h.Detail == "" {
			return h.ID, true
		}
	}
	return "", false
}

func (s *Session) SetAIAssisted(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.aiAssisted = on
	return nil
}

func (s *Session) SetPrompt(text string) error {
	return s.at(StepPromptEntry, func() error {
		s.prompt = strings.TrimSpace(text)
		return nil
	})
}

func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	switch s.step {
	case StepStyleSelect:
		if s.style == "" {
			return ErrStyleRequired
		}
	case StepSizeSelect:
		if s.size == "" {
			return ErrSizeRequired
		}
	case StepHelperSelect:
		for _, h := range s.helpers {
			if h.Detail == "" {
				return fmt.Errorf("%w: %s", ErrHelperDetailPending, h.ID)
			}
		}
	case StepPromptEntry:
		if s.prompt == "" {
			return ErrPromptRequired
		}
	case StepConfirm:
		return ErrLastStep
	}
	s.step++
	return nil
}

func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.step == StepStyleSelect {
		return ErrFirstStep
	}
	s.step--
	return nil
}

// Cancel discards the session.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Confirm composes the final prompt, remembers the selections and submits the
// request. The session is closed afterwards whatever the outcome; a failed
// generation is reported through the returned record's status.
func (s *Session) Confirm(ctx context.Context, composer Composer, submitter Submitter, settings SettingsRecorder) (models.GeneratedMediaRecord, <-chan models.GeneratedMediaRecord, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.GeneratedMediaRecord{}, nil, ErrSessionClosed
	}
	if s.step != StepConfirm {
		s.mu.Unlock()
		return models.GeneratedMediaRecord{}, nil, fmt.Errorf("%w: %s", ErrWrongStep, s.step)
	}
	s.closed = true
	in := prompt.ComposeInput{
		Prompt:     s.prompt,
		Style:      s.style,
		Helpers:    append([]models.HelperSelection(nil), s.helpers...),
		AIAssisted: s.aiAssisted,
	}
	size := s.size
	now := s.now().UTC()
	s.mu.Unlock()

	finalPrompt, err := composer.Compose(ctx, in)
	if err != nil {
		return models.GeneratedMediaRecord{}, nil, fmt.Errorf("compose prompt: %w", err)
	}

	if settings != nil {
		settings.Remember(ctx, models.Settings{
			Style:      in.Style,
			Size:       size,
			Prompt:     in.Prompt,
			AIAssisted: in.AIAssisted,
			UpdatedAt:  now,
		})
	}

	return submitter.Submit(ctx, models.GenerationRequest{
		FinalPrompt: finalPrompt,
		Style:       in.Style,
		Size:        size,
		AIAssisted:  in.AIAssisted,
	})
}

func (s *Session) at(step Step, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.step != step {
		return fmt.Errorf("%w: %s", ErrWrongStep, s.step)
	}
	return fn()
}

func (s *Session) helperIndex(id string) int {
	for i, h := range s.helpers {
		if h.ID == id {
			return i
		}
	}
	return -1
}
