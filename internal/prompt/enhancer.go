package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/digkill/genstudio/internal/fallback"
	"github.com/digkill/genstudio/internal/models"
)

var (
	ErrNoProvider        = errors.New("text provider not configured")
	ErrResponseTooShort  = errors.New("enhanced text shorter than input")
	ErrEmptyEnhancedText = errors.New("enhanced text is empty")
)

// TextProvider is an external text-generation backend.
type TextProvider interface {
	GenerateText(ctx context.Context, instruction string) (string, error)
}

type Enhancer struct {
	provider TextProvider
	log      *slog.Logger
}

func NewEnhancer(provider TextProvider, log *slog.Logger) *Enhancer {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Enhancer{provider: provider, log: log}
}

// EnhancementInstruction wraps text in the fixed template sent to the text provider.
func EnhancementInstruction(text string, style models.Style) string {
	return fmt.Sprintf(`You are an expert prompt engineer for commercial image generation.
Rewrite the request below into one rich, detailed image prompt in a %s style.
Keep every quoted phrase exactly as written. Reply with the prompt only, no commentary.

Request: %s`, style, text)
}

// Enhance makes one provider attempt and silently degrades to StyleEnhance on
// any failure. It always returns usable text.
func (e *Enhancer) Enhance(ctx context.Context, instruction string, style models.Style) string {
	text, err := fallback.FirstSuccess(ctx, nil,
		fallback.Tier[string]{
			Name: "text-provider",
			Run: func(ctx context.Context) (string, error) {
				return e.remote(ctx, instruction, style)
			},
		},
		fallback.Tier[string]{
			Name: "style-template",
			Run: func(context.Context) (string, error) {
				return StyleEnhance(instruction, style), nil
			},
		},
	)
	if err != nil {
		return StyleEnhance(instruction, style)
	}
	return text
}

func (e *Enhancer) remote(ctx context.Context, instruction string, style models.Style) (string, error) {
	if e.provider == nil {
		e.log.Debug("enhancement degraded", "reason", "no provider")
		return "", ErrNoProvider
	}
	text, err := e.provider.GenerateText(ctx, EnhancementInstruction(instruction, style))
	if err != nil {
		e.log.Warn("enhancement degraded", "reason", "provider error", "err", err)
		return "", err
	}
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		e.log.Warn("enhancement degraded", "reason", "empty response")
		return "", ErrEmptyEnhancedText
	case len(text) < len(strings.TrimSpace(instruction)):
		e.log.Warn("enhancement degraded", "reason", "response shorter than input", "got", len(text), "want_at_least", len(instruction))
		return "", ErrResponseTooShort
	}
	return text, nil
}
