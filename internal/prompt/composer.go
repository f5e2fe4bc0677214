package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/digkill/genstudio/internal/models"
)

var (
	ErrEmptyPrompt          = errors.New("prompt cannot be empty")
	ErrUnknownHelper        = errors.New("unknown helper")
	ErrHelperDetailRequired = errors.New("helper detail required")
)

const maxParallelHelpers = 4

type ComposeInput struct {
	Prompt     string
	Style      models.Style
	Helpers    []models.HelperSelection
	AIAssisted bool
}

type Composer struct {
	enhancer *Enhancer
}

func NewComposer(enhancer *Enhancer) *Composer {
	return &Composer{enhancer: enhancer}
}

// Compose builds the final generation prompt. The result always contains the
// literal user prompt and the literal detail of every selected helper.
func (c *Composer) Compose(ctx context.Context, in ComposeInput) (string, error) {
	userPrompt := strings.TrimSpace(in.Prompt)
	if userPrompt == "" {
		return "", ErrEmptyPrompt
	}

	templates := make([]models.HelperTemplate, len(in.Helpers))
	for i, sel := range in.Helpers {
		tmpl, ok := LookupHelper(sel.ID)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownHelper, sel.ID)
		}
		if strings.TrimSpace(sel.Detail) == "" {
			return "", fmt.Errorf("%w: %s", ErrHelperDetailRequired, sel.ID)
		}
		templates[i] = tmpl
	}

	guardedHelpers := make([]string, len(in.Helpers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelHelpers)
	for i, sel := range in.Helpers {
		g.Go(func() error {
			guardedHelpers[i] = PreserveVerbatim(sel.Detail, c.helperText(gctx, templates[i], sel.Detail, in.Style, in.AIAssisted))
			return nil
		})
	}

	guardedUser := PreserveVerbatim(userPrompt, c.userText(ctx, userPrompt, in.Style, in.AIAssisted))

	if err := g.Wait(); err != nil {
		return "", err
	}

	parts := make([]string, 0, len(guardedHelpers)+1)
	for _, text := range append([]string{guardedUser}, guardedHelpers...) {
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Deterministic mode skips the verbatim directives; they only steer the text provider.
func (c *Composer) helperText(ctx context.Context, tmpl models.HelperTemplate, detail string, style models.Style, aiAssisted bool) string {
	if !aiAssisted || c.enhancer == nil {
		return StyleEnhance(tmpl.Instruction+" "+detail, style)
	}
	return c.enhancer.Enhance(ctx, tmpl.Instruction+" "+verbatimDirective(detail), style)
}

func (c *Composer) userText(ctx context.Context, userPrompt string, style models.Style, aiAssisted bool) string {
	if !aiAssisted || c.enhancer == nil {
		return StyleEnhance(userPrompt, style)
	}
	return c.enhancer.Enhance(ctx, userPrompt+". "+verbatimDirective(userPrompt), style)
}
