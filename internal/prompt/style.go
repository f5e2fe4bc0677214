package prompt

import (
	"strings"

	"github.com/digkill/genstudio/internal/models"
)

const qualityVocabulary = "high quality, highly detailed, professional photography, sharp focus, 8k resolution, balanced composition"

const defaultStylePhrases = "clean commercial aesthetic, natural lighting, polished finish"

var stylePhrases = map[models.Style]string{
	models.StyleProfessional: "professional business aesthetic, soft studio lighting, neutral tones, crisp details",
	models.StyleCreative:     "artistic and imaginative, bold composition, expressive colors, unique perspective",
	models.StyleMinimalist:   "minimalist design, generous negative space, simple shapes, muted palette",
	models.StyleLuxury:       "luxury premium feel, rich textures, elegant gold accents, dramatic lighting",
	models.StyleVibrant:      "vibrant saturated colors, energetic mood, dynamic lighting, high contrast",
	models.StyleCorporate:    "corporate brand look, modern office environment, trustworthy blue tones, clean lines",
}

type contentCategory struct {
	name     string
	keywords []string
	phrases  string
}

// Scan order is fixed; every matching category contributes its phrases.
var contentCategories = []contentCategory{
	{
		name:     "product",
		keywords: []string{"product", "item", "package", "bottle", "device"},
		phrases:  "product showcase, hero shot, studio backdrop, accurate materials",
	},
	{
		name:     "service",
		keywords: []string{"service", "support", "consult", "customer"},
		phrases:  "service in action, friendly interaction, welcoming atmosphere",
	},
	{
		name:     "team",
		keywords: []string{"team", "staff", "people", "employee", "colleague"},
		phrases:  "diverse team, genuine expressions, collaborative energy",
	},
	{
		name:     "office",
		keywords: []string{"office", "workspace", "desk", "meeting room"},
		phrases:  "bright modern office interior, organized workspace, daylight windows",
	},
	{
		name:     "technology",
		keywords: []string{"tech", "software", "digital", "computer", "cloud"},
		phrases:  "sleek technology, glowing screens, futuristic accents",
	},
	{
		name:     "finance",
		keywords: []string{"finance", "money", "bank", "invest", "budget", "invoice"},
		phrases:  "financial growth, charts and graphs, confident and secure mood",
	},
}

// StyleEnhance deterministically decorates prompt with quality, style and
// content-category vocabulary. It never fails and never leaves the process.
func StyleEnhance(prompt string, style models.Style) string {
	parts := []string{strings.TrimSpace(prompt), qualityVocabulary}

	if phrases, ok := stylePhrases[style]; ok {
		parts = append(parts, phrases)
	} else {
		parts = append(parts, defaultStylePhrases)
	}

	parts = append(parts, categoryPhrases(prompt)...)
	return strings.Join(parts, ", ")
}

// MatchCategories returns the names of content categories detected in text, in scan order.
func MatchCategories(text string) []string {
	var out []string
	for _, c := range matchingCategories(text) {
		out = append(out, c.name)
	}
	return out
}

func categoryPhrases(text string) []string {
	var out []string
	for _, c := range matchingCategories(text) {
		out = append(out, c.phrases)
	}
	return out
}

func matchingCategories(text string) []contentCategory {
	lower := strings.ToLower(text)
	var out []contentCategory
	for _, c := range contentCategories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// PreserveVerbatim guarantees detail survives in the returned text. When an
// upstream rewrite dropped it, the quoted detail is prepended.
func PreserveVerbatim(detail, enhanced string) string {
	if detail == "" || strings.Contains(enhanced, detail) {
		return enhanced
	}
	return `"` + detail + `" ` + enhanced
}

func verbatimDirective(text string) string {
	return `Include the exact text "` + text + `" verbatim, without rewording, translating or omitting it.`
}
