package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type Style string

const (
	StyleProfessional Style = "professional"
	StyleCreative     Style = "creative"
	StyleMinimalist   Style = "minimalist"
	StyleLuxury       Style = "luxury"
	StyleVibrant      Style = "vibrant"
	StyleCorporate    Style = "corporate"
)

// Styles returns the selectable style tags in display order.
func Styles() []Style {
	return []Style{StyleProfessional, StyleCreative, StyleMinimalist, StyleLuxury, StyleVibrant, StyleCorporate}
}

func (s Style) Known() bool {
	for _, known := range Styles() {
		if s == known {
			return true
		}
	}
	return false
}

type Size string

const (
	SizeSquare    Size = "square"
	SizeLandscape Size = "landscape"
	SizePortrait  Size = "portrait"
	SizeStory     Size = "story"
)

func Sizes() []Size {
	return []Size{SizeSquare, SizeLandscape, SizePortrait, SizeStory}
}

func (s Size) Known() bool {
	for _, known := range Sizes() {
		if s == known {
			return true
		}
	}
	return false
}

// Dimensions returns pixel width and height. Unknown descriptors render square.
func (s Size) Dimensions() (int, int) {
	switch s {
	case SizeLandscape:
		return 1216, 832
	case SizePortrait:
		return 832, 1216
	case SizeStory:
		return 768, 1344
	default:
		return 1024, 1024
	}
}

type Status string

const (
	StatusGenerating Status = "generating"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusGenerating, StatusReady, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	switch s {
	case StatusReady, StatusFailed:
		return true
	case StatusGenerating:
		return false
	default:
		return false
	}
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status := Status(raw)
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", raw)
	}
	*s = status
	return nil
}

// GenerationRequest is consumed once by the generation service and never stored.
type GenerationRequest struct {
	FinalPrompt string
	Style       Style
	Size        Size
	AIAssisted  bool
}

type GeneratedMediaRecord struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Prompt    string    `json:"prompt"`
	Style     Style     `json:"style"`
	Size      Size      `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Favorite  bool      `json:"favorite"`
	Status    Status    `json:"status"`
}

func (r *GeneratedMediaRecord) MarkReady(url string) error {
	if r.Status != StatusGenerating {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusReady)
	}
	if url == "" {
		return fmt.Errorf("%w: ready requires a url", ErrInvalidTransition)
	}
	r.URL = url
	r.Status = StatusReady
	return nil
}

func (r *GeneratedMediaRecord) MarkFailed() error {
	if r.Status != StatusGenerating {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusFailed)
	}
	r.URL = ""
	r.Status = StatusFailed
	return nil
}

type LibraryRecord struct {
	GeneratedMediaRecord
	LibraryID   string    `json:"library_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	SavedAt     time.Time `json:"saved_at"`
}

type CreditState struct {
	Remaining   int       `json:"remaining"`
	Total       int       `json:"total"`
	LastUpdated time.Time `json:"last_updated"`
}

// Settings is the last-used wizard configuration, saved as an explicit snapshot.
type Settings struct {
	Style      Style     `json:"style"`
	Size       Size      `json:"size"`
	Prompt     string    `json:"prompt"`
	AIAssisted bool      `json:"ai_assisted"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type HelperTemplate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Instruction string `json:"-"`
}

type HelperSelection struct {
	ID     string `json:"id"`
	Detail string `json:"detail"`
}
