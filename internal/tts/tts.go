// Package tts synthesizes examiner speech with hosted text-to-speech providers.
package tts

import (
	"context"
	"strings"
)

// Gender selects the examiner voice.
type Gender string

const (
	Female Gender = "female"
	Male   Gender = "male"
)

// ParseGender maps free-form input onto a voice, defaulting to Female.
func ParseGender(s string) Gender {
	if strings.EqualFold(strings.TrimSpace(s), string(Male)) {
		return Male
	}
	return Female
}

// Audio is a synthesized clip ready to be served as-is.
type Audio struct {
	Data        []byte
	ContentType string
}

// Synthesizer renders text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, gender Gender) (*Audio, error)
}
