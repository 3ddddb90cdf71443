// Package transcript turns recorded answers into text and time-stamped segments
// using a hosted speech-to-text API.
package transcript

import (
	"context"

	"github.com/fairytail9511-bot/eiken-mvp/internal/pronunciation"
)

// DefaultLanguage is used when a request does not name one.
const DefaultLanguage = "en"

// Audio is one uploaded recording.
type Audio struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Transcription is the result of a single speech-to-text call.
type Transcription struct {
	Text     string                     `json:"text"`
	Language string                     `json:"language,omitempty"`
	Duration float64                    `json:"duration,omitempty"`
	Segments []pronunciation.RawSegment `json:"segments"`
}

// Transcriber converts audio into a Transcription.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio, language string) (*Transcription, error)
}
