package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io"
	elevenLabsModel   = "eleven_multilingual_v2"
	elevenLabsFormat  = "mp3_44100_128"
)

// ElevenLabsClient renders mp3 audio through the ElevenLabs text-to-speech API.
type ElevenLabsClient struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	VoiceIDs   map[Gender]string

	log zerolog.Logger
}

func NewElevenLabsClient(apiKey, femaleVoiceID, maleVoiceID string, log zerolog.Logger) *ElevenLabsClient {
	return &ElevenLabsClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    elevenLabsBaseURL,
		APIKey:     apiKey,
		VoiceIDs:   map[Gender]string{Female: femaleVoiceID, Male: maleVoiceID},
		log:        log.With().Str("component", "elevenlabs").Logger(),
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	OutputFormat  string        `json:"output_format"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize returns the full mp3 clip for text.
func (e *ElevenLabsClient) Synthesize(ctx context.Context, text string, gender Gender) (*Audio, error) {
	if e.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs: api key missing")
	}
	voiceID := e.VoiceIDs[gender]
	if voiceID == "" {
		return nil, fmt.Errorf("elevenlabs: voice id missing for %s", gender)
	}

	body, err := json.Marshal(speechRequest{
		Text:         text,
		ModelID:      elevenLabsModel,
		OutputFormat: elevenLabsFormat,
		VoiceSettings: voiceSettings{
			Stability:       0.75,
			SimilarityBoost: 0.85,
			Style:           0.15,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	endpoint := e.BaseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs http error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 400))
		return nil, fmt.Errorf("elevenlabs http status=%d body=%s", resp.StatusCode, string(b))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs http read error: %w", err)
	}
	e.log.Debug().Int("bytes", len(data)).Str("gender", string(gender)).Msg("speech synthesized")

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "audio/mpeg"
	}
	return &Audio{Data: data, ContentType: ct}, nil
}
