package pronunciation

import (
	"bytes"
	"encoding/json"
)

// MethodAudio tags results derived from recognizer segment metadata.
const MethodAudio = "audio"

// Segment is one recognized span of speech. Nil AvgLogProb or NoSpeechProb means the
// recognizer did not report the value.
type Segment struct {
	Start        float64
	End          float64
	AvgLogProb   *float64
	NoSpeechProb *float64
	Text         string
}

// RawSegment mirrors the segment shape returned by the speech-to-text provider
// (Whisper verbose_json). Every field may be missing.
type RawSegment struct {
	Start        *float64 `json:"start,omitempty"`
	End          *float64 `json:"end,omitempty"`
	AvgLogProb   *float64 `json:"avg_logprob,omitempty"`
	NoSpeechProb *float64 `json:"no_speech_prob,omitempty"`
	Text         string   `json:"text,omitempty"`
}

// Metrics are the diagnostic numbers behind the scores.
type Metrics struct {
	DurationSec    float64 `json:"durationSec"`
	Words          int     `json:"words"`
	WPM            float64 `json:"wpm"`
	PauseRatio     float64 `json:"pauseRatio"`
	LongPauseCount int     `json:"longPauseCount"`
}

// Result is the pronunciation/fluency assessment of one recording.
type Result struct {
	Method          string   `json:"method"`
	Overall         int      `json:"overall0to10"`
	Intelligibility int      `json:"intelligibility0to10"`
	Fluency         int      `json:"fluency0to10"`
	Accuracy        int      `json:"accuracy0to10"`
	Prosody         int      `json:"prosody0to10"`
	Metrics         Metrics  `json:"metrics"`
	Notes           []string `json:"notes"`
	Caveat          string   `json:"caveat"`
}

// UnmarshalJSON decodes a segment leniently: a numeric field holding anything other
// than a JSON number is left nil, and a non-object entry decodes to an empty segment.
// Normalize then drops or ignores those values instead of the whole payload failing.
func (s *RawSegment) UnmarshalJSON(b []byte) error {
	var raw struct {
		Start        json.RawMessage `json:"start"`
		End          json.RawMessage `json:"end"`
		AvgLogProb   json.RawMessage `json:"avg_logprob"`
		NoSpeechProb json.RawMessage `json:"no_speech_prob"`
		Text         json.RawMessage `json:"text"`
	}
	*s = RawSegment{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}
	s.Start = lenientNumber(raw.Start)
	s.End = lenientNumber(raw.End)
	s.AvgLogProb = lenientNumber(raw.AvgLogProb)
	s.NoSpeechProb = lenientNumber(raw.NoSpeechProb)
	var text string
	if json.Unmarshal(raw.Text, &text) == nil {
		s.Text = text
	}
	return nil
}

func lenientNumber(m json.RawMessage) *float64 {
	m = bytes.TrimSpace(m)
	if len(m) == 0 || bytes.Equal(m, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(m, &f); err != nil {
		return nil
	}
	return &f
}
