package tts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestElevenLabs_NoKey(t *testing.T) {
	c := NewElevenLabsClient("", "f", "m", zerolog.Nop())
	if _, err := c.Synthesize(context.Background(), "hi", Female); err == nil {
		t.Fatalf("expected error with missing key")
	}
}

func TestElevenLabs_MissingVoice(t *testing.T) {
	c := NewElevenLabsClient("key", "f", "", zerolog.Nop())
	if _, err := c.Synthesize(context.Background(), "hi", Male); err == nil {
		t.Fatalf("expected error with missing male voice")
	}
}

func TestElevenLabs_PicksVoiceByGender(t *testing.T) {
	var gotPath, gotKey string
	var gotBody speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-mp3-bytes"))
	}))
	defer srv.Close()

	c := NewElevenLabsClient("key", "voice-f", "voice-m", zerolog.Nop())
	c.BaseURL = srv.URL

	audio, err := c.Synthesize(context.Background(), "Please begin your speech.", Male)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if gotPath != "/v1/text-to-speech/voice-m" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "key" {
		t.Fatalf("xi-api-key = %q", gotKey)
	}
	if gotBody.ModelID != "eleven_multilingual_v2" || gotBody.Text != "Please begin your speech." {
		t.Fatalf("unexpected body %+v", gotBody)
	}
	if gotBody.VoiceSettings.Stability != 0.75 || !gotBody.VoiceSettings.UseSpeakerBoost {
		t.Fatalf("unexpected voice settings %+v", gotBody.VoiceSettings)
	}
	if string(audio.Data) != "ID3-mp3-bytes" || audio.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected audio %q %q", audio.Data, audio.ContentType)
	}
}

func TestElevenLabs_HTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	c := NewElevenLabsClient("key", "f", "m", zerolog.Nop())
	c.BaseURL = srv.URL
	_, err := c.Synthesize(context.Background(), "hi", Female)
	if err == nil {
		t.Fatalf("expected error; got nil")
	}
	if !strings.Contains(err.Error(), "status=401") {
		t.Fatalf("error should carry status: %v", err)
	}
	if len(err.Error()) > 500 {
		t.Fatalf("error body should be truncated, got %d chars", len(err.Error()))
	}
}

func TestParseGender(t *testing.T) {
	for in, want := range map[string]Gender{"male": Male, " MALE ": Male, "female": Female, "": Female, "other": Female} {
		if got := ParseGender(in); got != want {
			t.Fatalf("ParseGender(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestWrapPCM16(t *testing.T) {
	pcm := make([]byte, 480)
	wav := WrapPCM16(pcm, 24000, 1)
	if len(wav) != 44+480 {
		t.Fatalf("len = %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("bad chunk ids")
	}
	if got := binary.LittleEndian.Uint32(wav[4:]); got != 36+480 {
		t.Fatalf("riff size = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:]); got != 24000 {
		t.Fatalf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:]); got != 48000 {
		t.Fatalf("byte rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:]); got != 480 {
		t.Fatalf("data size = %d", got)
	}
}
