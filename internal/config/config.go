package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress      string
	AuthToken        string
	CORSAllowOrigins []string

	OpenAIKey         string
	OpenAIBaseURL     string
	WhisperModel      string
	TranscribeTimeout time.Duration

	TTSProvider           string
	ElevenLabsKey         string
	ElevenLabsVoiceFemale string
	ElevenLabsVoiceMale   string
	DeepgramKey           string
	DeepgramVoiceFemale   string
	DeepgramVoiceMale     string

	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string

	RecordsDBPath  string
	RecordsMaxKeep int

	LogLevel  string
	LogFormat string

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool
}

const (
	TTSProviderElevenLabs = "elevenlabs"
	TTSProviderDeepgram   = "deepgram"
)

// Load reads environment variables (after an optional .env file) and returns Config
// with sane defaults.
func Load() Config {
	loaded := godotenv.Load() == nil

	return Config{
		HTTPAddress:      getenv("HTTP_ADDRESS", ":8080"),
		AuthToken:        os.Getenv("APP_AUTH_TOKEN"),
		CORSAllowOrigins: splitList(getenv("CORS_ALLOW_ORIGINS", "*")),

		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     strings.TrimRight(getenv("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
		WhisperModel:      getenv("WHISPER_MODEL", "whisper-1"),
		TranscribeTimeout: getDuration("TRANSCRIBE_TIMEOUT", 120*time.Second),

		TTSProvider:           strings.ToLower(getenv("TTS_PROVIDER", TTSProviderElevenLabs)),
		ElevenLabsKey:         os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceFemale: os.Getenv("ELEVENLABS_VOICE_FEMALE_ID"),
		ElevenLabsVoiceMale:   os.Getenv("ELEVENLABS_VOICE_MALE_ID"),
		DeepgramKey:           os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramVoiceFemale:   getenv("DEEPGRAM_VOICE_FEMALE", "aura-2-thalia-en"),
		DeepgramVoiceMale:     getenv("DEEPGRAM_VOICE_MALE", "aura-2-apollo-en"),

		SupabaseURL:    os.Getenv("SUPABASE_URL"),
		SupabaseKey:    os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket: getenv("SUPABASE_BUCKET", "recordings"),

		RecordsDBPath:  getenvAllowEmpty("RECORDS_DB_PATH", "data/records.sqlite"),
		RecordsMaxKeep: getInt("RECORDS_MAX_KEEP", 50),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "console"),

		EnvFileLoaded: loaded,
	}
}

// Warnings lists configuration gaps that disable a feature. The server still starts.
func (c Config) Warnings() []string {
	var w []string
	if c.OpenAIKey == "" {
		w = append(w, "OPENAI_API_KEY not set - transcription will not work")
	}
	switch c.TTSProvider {
	case TTSProviderDeepgram:
		if c.DeepgramKey == "" {
			w = append(w, "DEEPGRAM_API_KEY not set - TTS will not work")
		}
	case TTSProviderElevenLabs:
		if c.ElevenLabsKey == "" {
			w = append(w, "ELEVENLABS_API_KEY not set - TTS will not work")
		}
		if c.ElevenLabsVoiceFemale == "" || c.ElevenLabsVoiceMale == "" {
			w = append(w, "ELEVENLABS_VOICE_FEMALE_ID / ELEVENLABS_VOICE_MALE_ID not set - TTS fails for the missing voice")
		}
	default:
		w = append(w, "unknown TTS_PROVIDER "+strconv.Quote(c.TTSProvider)+" - TTS disabled")
	}
	if c.SupabaseURL == "" || c.SupabaseKey == "" {
		w = append(w, "SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY not set - recordings will not be archived")
	}
	if c.RecordsDBPath == "" {
		w = append(w, "RECORDS_DB_PATH empty - attempt history disabled")
	}
	return w
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// getenvAllowEmpty returns def only when key is unset, so an explicit empty value
// can switch a feature off.
func getenvAllowEmpty(key, def string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
