package tts

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
	"github.com/rs/zerolog"
)

const (
	deepgramSampleRate = 24000
	deepgramEncoding   = "linear16"
)

// DeepgramClient renders speech over the Deepgram websocket speak API and returns
// it as a WAV clip.
type DeepgramClient struct {
	apiKey string
	models map[Gender]string

	// idleWindow ends a synthesis once audio has started and then stopped arriving.
	idleWindow time.Duration
	deadline   time.Duration

	log zerolog.Logger
}

func NewDeepgramClient(apiKey, femaleModel, maleModel string, log zerolog.Logger) *DeepgramClient {
	if femaleModel == "" {
		femaleModel = "aura-2-thalia-en"
	}
	if maleModel == "" {
		maleModel = "aura-2-apollo-en"
	}
	return &DeepgramClient{
		apiKey:     apiKey,
		models:     map[Gender]string{Female: femaleModel, Male: maleModel},
		idleWindow: 400 * time.Millisecond,
		deadline:   12 * time.Second,
		log:        log.With().Str("component", "deepgram").Logger(),
	}
}

// Synthesize streams PCM for text until the stream goes quiet and wraps it in WAV.
func (d *DeepgramClient) Synthesize(ctx context.Context, text string, gender Gender) (*Audio, error) {
	if d.apiKey == "" {
		return nil, fmt.Errorf("deepgram: API key missing")
	}
	if text == "" {
		return nil, fmt.Errorf("deepgram: empty text")
	}

	col := newSpeechCollector()
	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.models[gender],
		Encoding:   deepgramEncoding,
		SampleRate: deepgramSampleRate,
	}
	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, col)
	if err != nil {
		return nil, fmt.Errorf("deepgram: create ws client: %w", err)
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return nil, fmt.Errorf("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return nil, fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		d.log.Warn().Err(err).Msg("flush error")
	}

	pcm, err := col.wait(ctx, d.idleWindow, d.deadline)
	if err != nil {
		return nil, err
	}
	data := WrapPCM16(pcm, deepgramSampleRate, 1)
	d.log.Debug().Int("bytes", len(data)).Str("model", options.Model).Msg("speech synthesized")
	return &Audio{Data: data, ContentType: "audio/wav"}, nil
}

// speechCollector receives speak events and buffers the PCM stream. The first
// provider error is kept and ends the wait.
type speechCollector struct {
	mu       sync.Mutex
	pcm      bytes.Buffer
	lastRecv time.Time
	errCh    chan error
}

func newSpeechCollector() *speechCollector {
	return &speechCollector{errCh: make(chan error, 1)}
}

// wait returns the buffered audio once it has stopped arriving for idle, or fails on
// a provider error, ctx expiry, or no audio before deadline.
func (s *speechCollector) wait(ctx context.Context, idle, deadline time.Duration) ([]byte, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	until := time.Now().Add(deadline)
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("deepgram: %w", ctx.Err())
		case err := <-s.errCh:
			return nil, err
		case <-ticker.C:
		}
		s.mu.Lock()
		last := s.lastRecv
		size := s.pcm.Len()
		s.mu.Unlock()

		if !last.IsZero() && time.Since(last) > idle {
			break
		}
		if time.Now().After(until) {
			if size == 0 {
				return nil, fmt.Errorf("deepgram: no audio within %s", deadline)
			}
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.pcm.Bytes()...), nil
}

func (s *speechCollector) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speechCollector) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speechCollector) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speechCollector) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speechCollector) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speechCollector) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speechCollector) UnhandledEvent([]byte) error                    { return nil }

func (s *speechCollector) Error(er *msginterfaces.ErrorResponse) error {
	err := fmt.Errorf("deepgram: provider error")
	if er != nil {
		msg := er.ErrMsg
		if msg == "" {
			msg = er.Description
		}
		err = fmt.Errorf("deepgram: %s: %s", er.ErrCode, msg)
	}
	select {
	case s.errCh <- err:
	default:
	}
	return nil
}

func (s *speechCollector) Binary(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	s.mu.Lock()
	s.pcm.Write(data)
	s.lastRecv = time.Now()
	s.mu.Unlock()
	return nil
}
