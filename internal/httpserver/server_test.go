package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fairytail9511-bot/eiken-mvp/internal/config"
	"github.com/fairytail9511-bot/eiken-mvp/internal/pronunciation"
	"github.com/fairytail9511-bot/eiken-mvp/internal/records"
	"github.com/fairytail9511-bot/eiken-mvp/internal/transcript"
	"github.com/fairytail9511-bot/eiken-mvp/internal/tts"
)

type fakeTranscriber struct {
	res      *transcript.Transcription
	err      error
	gotLang  string
	gotAudio transcript.Audio
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio transcript.Audio, language string) (*transcript.Transcription, error) {
	f.gotAudio = audio
	f.gotLang = language
	return f.res, f.err
}

type fakeSynth struct {
	gotText   string
	gotGender tts.Gender
}

func (f *fakeSynth) Synthesize(_ context.Context, text string, gender tts.Gender) (*tts.Audio, error) {
	f.gotText = text
	f.gotGender = gender
	return &tts.Audio{Data: []byte("ID3"), ContentType: "audio/mpeg"}, nil
}

type fakeArchive struct {
	keys         []string
	contentTypes []string
	hadDeadline  bool
}

func (f *fakeArchive) Upload(ctx context.Context, key, contentType string, _ []byte) error {
	f.keys = append(f.keys, key)
	f.contentTypes = append(f.contentTypes, contentType)
	_, f.hadDeadline = ctx.Deadline()
	return nil
}

type memStore struct {
	mu   sync.Mutex
	recs []records.Record
}

func (m *memStore) Save(_ context.Context, rec records.Record) (records.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return rec, nil
}

func (m *memStore) Get(_ context.Context, id string) (*records.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.recs {
		if m.recs[i].ID == id {
			rec := m.recs[i]
			return &rec, nil
		}
	}
	return nil, records.ErrNotFound
}

func (m *memStore) List(_ context.Context, _ int) ([]records.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]records.Record{}, m.recs...), nil
}

func (m *memStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = nil
	return nil
}

func f64(v float64) *float64 { return &v }

func newTestServer(cfg config.Config, deps Deps) *Server {
	return New(cfg, deps, zerolog.Nop())
}

func serve(srv *Server, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)
	return w
}

func multipartAudio(t *testing.T, withFile bool, language string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if withFile {
		fw, err := mw.CreateFormFile("file", "answer.webm")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write([]byte("fake-audio"))
	}
	if language != "" {
		mw.WriteField("language", language)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return body, mw.FormDataContentType()
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(config.Config{}, Deps{})
	w := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}

func TestServer_UnknownRouteIsJSON(t *testing.T) {
	srv := newTestServer(config.Config{}, Deps{})
	w := serve(srv, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if got := decodeError(t, w)["code"]; got != "NOT_FOUND" {
		t.Fatalf("code = %q", got)
	}
}

func TestEvaluate_ReturnsScores(t *testing.T) {
	srv := newTestServer(config.Config{}, Deps{})
	body := `{"text":"one two three","segments":[{"start":0,"end":3,"avg_logprob":-0.2,"no_speech_prob":0.01}]}`
	r := httptest.NewRequest(http.MethodPost, "/api/evaluate", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := serve(srv, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res pronunciation.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Method != pronunciation.MethodAudio || res.Metrics.Words != 3 || res.Metrics.DurationSec != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Caveat == "" {
		t.Fatalf("caveat should be set")
	}
}

func TestEvaluate_MalformedSegmentFieldsAreIgnored(t *testing.T) {
	srv := newTestServer(config.Config{}, Deps{})
	body := `{"text":"one two three","segments":[{"start":0,"end":3,"avg_logprob":"-0.2"},{"start":"x","end":4}]}`
	r := httptest.NewRequest(http.MethodPost, "/api/evaluate", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := serve(srv, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res pronunciation.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := pronunciation.Evaluate("one two three", []pronunciation.Segment{{Start: 0, End: 3}})
	if res.Overall != want.Overall || res.Metrics != want.Metrics {
		t.Fatalf("got %+v, want %+v", res, want)
	}
}

func TestEvaluate_BadJSON(t *testing.T) {
	srv := newTestServer(config.Config{}, Deps{})
	r := httptest.NewRequest(http.MethodPost, "/api/evaluate", strings.NewReader("{"))
	r.Header.Set("Content-Type", "application/json")
	if w := serve(srv, r); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestTranscribe_NotConfigured(t *testing.T) {
	srv := newTestServer(config.Config{}, Deps{})
	body, ct := multipartAudio(t, true, "")
	r := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	r.Header.Set("Content-Type", ct)
	if w := serve(srv, r); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	srv := newTestServer(config.Config{}, Deps{Transcriber: &fakeTranscriber{}})
	body, ct := multipartAudio(t, false, "en")
	r := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	r.Header.Set("Content-Type", ct)
	w := serve(srv, r)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := decodeError(t, w)["error"]; got != "file is required" {
		t.Fatalf("error = %q", got)
	}
}

func TestTranscribe_UpstreamFailure(t *testing.T) {
	ft := &fakeTranscriber{err: errors.New("whisper: status 500: boom")}
	srv := newTestServer(config.Config{}, Deps{Transcriber: ft})
	body, ct := multipartAudio(t, true, "")
	r := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	r.Header.Set("Content-Type", ct)
	w := serve(srv, r)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if got := decodeError(t, w)["detail"]; !strings.Contains(got, "boom") {
		t.Fatalf("detail = %q", got)
	}
}

func TestTranscribe_HappyPath(t *testing.T) {
	ft := &fakeTranscriber{res: &transcript.Transcription{
		Text: "I think students should study abroad.",
		Segments: []pronunciation.RawSegment{
			{Start: f64(1.5), End: f64(3.0), AvgLogProb: f64(-0.2), NoSpeechProb: f64(0.01), Text: " should study abroad."},
			{Start: f64(0), End: f64(1.4), AvgLogProb: f64(-0.1), NoSpeechProb: f64(0.02), Text: "I think students"},
		},
	}}
	store := &memStore{}
	archive := &fakeArchive{}
	srv := newTestServer(config.Config{}, Deps{Transcriber: ft, Records: store, Archive: archive})

	body, ct := multipartAudio(t, true, "")
	r := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	r.Header.Set("Content-Type", ct)
	w := serve(srv, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ft.gotLang != transcript.DefaultLanguage {
		t.Fatalf("language = %q, want default", ft.gotLang)
	}
	if string(ft.gotAudio.Data) != "fake-audio" || ft.gotAudio.Filename != "answer.webm" {
		t.Fatalf("unexpected audio %+v", ft.gotAudio)
	}

	var resp transcribeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Text != ft.res.Text || len(resp.Segments) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Pronunciation.Method != pronunciation.MethodAudio || resp.Pronunciation.Metrics.DurationSec != 3 {
		t.Fatalf("unexpected pronunciation %+v", resp.Pronunciation)
	}
	if resp.RecordID == "" {
		t.Fatalf("recordId should be set")
	}

	if len(store.recs) != 1 || store.recs[0].ID != resp.RecordID {
		t.Fatalf("record not saved: %+v", store.recs)
	}
	if len(archive.keys) != 1 || !strings.HasPrefix(archive.keys[0], "recordings/") ||
		!strings.HasSuffix(archive.keys[0], resp.RecordID+".webm") {
		t.Fatalf("unexpected archive keys %v", archive.keys)
	}
	if archive.contentTypes[0] != "audio/webm" || !archive.hadDeadline {
		t.Fatalf("upload content type %q, deadline %v", archive.contentTypes[0], archive.hadDeadline)
	}
	if store.recs[0].AudioKey != archive.keys[0] {
		t.Fatalf("audio key not linked: %q", store.recs[0].AudioKey)
	}
}

func TestTTS_Validation(t *testing.T) {
	srv := newTestServer(config.Config{}, Deps{Synthesizer: &fakeSynth{}})
	cases := []struct {
		name string
		body string
	}{
		{"empty text", `{"text":"   "}`},
		{"missing text", `{}`},
		{"bad gender", `{"text":"hello","gender":"robot"}`},
		{"too long", `{"text":"` + strings.Repeat("a", 2001) + `"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(tc.body))
			r.Header.Set("Content-Type", "application/json")
			w := serve(srv, r)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestTTS_ReturnsAudio(t *testing.T) {
	fs := &fakeSynth{}
	srv := newTestServer(config.Config{}, Deps{Synthesizer: fs})
	r := httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(`{"text":" Please sit down. ","gender":"Male"}`))
	r.Header.Set("Content-Type", "application/json")
	w := serve(srv, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Fatalf("content type = %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("cache control = %q", got)
	}
	if fs.gotText != "Please sit down." || fs.gotGender != tts.Male {
		t.Fatalf("unexpected synth input %q %q", fs.gotText, fs.gotGender)
	}
}

func TestTTS_NotConfigured(t *testing.T) {
	srv := newTestServer(config.Config{}, Deps{})
	r := httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(`{"text":"hello"}`))
	r.Header.Set("Content-Type", "application/json")
	if w := serve(srv, r); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	srv := newTestServer(config.Config{AuthToken: "secret"}, Deps{Records: &memStore{}})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/records", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/records", nil)
	r.Header.Set("Authorization", "Bearer secret")
	if w := serve(srv, r); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if w := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil)); w.Code != http.StatusOK {
		t.Fatalf("healthz should stay open, got %d", w.Code)
	}
}

func TestRecords_GetMissing(t *testing.T) {
	srv := newTestServer(config.Config{}, Deps{Records: &memStore{}})
	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/records/does-not-exist", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRecords_ListAndClear(t *testing.T) {
	store := &memStore{recs: []records.Record{{ID: "a"}, {ID: "b"}}}
	srv := newTestServer(config.Config{}, Deps{Records: store})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/records?limit=5", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list []records.Record
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list) != 2 {
		t.Fatalf("unexpected list %s (%v)", w.Body.String(), err)
	}

	if w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/records?limit=x", nil)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}

	if w := serve(srv, httptest.NewRequest(http.MethodDelete, "/api/records", nil)); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if len(store.recs) != 0 {
		t.Fatalf("records not cleared")
	}
}

type failingStore struct{ memStore }

func (f *failingStore) List(context.Context, int) ([]records.Record, error) {
	return nil, errors.New("disk I/O error")
}

func TestServer_ServerErrorLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	srv := New(config.Config{}, Deps{Records: &failingStore{}}, zerolog.New(&buf))

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/records", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if got := decodeError(t, w)["code"]; got != "INTERNAL_ERROR" {
		t.Fatalf("code = %q", got)
	}
	logs := buf.String()
	if n := strings.Count(logs, `"level":"error"`); n != 1 {
		t.Fatalf("expected one error line, got %d:\n%s", n, logs)
	}
	if !strings.Contains(logs, "disk I/O error") || !strings.Contains(logs, `"code":"INTERNAL_ERROR"`) {
		t.Fatalf("error line missing cause or code:\n%s", logs)
	}
}
