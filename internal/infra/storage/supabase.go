// Package storage archives uploaded recordings in object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"sync"
	"time"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"
)

// Config selects the Supabase project and bucket.
type Config struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// SupabaseArchive stores recordings in a Supabase Storage bucket.
type SupabaseArchive struct {
	client *supabase.Client
	bucket string

	// The storage client keeps upload options in a shared header map, so uploads
	// must not overlap.
	mu sync.Mutex
}

// NewSupabaseArchive constructs an archive. URL and service role key are required.
func NewSupabaseArchive(cfg Config) (*SupabaseArchive, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, errors.New("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "recordings"
	}
	client, err := supabase.NewClient(strings.TrimRight(cfg.URL, "/"), cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create Supabase client: %w", err)
	}
	return &SupabaseArchive{client: client, bucket: cfg.Bucket}, nil
}

// Upload writes data under key in the configured bucket with the given MIME type.
// An empty contentType is inferred from the key's extension. The call gives up
// when ctx ends; the SDK request itself cannot be cancelled and finishes in the
// background.
func (s *SupabaseArchive) Upload(ctx context.Context, key, contentType string, data []byte) error {
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	opts := storage_go.FileOptions{ContentType: &contentType}

	done := make(chan error, 1)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data), opts)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to upload to Supabase: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("upload to Supabase: %w", ctx.Err())
	}
}

// ContentTypeFor returns the audio MIME type implied by name's extension,
// or application/octet-stream.
func ContentTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	for mt, e := range audioExt {
		if e == ext && mt != "audio/x-wav" {
			return mt
		}
	}
	return "application/octet-stream"
}

// ObjectKey builds recordings/YYYY/MM/DD/<id><ext> with the extension derived
// from the upload's content type (falling back to the original filename).
func ObjectKey(id, contentType, filename string, at time.Time) string {
	ext := path.Ext(filename)
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if known, ok := audioExt[mt]; ok {
			ext = known
		}
	}
	if ext == "" {
		ext = ".webm"
	}
	return path.Join("recordings", at.UTC().Format("2006/01/02"), id+ext)
}

var audioExt = map[string]string{
	"audio/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/mpeg":  ".mp3",
	"audio/mp4":   ".m4a",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
}
