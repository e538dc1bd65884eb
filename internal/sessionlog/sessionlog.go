// Package sessionlog stores the raw responses of external services in one
// directory per dialogue.
package sessionlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("sessionlog: session closed")

const stampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Session is an open dialogue directory.
type Session struct {
	mu     sync.Mutex
	dir    string
	closed bool
	now    func() time.Time
}

// Open creates <root>/<timestamp>-<uuid>/ and returns the session for it.
func Open(root string) (*Session, error) {
	return OpenNamed(root, time.Now().UTC().Format("20060102-150405")+"-"+uuid.NewString())
}

// OpenNamed creates <root>/<name>/.
func OpenNamed(root, name string) (*Session, error) {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sessionlog: create %s: %w", dir, err)
	}
	return &Session{dir: dir, now: time.Now}, nil
}

// Dir is the session directory.
func (s *Session) Dir() string { return s.dir }

// WriteRaw stores body as <provider>-<ISO timestamp>.json and returns the path.
func (s *Session) WriteRaw(provider string, body []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	name := provider + "-" + s.now().Format(stampLayout) + ".json"
	p := filepath.Join(s.dir, name)
	for i := 1; fileExists(p); i++ {
		p = filepath.Join(s.dir, fmt.Sprintf("%s-%s.%d.json", provider, s.now().Format(stampLayout), i))
	}
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return "", fmt.Errorf("sessionlog: write %s: %w", p, err)
	}
	return p, nil
}

// Close releases the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Recorder is what providers need from a session.
type Recorder interface {
	WriteRaw(provider string, body []byte) (string, error)
}

type ctxKey struct{}

// WithRecorder attaches r to ctx so providers can log the responses of the
// dialogue the call belongs to.
func WithRecorder(ctx context.Context, r Recorder) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// FromContext returns the attached recorder, or nil.
func FromContext(ctx context.Context) Recorder {
	r, _ := ctx.Value(ctxKey{}).(Recorder)
	return r
}

// Record writes body through the recorder in ctx, if any.
func Record(ctx context.Context, provider string, body []byte) error {
	r := FromContext(ctx)
	if r == nil {
		return nil
	}
	_, err := r.WriteRaw(provider, body)
	return err
}
