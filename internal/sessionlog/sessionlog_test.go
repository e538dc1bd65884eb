package sessionlog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRawLayout(t *testing.T) {
	root := t.TempDir()
	s, err := OpenNamed(root, "dialogue-1")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2014, 6, 1, 15, 0, 0, 0, time.UTC) }

	p, err := s.WriteRaw("google-directions", []byte(`{"status":"OK"}`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "dialogue-1", "google-directions-2014-06-01T15:00:00.000000Z.json"), p)

	p2, err := s.WriteRaw("google-directions", []byte(`{}`))
	require.NoError(t, err)
	assert.NotEqual(t, p, p2)

	body, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, `{"status":"OK"}`, string(body))
}

func TestClosedSessionRejectsWrites(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.WriteRaw("x", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRecordThroughContext(t *testing.T) {
	assert.NoError(t, Record(context.Background(), "nobody", []byte("x")))

	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()
	ctx := WithRecorder(context.Background(), s)
	require.NoError(t, Record(ctx, "openweathermap", []byte(`{"cod":200}`)))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "openweathermap-"))
}
