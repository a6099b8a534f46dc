package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_SaveReadDelete(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	owner := uuid.New()

	info, err := s.Save(ctx, owner, "receipt.png", bytes.NewReader([]byte("png-bytes")))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(info.Path, owner.String()+"/"))
	assert.True(t, strings.HasSuffix(info.Path, "_receipt.png"))
	assert.Equal(t, "receipt.png", info.Name)
	assert.Equal(t, int64(9), info.Size)

	data, err := s.ReadAll(ctx, info.Path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	rc, err := s.Open(ctx, info.Path)
	require.NoError(t, err)
	streamed, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, data, streamed)

	require.NoError(t, s.Delete(ctx, info.Path))
	_, err = s.ReadAll(ctx, info.Path)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(ctx, info.Path), "deleting twice is fine")
}

func TestLocalStorage_SameNameDoesNotCollide(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	owner := uuid.New()

	a, err := s.Save(context.Background(), owner, "stmt.pdf", strings.NewReader("a"))
	require.NoError(t, err)
	b, err := s.Save(context.Background(), owner, "stmt.pdf", strings.NewReader("b"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Path, b.Path)
}

func TestLocalStorage_RejectsEscapingPaths(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{"", "../etc/passwd", "a/../../x", "/etc/passwd"} {
		t.Run(p, func(t *testing.T) {
			_, err := s.ReadAll(context.Background(), p)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"normal.pdf", "normal.pdf"},
		{"../../etc/passwd", "____etc_passwd"},
		{"a:b*c?.png", "a_b_c_.png"},
		{"   ", "upload"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFilename(tt.input))
		})
	}
}
