package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimal PNG signature + IHDR start is enough for content sniffing
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func TestDiskPhotoStore_SaveAndRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskPhotoStore(dir)
	require.NoError(t, err)

	ref, err := s.Save("3f1c-user", "selfie.jpg", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "/uploads/3f1c-user-"))
	assert.True(t, strings.HasSuffix(ref, ".png"))

	name := strings.TrimPrefix(ref, PublicPrefix)
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	require.NoError(t, s.Remove(ref))
	_, err = os.Stat(filepath.Join(dir, name))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, s.Remove(ref))
	assert.NoError(t, s.Remove("/etc/passwd"))
}

func TestDiskPhotoStore_RejectsNonImage(t *testing.T) {
	s, err := NewDiskPhotoStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Save("u", "notes.txt", strings.NewReader("just some text"))
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = s.Save("u", "empty.jpg", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestDiskPhotoStore_ExtensionFollowsContent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskPhotoStore(dir)
	require.NoError(t, err)

	// an ICO header sniffs as image/x-icon, which is not a stored type
	ico := append([]byte("\x00\x00\x01\x00"), []byte("<html><script>alert(1)</script></html>")...)
	_, err = s.Save("u-1", "selfie.html", bytes.NewReader(ico))
	assert.ErrorIs(t, err, ErrNotImage)

	ref, err := s.Save("u-1", "selfie.html", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, ".png"), ref)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".png", filepath.Ext(entries[0].Name()))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "abc-123", safeName("abc-123"))
	assert.Equal(t, "etcpasswd", safeName("../etc/passwd"))
	assert.Equal(t, "anon", safeName("../"))
}
