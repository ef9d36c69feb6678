// Package storage keeps attendance selfies on local disk.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotImage = errors.New("only image files are allowed")

// PublicPrefix is where saved photos are served from.
const PublicPrefix = "/uploads/"

type DiskPhotoStore struct {
	dir string
	now func() time.Time
}

func NewDiskPhotoStore(dir string) (*DiskPhotoStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskPhotoStore{dir: dir, now: time.Now}, nil
}

func (s *DiskPhotoStore) Dir() string { return s.dir }

var extByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// Save sniffs r, rejects anything that is not one of the extByType images
// and returns the public reference ("/uploads/<file>"). The client's file
// name is ignored; the extension always follows the sniffed type.
func (s *DiskPhotoStore) Save(userID, _ string, r io.Reader) (string, error) {
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("read photo: %w", err)
	}
	if len(head) == 0 {
		return "", ErrNotImage
	}
	ext, ok := extByType[http.DetectContentType(head)]
	if !ok {
		return "", ErrNotImage
	}

	name := fmt.Sprintf("%s-%d-%s%s", safeName(userID), s.now().UnixMilli(), uuid.NewString()[:8], ext)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create photo: %w", err)
	}
	if _, err := io.Copy(f, br); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write photo: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close photo: %w", err)
	}
	return PublicPrefix + name, nil
}

// Remove deletes a photo by its public reference; unknown refs are ignored.
func (s *DiskPhotoStore) Remove(ref string) error {
	name := strings.TrimPrefix(ref, PublicPrefix)
	if name == ref || name == "" || strings.ContainsAny(name, `/\`) {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func safeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "anon"
	}
	return b.String()
}
