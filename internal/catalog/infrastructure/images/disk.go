// Package images keeps uploaded product images on local disk.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/dmehra2102/shopeasy/internal/catalog/domain"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("images: create %s: %w", dir, err)
	}
	return &DiskStore{dir: dir}, nil
}

// Save writes body to a uuid-prefixed copy of filename. At most
// domain.MaxImageSize bytes are accepted.
func (s *DiskStore) Save(ctx context.Context, filename string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := uuid.NewString() + "_" + sanitize(filename)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("images: create %s: %w", name, err)
	}
	n, err := io.Copy(f, io.LimitReader(body, domain.MaxImageSize+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > domain.MaxImageSize {
		err = domain.ErrInvalidImage
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return name, nil
}

func (s *DiskStore) Remove(_ context.Context, name string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(name)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func sanitize(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	if base == "" || base == "." || base == ".." {
		return "image"
	}
	return base
}
