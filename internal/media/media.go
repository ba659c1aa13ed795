// Package media stores uploaded recipe images on local disk.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const imageDir = "recipes/images"

var ErrInvalidImage = errors.New("image must be a base64 data URI of a png, jpeg, gif or webp")

var extensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

type Store struct {
	dir       string
	urlPrefix string
}

// NewStore roots files under dir and builds URLs under urlPrefix.
func NewStore(dir, urlPrefix string) *Store {
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &Store{dir: dir, urlPrefix: urlPrefix}
}

// SaveDataURI decodes "data:image/png;base64,..." and writes it under a new
// random name. It returns the stored name relative to the media root.
func (s *Store) SaveDataURI(dataURI string) (string, error) {
	header, payload, ok := strings.Cut(dataURI, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return "", ErrInvalidImage
	}
	mime := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64"))
	ext, ok := extensions[mime]
	if !ok {
		return "", ErrInvalidImage
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return "", ErrInvalidImage
	}

	name := path.Join(imageDir, uuid.New().String()+"."+ext)
	full := filepath.Join(s.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return name, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Store) Remove(name string) error {
	if name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(name)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

// URL returns the public URL of a stored name, or "" for no image.
func (s *Store) URL(name string) string {
	if name == "" {
		return ""
	}
	return s.urlPrefix + name
}

func (s *Store) Dir() string {
	return s.dir
}
