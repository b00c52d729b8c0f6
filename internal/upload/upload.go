// Package upload stores user-submitted avatar images on local disk.
//
// Validation is pure: Store takes the bytes and the declared MIME type and
// either persists the file or returns a typed rejection. The HTTP layer
// owns multipart parsing; this package never sees a request.
package upload

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/xid"
)

// MaxFileSize caps avatar uploads at 5 MiB.
const MaxFileSize = 5 << 20

const avatarSubdir = "avatars"

var (
	ErrNotAnImage = errors.New("upload: only image files are allowed")
	ErrTooLarge   = errors.New("upload: file exceeds the 5MB limit")
	ErrEmptyFile  = errors.New("upload: file is empty")
)

// StoredFile describes a persisted upload.
type StoredFile struct {
	// URL is the public path the file is served from.
	URL string
	// Path is the location on disk, for cleanup.
	Path string
}

// Storage writes avatar files under <dir>/avatars/.
type Storage struct {
	dir string
}

// New returns a Storage rooted at the upload directory.
func New(dir string) *Storage {
	return &Storage{dir: dir}
}

// Store validates and persists one avatar image, returning its public URL.
//
// The declared MIME type is cross-checked against the actual bytes with
// http.DetectContentType — a renamed .exe does not become an image by
// claiming image/png in the multipart header.
//
// Filenames are fresh xids, never the client's name: no path traversal, no
// collisions, no encoding surprises.
func (s *Storage) Store(data []byte, declaredMimeType string) (*StoredFile, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if len(data) > MaxFileSize {
		return nil, ErrTooLarge
	}
	if !strings.HasPrefix(declaredMimeType, "image/") {
		return nil, ErrNotAnImage
	}

	detected := http.DetectContentType(data)
	if !strings.HasPrefix(detected, "image/") {
		return nil, ErrNotAnImage
	}

	dir := filepath.Join(s.dir, avatarSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: creating directory: %w", err)
	}

	name := xid.New().String() + extensionFor(detected)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("upload: writing file: %w", err)
	}

	return &StoredFile{
		URL:  "/uploads/" + avatarSubdir + "/" + name,
		Path: path,
	}, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".img"
	}
}
