// Package qrcode renders the QR code image that points at a profile's
// public page. A thin wrapper around github.com/skip2/go-qrcode that pins
// our conventions: PNG output, high error correction, fixed file layout
// under the upload directory.
package qrcode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	skipqrcode "github.com/skip2/go-qrcode"
)

// ErrEmptyContent is returned when there is no URL to encode.
var ErrEmptyContent = errors.New("qrcode: content is empty")

const (
	// imageSize is the PNG edge length in pixels. 1000px scans reliably
	// when printed on a physical business card.
	imageSize = 1000

	qrSubdir = "qrcodes"
)

// Generator writes QR code PNGs under <dir>/qrcodes/.
type Generator struct {
	dir string
}

// New returns a Generator rooted at the upload directory.
func New(dir string) *Generator {
	return &Generator{dir: dir}
}

// Generate renders profileURL as a PNG named after the profile ID and
// returns the public URL path the frontend serves it from.
//
// Callers treat failure here as non-fatal: a profile without a QR image is
// still a valid profile, and RegenerateQRCode can fill the gap later.
func (g *Generator) Generate(profileURL, profileID string) (string, error) {
	if profileURL == "" {
		return "", ErrEmptyContent
	}

	dir := filepath.Join(g.dir, qrSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("qrcode: creating directory: %w", err)
	}

	path := filepath.Join(dir, profileID+".png")
	if err := skipqrcode.WriteFile(profileURL, skipqrcode.High, imageSize, path); err != nil {
		return "", fmt.Errorf("qrcode: writing image: %w", err)
	}

	return "/uploads/" + qrSubdir + "/" + profileID + ".png", nil
}

// Delete removes the profile's QR image. A missing file is not an error —
// generation is best-effort, so the file may never have existed.
func (g *Generator) Delete(profileID string) error {
	path := filepath.Join(g.dir, qrSubdir, profileID+".png")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("qrcode: removing image: %w", err)
	}
	return nil
}
