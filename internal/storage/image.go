// Package storage keeps uploaded screenshots and synthesized replies on the
// local filesystem.
package storage

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ImageURLPrefix is the public route of stored screenshots.
const ImageURLPrefix = "/api/v1/images/"

var dataURIPattern = regexp.MustCompile(`^data:([\w.+-]+/[\w.+-]+);base64,(.+)$`)

// ErrInvalidDataURI is returned for payloads that are not base64 data URIs.
var ErrInvalidDataURI = errors.New("Invalid base64 image format")

// ImageStore keeps the most recent screenshot. Each save overwrites it.
type ImageStore struct {
	dir string
}

// NewImageStore creates the directory if needed.
func NewImageStore(dir string) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create image dir %s", dir)
	}
	return &ImageStore{dir: dir}, nil
}

// Dir returns the directory served under ImageURLPrefix.
func (s *ImageStore) Dir() string { return s.dir }

// Save decodes a data URI, checks that it holds an image and writes it as
// latest.<ext>. It returns the public URL of the file.
func (s *ImageStore) Save(dataURI string) (string, error) {
	m := dataURIPattern.FindStringSubmatch(strings.TrimSpace(dataURI))
	if m == nil {
		return "", ErrInvalidDataURI
	}

	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", errors.Wrap(ErrInvalidDataURI, err.Error())
	}
	if _, err := imaging.Decode(bytes.NewReader(data)); err != nil {
		return "", errors.Wrap(err, "uploaded data is not a supported image")
	}

	name := "latest." + extensionFor(m[1])
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", name)
	}
	return ImageURLPrefix + name, nil
}

// LoadDataURI reads a stored screenshot back as a data URI. ref is a public
// URL or a bare file name.
func (s *ImageStore) LoadDataURI(ref string) (string, error) {
	name := filepath.Base(strings.TrimSpace(ref))
	if name == "." || name == "/" || name == "" {
		return "", errors.Errorf("Screenshot not found: %s", ref)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Errorf("Screenshot not found: %s", name)
		}
		return "", errors.Wrapf(err, "failed to read %s", name)
	}

	return "data:" + mimeFor(name) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// extensionFor maps an image MIME type to a file extension.
func extensionFor(mime string) string {
	_, sub, ok := strings.Cut(mime, "/")
	if !ok || sub == "" {
		return "png"
	}
	if sub == "jpeg" {
		return "jpg"
	}
	return sub
}

// mimeFor maps a stored file name back to its image MIME type.
func mimeFor(name string) string {
	switch ext := strings.TrimPrefix(filepath.Ext(name), "."); ext {
	case "", "png":
		return "image/png"
	case "jpg":
		return "image/jpeg"
	default:
		return "image/" + ext
	}
}
