// Package media validates, compresses and uploads user images.
package media

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// MaxUploadSize is the size ceiling for a selected image.
const MaxUploadSize = 10 << 20

// AllowedTypes is the content-type allow-list.
var AllowedTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/webp"}

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
)

// ValidationError reports why a file was rejected.
type ValidationError struct {
	Name string
	Err  error
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.Err, ErrUnsupportedType):
		return fmt.Sprintf("%s: only JPEG, PNG and WebP images are allowed", e.Name)
	case errors.Is(e.Err, ErrTooLarge):
		return fmt.Sprintf("%s: image must be smaller than 10MB", e.Name)
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// File is a selected image.
type File struct {
	Name string
	Type string
	Data []byte
}

// Size returns the file size in bytes.
func (f File) Size() int64 { return int64(len(f.Data)) }

// Open reads a file from disk and determines its content type from the
// extension, falling back to content sniffing.
func Open(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	typ := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if typ == "" {
		typ = http.DetectContentType(data)
	}
	if i := strings.IndexByte(typ, ';'); i >= 0 {
		typ = strings.TrimSpace(typ[:i])
	}
	return File{Name: filepath.Base(path), Type: typ, Data: data}, nil
}

// Validate checks the type allow-list and the size ceiling.
func Validate(f File) error {
	allowed := false
	for _, t := range AllowedTypes {
		if strings.EqualFold(f.Type, t) {
			allowed = true
			break
		}
	}
	if !allowed {
		return &ValidationError{Name: f.Name, Err: ErrUnsupportedType}
	}
	if f.Size() > MaxUploadSize {
		return &ValidationError{Name: f.Name, Err: ErrTooLarge}
	}
	return nil
}
