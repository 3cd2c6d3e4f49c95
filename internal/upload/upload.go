// Package upload validates document uploads before they are sent for extraction.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/unicode/norm"
)

// Validation failures. Their text is returned to API callers verbatim.
var (
	ErrMissingImage    = errors.New("Missing image data")
	ErrNoFileSelected  = errors.New("No file selected")
	ErrInvalidFileType = errors.New("Invalid file type")
)

// AllowedExtensions holds the accepted document extensions, without the dot.
var AllowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"pdf":  {},
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Upload is a validated document ready for extraction.
type Upload struct {
	Filename    string
	Ext         string
	MimeType    string
	SniffedType string
	Data        []byte
}

// Read finds the file part named field in a multipart request and validates
// it. Parts before it are skipped; the first file part with that name wins.
func Read(r *http.Request, field string) (*Upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, ErrMissingImage
		}
		return nil, fmt.Errorf("read multipart: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingImage
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart: %w", err)
		}

		if part.FormName() != field {
			part.Close()
			continue
		}
		name, isFile := partFilename(part)
		if !isFile {
			part.Close()
			continue
		}

		up, err := validate(name)
		if err != nil {
			part.Close()
			return nil, err
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", field, err)
		}
		up.Data = data
		up.SniffedType = mimetype.Detect(data).String()
		return up, nil
	}
}

func validate(name string) (*Upload, error) {
	if name == "" {
		return nil, ErrNoFileSelected
	}

	secured := SecureFilename(name)
	ext := NormalizeExt(filepath.Ext(secured))
	if _, ok := AllowedExtensions[ext]; !ok {
		return nil, ErrInvalidFileType
	}

	return &Upload{
		Filename: secured,
		Ext:      ext,
		MimeType: MimeType(ext),
	}, nil
}

// partFilename reports the raw filename parameter and whether the part carried
// one at all. multipart.Part.FileName cannot tell an empty name from none.
func partFilename(p *multipart.Part) (string, bool) {
	_, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
	if err != nil {
		return "", false
	}
	name, ok := params["filename"]
	return name, ok
}

// MimeType classifies by extension only: PDFs are sent as PDFs, every image
// type is declared as PNG.
func MimeType(ext string) string {
	if NormalizeExt(ext) == "pdf" {
		return "application/pdf"
	}
	return "image/png"
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// SecureFilename reduces a client supplied name to a flat ASCII filename.
// Directory components are flattened, not resolved, and the result may be
// empty.
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}

	name = strings.ReplaceAll(b.String(), "/", " ")
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}
