package workflow

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"ispeak/internal/services"
)

const (
	fieldFile        = "file"
	fieldUserID      = "user_id"
	octetStreamMIME  = "application/octet-stream"
	sniffHeaderBytes = 512
)

// File is the recording to submit. Open is called once per attempt so a
// retry re-reads the source.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// FileFromPath describes a recording on disk. The content type is left
// empty and resolved during validation.
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat recording: %w", err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("recording %s is a directory", path)
	}
	return File{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// resolveContentType fills ContentType from the extension, then from the
// leading bytes.
func resolveContentType(f File) (string, error) {
	if ct := baseMIME(f.ContentType); ct != "" {
		return ct, nil
	}
	if ct := baseMIME(mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name)))); ct != "" {
		return ct, nil
	}
	if f.Open == nil {
		return "", nil
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open recording: %w", err)
	}
	defer rc.Close()
	header := make([]byte, sniffHeaderBytes)
	n, err := io.ReadFull(rc, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read recording header: %w", err)
	}
	return baseMIME(http.DetectContentType(header[:n])), nil
}

func baseMIME(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(value); err == nil {
		return strings.ToLower(mediaType)
	}
	return strings.ToLower(value)
}

// ValidateFile checks the recording before any network call and returns the
// resolved content type.
func ValidateFile(f File) (string, error) {
	if f.Open == nil {
		return "", services.Validation("File is required", map[string]string{fieldFile: "Required"})
	}
	if f.Size <= 0 {
		return "", services.Validation("File cannot be empty", map[string]string{fieldFile: "File cannot be empty"})
	}
	ct, err := resolveContentType(f)
	if err != nil {
		return "", services.New(services.CodeValidation, "File could not be read", err)
	}
	if !acceptedMIME(ct) {
		return "", services.Validation("File must be an audio or video file",
			map[string]string{fieldFile: "File must be an audio or video file"})
	}
	return ct, nil
}

func acceptedMIME(ct string) bool {
	return strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "video/") || ct == octetStreamMIME
}
