package tui

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"studybuddy-backend/internal/llm"
	"studybuddy-backend/internal/models"
)

// MaxAttachmentSize caps files staged with /attach; inline model payloads are limited.
const MaxAttachmentSize = 15 << 20

// LoadAttachment reads path into an attachment carrying a data URI. The MIME type comes
// from the extension, or from the content when the extension is unknown.
func LoadAttachment(path string) (*models.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxAttachmentSize {
		return nil, fmt.Errorf("%s is larger than %d MB", path, MaxAttachmentSize>>20)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if base, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = base
	}

	return &models.Attachment{
		Name:    filepath.Base(path),
		Type:    mimeType,
		DataURI: llm.EncodeDataURI(mimeType, data),
	}, nil
}
