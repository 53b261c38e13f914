package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const maxUploadBytes = 5 << 20 // 5 MB

var allowedImageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// saveUpload stores one uploaded image under the configured upload directory
// and returns the stored file name. Names are generated server-side; the
// client-supplied name only contributes its extension.
func (h *Handlers) saveUpload(header *multipart.FileHeader) (string, error) {
	if header.Size > maxUploadBytes {
		return "", badRequest(fmt.Sprintf("file %s exceeds the %d byte limit", header.Filename, maxUploadBytes))
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := allowedImageExtensions[ext]; !ok {
		return "", badRequest(fmt.Sprintf("unsupported file type %q", ext))
	}

	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(h.config.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to prepare upload directory: %w", err)
	}

	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(h.config.UploadDir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, maxUploadBytes)); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return name, nil
}
