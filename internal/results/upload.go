package results

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/specialistvlad/segmentgridgo/internal/ctxlog"
)

// Uploader copies run artifacts to pre-signed URLs.
type Uploader struct {
	client *http.Client
}

// NewUploader returns an Uploader. A nil client uses http.DefaultClient.
func NewUploader(client *http.Client) *Uploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Uploader{client: client}
}

// Upload PUTs the file at path to url.
func (u *Uploader) Upload(ctx context.Context, path, url string) error {
	logger := ctxlog.FromContext(ctx).With("action", "upload")

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file '%s': %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to get file stats for '%s': %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, file)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	logger.Info("Uploading artifact", "source", path, "size", stat.Size(), "contentType", contentType)
	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload failed with status: %s", resp.Status)
	}
	logger.Info("Successfully uploaded artifact", "status", resp.Status)
	return nil
}
