package wix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"wix-store-migrator/internal/ports"
)

// maxAttachmentSize bounds downloaded attachment content
const maxAttachmentSize = 50 << 20

var errAttachmentTooLarge = errors.New("attachment exceeds size limit")

// HTTPFileTransfer moves attachment bytes between a download URL and a signed upload URL
type HTTPFileTransfer struct {
	httpClient *http.Client
}

// NewHTTPFileTransfer creates a file transfer with its own timeout
func NewHTTPFileTransfer(httpClient *http.Client) *HTTPFileTransfer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &HTTPFileTransfer{httpClient: httpClient}
}

var _ ports.FileTransfer = (*HTTPFileTransfer)(nil)

// Download fetches the content behind url
func (t *HTTPFileTransfer) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", &ports.RemoteError{Op: "attachments.download", Status: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read attachment: %w", err)
	}
	if len(data) > maxAttachmentSize {
		return nil, "", errAttachmentTooLarge
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Upload PUTs content to a signed URL; any 200 or 201 counts as success
func (t *HTTPFileTransfer) Upload(ctx context.Context, signedURL string, content []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signedURL, bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ports.RemoteError{Op: "attachments.upload", Status: resp.StatusCode, Body: string(body)}
	}
	return nil
}
