// Package httpstore implements the attachment store contract against an
// HTTP document-store endpoint.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"

	coreconfig "ledgerbot/core/config"
	"ledgerbot/core/logger"
	tgcore "ledgerbot/core/telegram"
	"ledgerbot/storage"
	"log/slog"
)

// Client uploads documents to the configured document-store endpoint.
type Client struct {
	endpoint  string
	authToken string
	http      *http.Client
}

// NewClient builds a Client from storage configuration. The underlying HTTP
// client retries transient network failures.
func NewClient(cfg coreconfig.StorageConfig) *Client {
	return &Client{
		endpoint:  cfg.Endpoint,
		authToken: cfg.AuthToken,
		http:      tgcore.BuildHTTPClient(),
	}
}

// Upload stores the document under the given folder and returns its id and
// public link.
func (c *Client) Upload(ctx context.Context, data []byte, folderID, mimeType string) (*storage.File, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("httpstore: endpoint not configured")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("httpstore: empty payload")
	}

	name := uuid.NewString()
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		name += exts[len(exts)-1]
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("httpstore: build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("httpstore: write payload: %w", err)
	}
	if folderID != "" {
		if err := mw.WriteField("folder_id", folderID); err != nil {
			return nil, fmt.Errorf("httpstore: write folder field: %w", err)
		}
	}
	if err := mw.WriteField("content_type", mimeType); err != nil {
		return nil, fmt.Errorf("httpstore: write type field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("httpstore: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/files", body)
	if err != nil {
		return nil, fmt.Errorf("httpstore: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.STORE.Error("upload failed",
			slog.String("event", "store.upload"),
			slog.String("folder_id", folderID),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("httpstore: upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		logger.STORE.Error("upload rejected",
			slog.String("event", "store.upload"),
			slog.String("folder_id", folderID),
			slog.Int("http_code", resp.StatusCode),
		)
		return nil, fmt.Errorf("httpstore: upload status %s", resp.Status)
	}

	var file storage.File
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, fmt.Errorf("httpstore: decode response: %w", err)
	}

	logger.STORE.Info("document uploaded",
		slog.String("event", "store.upload"),
		slog.String("folder_id", folderID),
		slog.String("file_id", file.FileID),
		slog.Duration("duration", logger.Took(start)),
	)
	return &file, nil
}

var _ storage.Uploader = (*Client)(nil)
