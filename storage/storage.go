// Package storage defines the contract for the external document store that
// receipt attachments are uploaded to.
package storage

import "context"

// File describes an uploaded document.
type File struct {
	FileID     string `json:"id"`
	PublicLink string `json:"link"`
}

// Uploader stores a document under a destination folder. An empty folderID
// uploads without a parent folder.
type Uploader interface {
	Upload(ctx context.Context, data []byte, folderID, mimeType string) (*File, error)
}
