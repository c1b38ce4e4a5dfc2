package storage

import (
	"context"
	"fmt"
	"io"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// FileUploader is the object-storage abstraction. The production
// implementation targets Cloudflare R2. Archives are only ever written;
// re-archiving a tournament overwrites the same key.
type FileUploader interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	GetPublicURL(key string) string
}

// ResultArchiver persists a finalized tournament's result sheet as a JSON
// object so standings survive independently of the relational store.
type ResultArchiver interface {
	ArchiveResults(ctx context.Context, tournamentID int, payload io.Reader) (*UploadResult, error)
}

type resultArchiver struct {
	uploader FileUploader
}

func NewResultArchiver(uploader FileUploader) ResultArchiver {
	return &resultArchiver{uploader: uploader}
}

func (a *resultArchiver) ArchiveResults(ctx context.Context, tournamentID int, payload io.Reader) (*UploadResult, error) {
	key := fmt.Sprintf("tournaments/%d/results.json", tournamentID)
	result, err := a.uploader.Upload(ctx, key, "application/json", payload)
	if err != nil {
		return nil, fmt.Errorf("archive results for tournament %d: %w", tournamentID, err)
	}
	return result, nil
}
