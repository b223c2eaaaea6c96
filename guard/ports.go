package guard

import (
	"context"
	"io"
)

// ChatSnapshot is what the chat API reported at the start of a cycle. An empty
// field means the API did not report it.
type ChatSnapshot struct {
	Title    string
	PhotoURL string
}

// PhotoUpdate is the result of setting the chat photo. PhotoURL is empty when
// the API response carried no displayable URL.
type PhotoUpdate struct {
	PhotoURL string
}

// ChatClient is the remote chat API.
type ChatClient interface {
	FetchChatMetadata(ctx context.Context, chatID int64) (ChatSnapshot, error)
	SetChatTitle(ctx context.Context, chatID int64, title string) error
	// GetUploadTarget returns the chat-specific URL the photo bytes are posted to.
	GetUploadTarget(ctx context.Context, chatID int64) (string, error)
	// SetChatPhoto applies a previously uploaded photo. uploadResult is the
	// opaque descriptor returned by ImageFetcher.UploadBytes.
	SetChatPhoto(ctx context.Context, chatID int64, uploadResult string) (PhotoUpdate, error)
}

// ImageFetcher moves raw image bytes over HTTP.
type ImageFetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
	UploadBytes(ctx context.Context, uploadURL string, data []byte) (string, error)
}

// CacheStore holds the last photo URL known to carry the canonical image and
// the scratch blob used while comparing a fresh download against it.
//
// GetCachedURL returns an error matching ErrCacheMiss when the slot was never
// written. RemoveTemp must succeed when no blob exists.
type CacheStore interface {
	GetCachedURL() (string, error)
	SetCachedURL(url string) error
	SaveTemp(data []byte) error
	OpenTemp() (io.ReadCloser, error)
	RemoveTemp() error
}

// ContentHasher digests a byte stream.
type ContentHasher interface {
	Sum(r io.Reader) (string, error)
	SumFile(path string) (string, error)
}
