// Package blob uploads media to a content-addressed blob store and runs the
// consent-gated sequential batch uploads the content services depend on.
package blob

import (
	"context"
	"os"
	"strings"

	"github.com/culturebridge/nomadstr/pkg/signer"
	"github.com/culturebridge/nomadstr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// Descriptor is what a store returns for a stored blob. Hash is a sha256 of
// the bytes and doubles as the deduplication key for selective-attachment
// operations.
type Descriptor struct {
	URL      string `json:"url"`
	Hash     string `json:"sha256"`
	Size     int64  `json:"size"`
	MimeType string `json:"type"`
}

// Store is a content-addressed blob store. Uploads are authorized with the
// same signer that will sign the eventual content event.
type Store interface {
	Upload(ctx context.Context, sgn signer.Signer, name, mimeType string, data []byte) (Descriptor, error)
}

// MediaType buckets a mime type into the attachment categories the content
// model uses.
func MediaType(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	default:
		return "image"
	}
}
