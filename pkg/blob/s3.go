package blob

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/culturebridge/nomadstr/pkg/signer"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	sha256 "github.com/minio/sha256-simd"
)

// S3Store writes blobs into an S3-compatible bucket, addressed by content
// hash. It serves self-hosted deployments that would rather not depend on a
// public media server; the signer is unused because bucket credentials
// already authenticate the writer.
type S3Store struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the base the bucket is served from, e.g. a CDN host.
	PublicURL string
}

func NewS3Store(opts S3Options) (s *S3Store, err error) {
	var cl *minio.Client
	cl, err = minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if chk.E(err) {
		return nil, err
	}
	return &S3Store{client: cl, bucket: opts.Bucket, publicURL: opts.PublicURL}, nil
}

func (s *S3Store) Upload(ctx context.Context, _ signer.Signer, name, mimeType string, data []byte) (d Descriptor, err error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	_, err = s.client.PutObject(ctx, s.bucket, hash, bytes.NewReader(data),
		int64(len(data)), minio.PutObjectOptions{
			ContentType: mimeType,
			UserMetadata: map[string]string{
				"original-name": name,
			},
		})
	if chk.E(err) {
		return d, fmt.Errorf("s3 upload of %s failed: %w", name, err)
	}
	return Descriptor{
		URL:      fmt.Sprintf("%s/%s", s.publicURL, hash),
		Hash:     hash,
		Size:     int64(len(data)),
		MimeType: mimeType,
	}, nil
}
