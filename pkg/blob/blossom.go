package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/culturebridge/nomadstr/pkg/signer"
	sha256 "github.com/minio/sha256-simd"
	"github.com/nbd-wtf/go-nostr"
)

// KindBlossomAuth is the blob upload authorization event kind.
const KindBlossomAuth = 24242

// BlossomStore talks to a Blossom-style media server: the raw bytes go in a
// PUT with a signed authorization event carrying the content hash.
type BlossomStore struct {
	Server string
	Client *http.Client
}

func NewBlossomStore(server string) *BlossomStore {
	return &BlossomStore{
		Server: strings.TrimRight(server, "/"),
		Client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (b *BlossomStore) authorization(ctx context.Context, sgn signer.Signer, name, hash string) (header string, err error) {
	ev := &nostr.Event{
		Kind:      KindBlossomAuth,
		CreatedAt: nostr.Now(),
		Content:   "Upload " + name,
		Tags: nostr.Tags{
			{"t", "upload"},
			{"x", hash},
			{"expiration", strconv.FormatInt(time.Now().Add(5*time.Minute).Unix(), 10)},
		},
	}
	if err = sgn.SignEvent(ctx, ev); chk.E(err) {
		return
	}
	var raw []byte
	if raw, err = json.Marshal(ev); chk.E(err) {
		return
	}
	return "Nostr " + base64.StdEncoding.EncodeToString(raw), nil
}

func (b *BlossomStore) Upload(ctx context.Context, sgn signer.Signer, name, mimeType string, data []byte) (d Descriptor, err error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	var auth string
	if auth, err = b.authorization(ctx, sgn, name, hash); err != nil {
		return
	}
	var req *http.Request
	req, err = http.NewRequestWithContext(ctx, http.MethodPut,
		b.Server+"/upload", bytes.NewReader(data))
	if chk.E(err) {
		return
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", mimeType)
	req.ContentLength = int64(len(data))
	var res *http.Response
	if res, err = b.Client.Do(req); chk.E(err) {
		return
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return d, fmt.Errorf("blossom upload of %s failed: %s", name, res.Status)
	}
	if err = json.NewDecoder(res.Body).Decode(&d); chk.E(err) {
		return
	}
	if d.Hash == "" {
		d.Hash = hash
	}
	if d.Size == 0 {
		d.Size = int64(len(data))
	}
	if d.MimeType == "" {
		d.MimeType = mimeType
	}
	log.D.F("uploaded %s (%d bytes) as %s", name, len(data), d.URL)
	return d, nil
}
