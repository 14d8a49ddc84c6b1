package blob

import (
	"context"
	"time"

	"github.com/culturebridge/nomadstr/pkg/signer"
	"github.com/google/uuid"
)

// assumed effective upstream rate for the consent-time estimate
const estimateBytesPerSecond = 256 * 1024

// FileInput is a local file queued for upload.
type FileInput struct {
	Name     string
	MimeType string
	Data     []byte
}

// UploadedFile is a successfully stored attachment-to-be.
type UploadedFile struct {
	ID       string
	URL      string
	Hash     string
	Name     string
	Size     int64
	MimeType string
	// Type is image, video or audio.
	Type string
}

type FailedFile struct {
	Name  string
	Error string
}

// ConsentRequest summarizes what the batch will cost before anything leaves
// the machine.
type ConsentRequest struct {
	FileCount     int
	TotalSize     int64
	EstimatedTime time.Duration
}

// ConsentFunc is the human-in-the-loop gate. It blocks until the user
// decides; returning false abandons the whole batch. A nil ConsentFunc means
// the caller has no files worth gating or runs non-interactively, and the
// batch proceeds.
type ConsentFunc func(ConsentRequest) bool

type Progress struct {
	// OverallProgress is in [0,1] and only ever increases.
	OverallProgress  float64
	CurrentFileIndex int
	TotalFiles       int
	CurrentFile      string
}

type ProgressFunc func(Progress)

// BatchResult reports the outcome per file. A batch with at least one
// success is a partial success the caller proceeds with.
type BatchResult struct {
	SuccessCount  int
	FailureCount  int
	Uploaded      []UploadedFile
	Failed        []FailedFile
	UserCancelled bool
}

// Uploader runs consent-gated batch uploads against a Store.
type Uploader struct {
	Store Store
}

// UploadBatch uploads the files one at a time. Sequential on purpose: the
// progress trace is deterministic and the store is never hammered with a
// parallel burst. Per-file failures are tolerated; the caller decides what an
// all-failed batch means.
func (u *Uploader) UploadBatch(ctx context.Context, files []FileInput, sgn signer.Signer, consent ConsentFunc, onProgress ProgressFunc) (res BatchResult) {
	if len(files) == 0 {
		return
	}
	if u.Store == nil {
		for _, f := range files {
			res.FailureCount++
			res.Failed = append(res.Failed, FailedFile{Name: f.Name, Error: "no blob store configured"})
		}
		return
	}
	var total int64
	for _, f := range files {
		total += int64(len(f.Data))
	}
	if consent != nil {
		ok := consent(ConsentRequest{
			FileCount:     len(files),
			TotalSize:     total,
			EstimatedTime: time.Duration(total/estimateBytesPerSecond+1) * time.Second,
		})
		if !ok {
			log.I.Ln("upload batch cancelled by user")
			res.UserCancelled = true
			return
		}
	}
	notify := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}
	for i, f := range files {
		notify(Progress{
			OverallProgress:  float64(i) / float64(len(files)),
			CurrentFileIndex: i,
			TotalFiles:       len(files),
			CurrentFile:      f.Name,
		})
		d, e := u.Store.Upload(ctx, sgn, f.Name, f.MimeType, f.Data)
		if chk.D(e) {
			res.FailureCount++
			res.Failed = append(res.Failed, FailedFile{Name: f.Name, Error: e.Error()})
			continue
		}
		res.SuccessCount++
		res.Uploaded = append(res.Uploaded, UploadedFile{
			ID:       uuid.NewString(),
			URL:      d.URL,
			Hash:     d.Hash,
			Name:     f.Name,
			Size:     d.Size,
			MimeType: d.MimeType,
			Type:     MediaType(d.MimeType),
		})
	}
	notify(Progress{
		OverallProgress: 1,
		TotalFiles:      len(files),
	})
	return
}
