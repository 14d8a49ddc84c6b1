package orchestrate

// ResultStatus is the closed set of terminal outcomes an operation can have.
type ResultStatus int

const (
	StatusSuccess ResultStatus = iota
	StatusValidationFailed
	StatusAuthFailed
	StatusUploadFailed
	StatusPublishFailed
	StatusNotFound
)

func (s ResultStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusValidationFailed:
		return "validation failed"
	case StatusAuthFailed:
		return "authentication failed"
	case StatusUploadFailed:
		return "upload failed"
	case StatusPublishFailed:
		return "publish failed"
	case StatusNotFound:
		return "not found"
	}
	return "unknown"
}

// Result is the uniform outcome shape every create/update/delete returns,
// regardless of content type.
type Result struct {
	Status          ResultStatus
	EventID         string
	DTag            string
	PublishedRelays []string
	FailedRelays    []string
	Err             string
	// Unchanged marks the update short-circuit: nothing differed from the
	// current document, so no event was published and EventID references the
	// existing version.
	Unchanged bool
	// Cancelled marks a batch abandoned at the consent gate.
	Cancelled bool
}

func (r Result) Success() bool { return r.Status == StatusSuccess }

func failure(st ResultStatus, err string) Result {
	return Result{Status: st, Err: err}
}

// Stage names the pipeline step a progress notification refers to.
type Stage string

const (
	StageValidating Stage = "validating"
	StageUploading  Stage = "uploading"
	StageBuilding   Stage = "building"
	StagePublishing Stage = "publishing"
	StageComplete   Stage = "complete"
)

// Progress is a best-effort pipeline notification; it is never the error
// channel.
type Progress struct {
	Stage   Stage
	Percent int
}

type ProgressFunc func(Progress)
