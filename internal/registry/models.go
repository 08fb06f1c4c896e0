package registry

import (
	"time"

	"stockpix/internal/identity"
)

// Status represents the lifecycle of a registry entry. Transitions are
// forward-only except retry-from-failure on a later run.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusFetched          Status = "FETCHED"
	StatusFetchFailed      Status = "FETCH_FAILED"
	StatusValidated        Status = "VALIDATED"
	StatusValidationFailed Status = "VALIDATION_FAILED"
)

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	return []Status{
		StatusPending,
		StatusFetched,
		StatusFetchFailed,
		StatusValidated,
		StatusValidationFailed,
	}
}

// Stage identifies a pipeline phase that consults the registry for
// per-item resolution.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageValidate Stage = "validate"
)

// DetectorScores holds the per-detector confidence values reported by the
// visual validation service.
type DetectorScores struct {
	CategoryMatch      float64
	ProductMatch       float64
	WatermarkText      float64
	PlaceholderOrError float64
	LowQuality         float64
}

// Map returns scores keyed by detector name.
func (d DetectorScores) Map() map[string]float64 {
	return map[string]float64{
		"category_match":       d.CategoryMatch,
		"product_match":        d.ProductMatch,
		"watermark_text":       d.WatermarkText,
		"placeholder_or_error": d.PlaceholderOrError,
		"low_quality":          d.LowQuality,
	}
}

// Validation is the verdict recorded once the validation stage resolves an
// item. IsValid false means the image was rejected, not that the call failed;
// transport failures leave the entry unresolved for the validate stage.
type Validation struct {
	IsValid    bool
	Confidence float64
	Scores     DetectorScores
}

// Entry is one row of the durable per-URL ledger.
type Entry struct {
	ID          identity.ID
	SourceURL   string
	Status      Status
	StoragePath string
	HTTPCode    int
	Attempts    int
	LastAttempt time.Time
	Validation  *Validation
}

// FetchOutcome is the result of one download attempt, committed in chunks.
type FetchOutcome struct {
	ID          identity.ID
	SourceURL   string
	Success     bool
	HTTPCode    int
	StoragePath string
}

// Stats aggregates entry counts by status.
type Stats struct {
	Total    int
	ByStatus map[Status]int
}
