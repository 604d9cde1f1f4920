package ledger

import "time"

// Kind tags the generation operation that produced an entry.
// Callers may use any non-empty string; the service uses the constants below.
type Kind string

const (
	KindSummarization Kind = "summarization"
	KindQA            Kind = "qa"
	KindLearningPath  Kind = "learning_path"
)

// Entry is a single record in the generation ledger.
type Entry struct {
	Digest     string    `json:"digest"`
	RecordedAt time.Time `json:"recorded_at"`
	Kind       Kind      `json:"kind"`
	Preview    string    `json:"preview"` // for humans only, never used for verification
}
