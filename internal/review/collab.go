package review

import "context"

// Source lists the records of the bound assignment in ingestion order.
type Source interface {
	Records(ctx context.Context) ([]Record, error)
}

// Persister commits a feedback comment for one record. An empty text is a
// valid comment meaning "reviewed, nothing to add".
type Persister interface {
	SaveFeedback(ctx context.Context, id, text string) error
}

// Checker runs the static auto-check for one record. It returns an
// ALREADY_REVIEWED error when the record was reviewed in the meantime.
type Checker interface {
	AutoCheck(ctx context.Context, id string) (Outcome, error)
}

// Store is a backend implementing every collaborator.
type Store interface {
	Source
	Persister
	Checker
}

// Outcome is the result of auto-checking one record.
type Outcome struct {
	Suggestion string // proposed feedback; empty when no issue was found
	Result     string // diagnostic text
}
