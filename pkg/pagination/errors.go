package pagination

import "fmt"

// Stage identifies which half of a page task failed.
type Stage string

const (
	// StageFetch is the remote page fetch.
	StageFetch Stage = "fetch"

	// StageInsert is the local batch insert.
	StageInsert Stage = "insert"
)

// PageError reports the page window whose task aborted a round.
type PageError struct {
	Stage  Stage
	Offset int
	Limit  int
	Err    error
}

// Error implements the error interface.
func (e *PageError) Error() string {
	return fmt.Sprintf("%s page at offset %d (limit %d): %v", e.Stage, e.Offset, e.Limit, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PageError) Unwrap() error {
	return e.Err
}
