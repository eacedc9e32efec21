package importer

import (
	"errors"
	"fmt"
)

var (
	ErrNoPlaceholder  = errors.New("ledger has no placeholder account")
	ErrNotCapital     = errors.New("batch account is not a capital account")
	ErrUnknownAccount = errors.New("unknown account")
)

// BatchError reports the record or order that made a batch fail. Nothing of
// the batch was committed.
type BatchError struct {
	BatchID string
	// Key is the record key, line reference or order number at fault.
	Key string
	Err error
}

func (e *BatchError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("import batch %s: %v", e.BatchID, e.Err)
	}
	return fmt.Sprintf("import batch %s: %s: %v", e.BatchID, e.Key, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
