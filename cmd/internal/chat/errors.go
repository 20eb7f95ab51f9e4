package chat

import (
	"errors"
	"fmt"
)

// Validation sentinels. All of them unwrap to ErrValidation so boundaries can
// map the whole class to a 400 without enumerating reasons.
var (
	ErrValidation = errors.New("chat: validation failed")

	ErrMissingParty = fmt.Errorf("%w: missing sender or recipient", ErrValidation)
	ErrSelfSend     = fmt.Errorf("%w: sender and recipient are the same user", ErrValidation)
	ErrEmptyContent = fmt.Errorf("%w: either text or image is required", ErrValidation)
	ErrTextTooLong  = fmt.Errorf("%w: text exceeds %d chars", ErrValidation, maxMessageChars)
)

// IsValidation reports whether err belongs to the validation class.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// StorageError wraps a persistence-layer failure. The send is aborted, the
// message is not partially persisted, and the caller surfaces the failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("chat: storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
