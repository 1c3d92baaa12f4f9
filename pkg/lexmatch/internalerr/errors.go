package internalerr

import "github.com/cockroachdb/errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrNotReady         = errors.New("index not ready")
	ErrInvalidInput     = errors.New("invalid input")
	ErrMalformedRow     = errors.New("malformed catalog row")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// WrapAs classifies err under sentinel so errors.Is matches the sentinel
// while the message keeps err's text and the formatted context.
func WrapAs(sentinel, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(errors.Wrap(sentinel, err.Error()), format, args...)
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}
