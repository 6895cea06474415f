package imaf

import "errors"

var (
	// ErrRange reports an integer or fixed-point value that does not fit
	// its wire field.
	ErrRange = errors.New("imaf: value out of range")
	// ErrValidation reports inconsistent caller-supplied data detected
	// before any bytes are written.
	ErrValidation = errors.New("imaf: validation failed")
	// ErrCorruptData reports a box payload too short for its declared
	// contents.
	ErrCorruptData = errors.New("imaf: corrupt data")
	// ErrLimitExceeded reports a decode aborted by Limits.
	ErrLimitExceeded = errors.New("imaf: limit exceeded")
)
