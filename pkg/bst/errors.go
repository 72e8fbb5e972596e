package bst

import "errors"

var (
	// ErrMalformedHeader is returned when a header field cannot be decoded.
	ErrMalformedHeader = errors.New("malformed BST header")
	// ErrSizeMismatch is returned when the payload announced by the header
	// does not fit between the end of the header and the end of the file.
	ErrSizeMismatch = errors.New("BST payload size mismatch")
)
