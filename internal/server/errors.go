package server

import "errors"

// Error kinds. Parser errors close the connection without a response; all
// others are rendered as a {"success":false} payload.
var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrTruncatedRequest = errors.New("truncated request")
	ErrMissingArgument  = errors.New("missing argument")
	ErrUnknownAction    = errors.New("unknown action")
	ErrInvalidRange     = errors.New("invalid range")
	ErrItemNotFound     = errors.New("item not found")
	ErrNotImplemented   = errors.New("not implemented")
)
