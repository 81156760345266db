package alerts

import "errors"

// Error taxonomy. Callers wrap these with fmt.Errorf("%w: ...") and the HTTP
// layer maps them to status codes with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrBadRequest = errors.New("bad request")
	ErrValidation = errors.New("validation error")
)
