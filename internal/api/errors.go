package api

// StatusError pairs an error with the HTTP status code a handler should
// respond with, mirroring raid-guild-x402-facilitator-go/utils.StatusError.
type StatusError struct {
	error
	status int
}

func NewStatusError(err error, status int) StatusError {
	return StatusError{error: err, status: status}
}

func (se StatusError) Status() int { return se.status }
