// Package apperrors holds the error classes shared by checkout issuance and
// webhook reconciliation, and their mapping to HTTP status codes.
package apperrors

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidInput: caller-supplied data failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound: a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVerification: an event failed signature verification or could not be decoded.
	ErrVerification = errors.New("event verification failed")
	// ErrInvalidMetadata: required fields are absent from an event payload.
	ErrInvalidMetadata = errors.New("invalid event metadata")
	// ErrUpstream: the store, queue or payment processor failed. Retry eligible.
	ErrUpstream = errors.New("upstream failure")
	// ErrProcessing: a webhook handler faulted. Retry eligible.
	ErrProcessing = errors.New("event processing failed")
)

// HTTPStatus maps an error chain to the status code the boundary should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrVerification):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether redelivery of the same request could succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstream) || errors.Is(err, ErrProcessing)
}
