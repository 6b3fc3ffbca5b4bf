package vision

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ServiceError is a failed annotation call. Transient errors may succeed
// on retry; the caller owns the retry policy.
type ServiceError struct {
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	// Code is the RPC status name or error reason, when known.
	Code      string
	Message   string
	Transient bool
	Err       error
}

func (e *ServiceError) Error() string {
	s := "vision annotate"
	if e.StatusCode != 0 {
		s += fmt.Sprintf(": HTTP %d", e.StatusCode)
	}
	if e.Code != "" {
		s += " " + e.Code
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil && e.Message == "" {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable ServiceError.
func IsTransient(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Transient
}

// rpcCodes maps google.rpc.Code values to their names.
var rpcCodes = map[int64]string{
	1:  "CANCELLED",
	2:  "UNKNOWN",
	3:  "INVALID_ARGUMENT",
	4:  "DEADLINE_EXCEEDED",
	5:  "NOT_FOUND",
	6:  "ALREADY_EXISTS",
	7:  "PERMISSION_DENIED",
	8:  "RESOURCE_EXHAUSTED",
	9:  "FAILED_PRECONDITION",
	10: "ABORTED",
	11: "OUT_OF_RANGE",
	12: "UNIMPLEMENTED",
	13: "INTERNAL",
	14: "UNAVAILABLE",
	15: "DATA_LOSS",
	16: "UNAUTHENTICATED",
}

var transientRPC = map[string]bool{
	"UNAVAILABLE":        true,
	"DEADLINE_EXCEEDED":  true,
	"RESOURCE_EXHAUSTED": true,
	"ABORTED":            true,
	"INTERNAL":           true,
}

func transientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// classifyError maps a failed Do() call to a ServiceError.
func classifyError(err error) *ServiceError {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		se := &ServiceError{
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Transient:  transientStatus(apiErr.Code),
			Err:        err,
		}
		if len(apiErr.Errors) > 0 {
			se.Code = apiErr.Errors[0].Reason
		}
		return se
	}

	// Token exchange failures carry the token endpoint's status.
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		code := retrieveErr.Response.StatusCode
		return &ServiceError{
			StatusCode: code,
			Code:       retrieveErr.ErrorCode,
			Message:    "token exchange failed",
			Transient:  transientStatus(code),
			Err:        err,
		}
	}

	// Transport errors and timeouts.
	return &ServiceError{Transient: true, Err: err}
}

// statusError maps a per-image error status to a ServiceError.
func statusError(code int64, message string) *ServiceError {
	name, ok := rpcCodes[code]
	if !ok {
		name = fmt.Sprintf("CODE_%d", code)
	}
	return &ServiceError{
		StatusCode: http.StatusOK,
		Code:       name,
		Message:    message,
		Transient:  transientRPC[name],
	}
}
