package gitlab

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	apiErrorTemplateConstant             = "%s failed with status %d: %s"
	apiErrorWithoutMessageTemplate       = "%s failed with status %d"
	alreadyTakenMarkerConstant           = "has already been taken"
	notFoundSentinelMessageConstant      = "gitlab resource not found"
	alreadyExistsSentinelMessageConstant = "gitlab resource already exists"
	unauthorizedSentinelMessageConstant  = "gitlab request not authorized"
	rateLimitedSentinelMessageConstant   = "gitlab rate limit exceeded"
)

var (
	// ErrNotFound reports a 404 response.
	ErrNotFound = errors.New(notFoundSentinelMessageConstant)
	// ErrAlreadyExists reports a creation conflict.
	ErrAlreadyExists = errors.New(alreadyExistsSentinelMessageConstant)
	// ErrUnauthorized reports a 401 or 403 response.
	ErrUnauthorized = errors.New(unauthorizedSentinelMessageConstant)
	// ErrRateLimited reports a 429 response.
	ErrRateLimited = errors.New(rateLimitedSentinelMessageConstant)
)

// OperationName identifies an API call.
type OperationName string

// API operations.
const (
	OperationGetGroup      OperationName = OperationName("GetGroup")
	OperationCreateGroup   OperationName = OperationName("CreateGroup")
	OperationGetProject    OperationName = OperationName("GetProject")
	OperationCreateProject OperationName = OperationName("CreateProject")
)

// APIError describes a non-successful API response.
type APIError struct {
	Operation  OperationName
	StatusCode int
	Message    string
}

// Error describes the failed request.
func (apiError APIError) Error() string {
	if len(apiError.Message) == 0 {
		return fmt.Sprintf(apiErrorWithoutMessageTemplate, apiError.Operation, apiError.StatusCode)
	}
	return fmt.Sprintf(apiErrorTemplateConstant, apiError.Operation, apiError.StatusCode, apiError.Message)
}

// Unwrap exposes the sentinel matching the response status, if any.
func (apiError APIError) Unwrap() error {
	switch {
	case apiError.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case apiError.StatusCode == http.StatusConflict:
		return ErrAlreadyExists
	case apiError.StatusCode == http.StatusBadRequest && strings.Contains(apiError.Message, alreadyTakenMarkerConstant):
		return ErrAlreadyExists
	case apiError.StatusCode == http.StatusUnauthorized, apiError.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case apiError.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}
