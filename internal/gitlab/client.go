package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	apiPathSuffixConstant               = "/api/v4"
	groupsEndpointConstant              = "/groups"
	projectsEndpointConstant            = "/projects"
	privateTokenHeaderConstant          = "PRIVATE-TOKEN"
	contentTypeHeaderConstant           = "Content-Type"
	acceptHeaderConstant                = "Accept"
	userAgentHeaderConstant             = "User-Agent"
	jsonContentTypeConstant             = "application/json"
	userAgentConstant                   = "repomigrate"
	maximumErrorBodyBytesConstant       = 64 * 1024
	baseURLMissingMessageConstant       = "base URL must not be empty"
	tokenMissingMessageConstant         = "token must not be empty"
	baseURLParseErrorTemplateConstant   = "invalid base URL %q: %w"
	requestBuildErrorTemplateConstant   = "%s: unable to build request: %w"
	requestSendErrorTemplateConstant    = "%s: request failed: %w"
	requestEncodeErrorTemplateConstant  = "%s: unable to encode request: %w"
	responseDecodeErrorTemplateConstant = "%s: unable to decode response: %w"
	rateLimitWaitErrorTemplateConstant  = "%s: rate limiter: %w"
	requestCompletedLogMessageConstant  = "GitLab API request completed"
	operationFieldNameConstant          = "operation"
	methodFieldNameConstant             = "method"
	endpointFieldNameConstant           = "endpoint"
	statusCodeFieldNameConstant         = "status_code"
	retryDelayFieldNameConstant         = "retry_in"
	requestRetryLogMessageConstant      = "Retrying GitLab API request"
	defaultRetryInitialInterval         = 500 * time.Millisecond
)

var (
	// ErrBaseURLMissing indicates that the client was constructed without a base URL.
	ErrBaseURLMissing = errors.New(baseURLMissingMessageConstant)
	// ErrTokenMissing indicates that the client was constructed without a token.
	ErrTokenMissing = errors.New(tokenMissingMessageConstant)
)

// Group is a GitLab group.
type Group struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	FullPath   string `json:"full_path"`
	ParentID   *int   `json:"parent_id"`
	Visibility string `json:"visibility"`
}

// ProjectNamespace is the namespace a project belongs to.
type ProjectNamespace struct {
	ID       int    `json:"id"`
	FullPath string `json:"full_path"`
}

// Project is a GitLab project.
type Project struct {
	ID                int              `json:"id"`
	Name              string           `json:"name"`
	Path              string           `json:"path"`
	PathWithNamespace string           `json:"path_with_namespace"`
	HTTPURLToRepo     string           `json:"http_url_to_repo"`
	Namespace         ProjectNamespace `json:"namespace"`
}

// CreateGroupRequest is the payload for creating a group.
type CreateGroupRequest struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility,omitempty"`
	ParentID    *int   `json:"parent_id,omitempty"`
}

// CreateProjectRequest is the payload for creating a project.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Path        string `json:"path,omitempty"`
	NamespaceID int    `json:"namespace_id"`
	Description string `json:"description,omitempty"`
}

// ClientOptions configure a Client.
type ClientOptions struct {
	BaseURL           string
	Token             string
	HTTPClient        *http.Client
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	// MaxRetries bounds additional attempts for rate-limited and gateway failures.
	MaxRetries           int
	RetryInitialInterval time.Duration
	Logger               *zap.Logger
}

// Client issues GitLab REST API requests.
type Client struct {
	apiBaseURL     string
	token          string
	httpClient     *http.Client
	requestTimeout time.Duration
	limiter        *rate.Limiter
	maxRetries     int
	retryInterval  time.Duration
	logger         *zap.Logger
}

// NewClient validates options and constructs a client for baseURL/api/v4.
func NewClient(options ClientOptions) (*Client, error) {
	trimmedBaseURL := strings.TrimRight(strings.TrimSpace(options.BaseURL), "/")
	if len(trimmedBaseURL) == 0 {
		return nil, ErrBaseURLMissing
	}
	if _, parseError := url.ParseRequestURI(trimmedBaseURL); parseError != nil {
		return nil, fmt.Errorf(baseURLParseErrorTemplateConstant, options.BaseURL, parseError)
	}
	if len(strings.TrimSpace(options.Token)) == 0 {
		return nil, ErrTokenMissing
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if options.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(options.RequestsPerSecond), 1)
	}

	maxRetries := options.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryInterval := options.RetryInitialInterval
	if retryInterval <= 0 {
		retryInterval = defaultRetryInitialInterval
	}

	return &Client{
		apiBaseURL:     trimmedBaseURL + apiPathSuffixConstant,
		token:          options.Token,
		httpClient:     httpClient,
		requestTimeout: options.RequestTimeout,
		limiter:        limiter,
		maxRetries:     maxRetries,
		retryInterval:  retryInterval,
		logger:         logger,
	}, nil
}

// GetGroup fetches a group by its full path.
func (client *Client) GetGroup(executionContext context.Context, fullPath string) (Group, error) {
	var group Group
	requestError := client.do(executionContext, OperationGetGroup, http.MethodGet, groupsEndpointConstant+"/"+url.PathEscape(fullPath), nil, http.StatusOK, &group)
	return group, requestError
}

// CreateGroup creates a group, optionally beneath a parent group.
func (client *Client) CreateGroup(executionContext context.Context, request CreateGroupRequest) (Group, error) {
	var group Group
	requestError := client.do(executionContext, OperationCreateGroup, http.MethodPost, groupsEndpointConstant, request, http.StatusCreated, &group)
	return group, requestError
}

// GetProject fetches a project by its path with namespace.
func (client *Client) GetProject(executionContext context.Context, fullPath string) (Project, error) {
	var project Project
	requestError := client.do(executionContext, OperationGetProject, http.MethodGet, projectsEndpointConstant+"/"+url.PathEscape(fullPath), nil, http.StatusOK, &project)
	return project, requestError
}

// CreateProject creates a project inside a namespace.
func (client *Client) CreateProject(executionContext context.Context, request CreateProjectRequest) (Project, error) {
	var project Project
	requestError := client.do(executionContext, OperationCreateProject, http.MethodPost, projectsEndpointConstant, request, http.StatusCreated, &project)
	return project, requestError
}

func (client *Client) do(executionContext context.Context, operation OperationName, method string, endpoint string, payload any, expectedStatus int, target any) error {
	if client.maxRetries == 0 {
		return client.attempt(executionContext, operation, method, endpoint, payload, expectedStatus, target)
	}

	exponentialBackOff := backoff.NewExponentialBackOff()
	exponentialBackOff.InitialInterval = client.retryInterval

	_, retryError := backoff.Retry(
		executionContext,
		func() (struct{}, error) {
			attemptError := client.attempt(executionContext, operation, method, endpoint, payload, expectedStatus, target)
			if attemptError != nil && !isRetryable(attemptError) {
				return struct{}{}, backoff.Permanent(attemptError)
			}
			return struct{}{}, attemptError
		},
		backoff.WithBackOff(exponentialBackOff),
		backoff.WithMaxTries(uint(client.maxRetries+1)),
		backoff.WithNotify(func(attemptError error, delay time.Duration) {
			client.logger.Debug(requestRetryLogMessageConstant,
				zap.String(operationFieldNameConstant, string(operation)),
				zap.Duration(retryDelayFieldNameConstant, delay),
				zap.Error(attemptError),
			)
		}),
	)
	return retryError
}

// isRetryable reports failures that a later attempt may not repeat.
func isRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiError APIError
	if !errors.As(err, &apiError) {
		return false
	}
	switch apiError.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func (client *Client) attempt(executionContext context.Context, operation OperationName, method string, endpoint string, payload any, expectedStatus int, target any) error {
	if client.limiter != nil {
		if waitError := client.limiter.Wait(executionContext); waitError != nil {
			return fmt.Errorf(rateLimitWaitErrorTemplateConstant, operation, waitError)
		}
	}

	requestContext := executionContext
	if client.requestTimeout > 0 {
		var cancel context.CancelFunc
		requestContext, cancel = context.WithTimeout(executionContext, client.requestTimeout)
		defer cancel()
	}

	var body io.Reader
	if payload != nil {
		encodedPayload, encodeError := json.Marshal(payload)
		if encodeError != nil {
			return fmt.Errorf(requestEncodeErrorTemplateConstant, operation, encodeError)
		}
		body = bytes.NewReader(encodedPayload)
	}

	request, buildError := http.NewRequestWithContext(requestContext, method, client.apiBaseURL+endpoint, body)
	if buildError != nil {
		return fmt.Errorf(requestBuildErrorTemplateConstant, operation, buildError)
	}
	request.Header.Set(privateTokenHeaderConstant, client.token)
	request.Header.Set(acceptHeaderConstant, jsonContentTypeConstant)
	request.Header.Set(userAgentHeaderConstant, userAgentConstant)
	if payload != nil {
		request.Header.Set(contentTypeHeaderConstant, jsonContentTypeConstant)
	}

	response, sendError := client.httpClient.Do(request)
	if sendError != nil {
		return fmt.Errorf(requestSendErrorTemplateConstant, operation, sendError)
	}
	defer response.Body.Close()

	client.logger.Debug(requestCompletedLogMessageConstant,
		zap.String(operationFieldNameConstant, string(operation)),
		zap.String(methodFieldNameConstant, method),
		zap.String(endpointFieldNameConstant, endpoint),
		zap.Int(statusCodeFieldNameConstant, response.StatusCode),
	)

	if response.StatusCode != expectedStatus {
		return APIError{Operation: operation, StatusCode: response.StatusCode, Message: readErrorMessage(response.Body)}
	}

	if decodeError := json.NewDecoder(response.Body).Decode(target); decodeError != nil {
		return fmt.Errorf(responseDecodeErrorTemplateConstant, operation, decodeError)
	}
	return nil
}

// readErrorMessage extracts the message or error field of a GitLab error body,
// flattening structured validation messages into text.
func readErrorMessage(body io.Reader) string {
	rawBody, readError := io.ReadAll(io.LimitReader(body, maximumErrorBodyBytesConstant))
	if readError != nil || len(bytes.TrimSpace(rawBody)) == 0 {
		return ""
	}

	var errorBody struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if json.Unmarshal(rawBody, &errorBody) != nil {
		return strings.TrimSpace(string(rawBody))
	}

	if len(errorBody.Message) > 0 {
		var textMessage string
		if json.Unmarshal(errorBody.Message, &textMessage) == nil {
			return textMessage
		}
		return string(errorBody.Message)
	}
	return errorBody.Error
}
