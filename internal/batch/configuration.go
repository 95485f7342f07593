package batch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/temirov/repomigrate/internal/migration"
)

const (
	// BackendGoGit selects the in-process go-git transport.
	BackendGoGit = "go-git"
	// BackendGitCLI selects the git executable transport.
	BackendGitCLI = "git"

	// DefaultRequestTimeout bounds each destination API request.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultMaxRetries bounds retries of rate-limited and gateway API failures.
	DefaultMaxRetries = 3

	sourceConfigurationKeyConstant            = "source"
	destinationConfigurationKeyConstant       = "destination"
	transportConfigurationKeyConstant         = "transport"
	apiConfigurationKeyConstant               = "api"
	usernameConfigurationKeyConstant          = "username"
	passwordConfigurationKeyConstant          = "password"
	urlsConfigurationKeyConstant              = "urls"
	urlConfigurationKeyConstant               = "url"
	tokenConfigurationKeyConstant             = "token"
	pathsConfigurationKeyConstant             = "paths"
	backendConfigurationKeyConstant           = "backend"
	workspaceRootConfigurationKeyConstant     = "workspace_root"
	concurrencyConfigurationKeyConstant       = "concurrency"
	operationTimeoutConfigurationKeyConstant  = "operation_timeout"
	requestTimeoutConfigurationKeyConstant    = "request_timeout"
	requestsPerSecondConfigurationKeyConstant = "requests_per_second"
	maxRetriesConfigurationKeyConstant        = "max_retries"
	configurationKeySeparatorConstant         = "."
	invalidFieldErrorTemplateConstant         = "%s: %s"
	requiredValueMessageConstant              = "value is required"
	emptyListMessageConstant                  = "at least one entry is required"
	emptyListEntryTemplateConstant            = "entry %d is empty"
	listLengthMismatchTemplateConstant        = "source.urls has %d entries but destination.paths has %d"
	unsupportedBackendTemplateConstant        = "unsupported backend %q (expected %s or %s)"
	concurrencyTooLowMessageConstant          = "must be at least 1"
	negativeDurationMessageConstant           = "must not be negative"
	negativeRateMessageConstant               = "must not be negative"
	negativeRetriesMessageConstant            = "must not be negative"
	destinationURLSchemeMessageConstant       = "must start with http:// or https://"
	httpSchemePrefixConstant                  = "http://"
	httpsSchemePrefixConstant                 = "https://"
)

// InvalidFieldError describes a configuration field that failed validation.
type InvalidFieldError struct {
	FieldName string
	Message   string
}

// Error describes the invalid field.
func (fieldError InvalidFieldError) Error() string {
	return fmt.Sprintf(invalidFieldErrorTemplateConstant, fieldError.FieldName, fieldError.Message)
}

// Configuration captures the persisted migration settings.
type Configuration struct {
	Source           SourceConfiguration      `mapstructure:"source"`
	Destination      DestinationConfiguration `mapstructure:"destination"`
	Transport        TransportConfiguration   `mapstructure:"transport"`
	API              APIConfiguration         `mapstructure:"api"`
	Concurrency      int                      `mapstructure:"concurrency"`
	OperationTimeout time.Duration            `mapstructure:"operation_timeout"`
}

// SourceConfiguration describes the source git host and the repositories to migrate.
type SourceConfiguration struct {
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	URLs     []string `mapstructure:"urls"`
}

// DestinationConfiguration describes the destination service and the paths to migrate into.
type DestinationConfiguration struct {
	URL   string   `mapstructure:"url"`
	Token string   `mapstructure:"token"`
	Paths []string `mapstructure:"paths"`
}

// TransportConfiguration selects how repositories are cloned and pushed.
type TransportConfiguration struct {
	Backend       string `mapstructure:"backend"`
	WorkspaceRoot string `mapstructure:"workspace_root"`
}

// APIConfiguration tunes destination API requests.
type APIConfiguration struct {
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxRetries        int           `mapstructure:"max_retries"`
}

// DefaultConfiguration returns baseline configuration values.
func DefaultConfiguration() Configuration {
	return Configuration{
		Transport: TransportConfiguration{
			Backend:       BackendGoGit,
			WorkspaceRoot: "",
		},
		API: APIConfiguration{
			RequestTimeout:    DefaultRequestTimeout,
			RequestsPerSecond: 0,
			MaxRetries:        DefaultMaxRetries,
		},
		Concurrency:      migration.DefaultConcurrency,
		OperationTimeout: 0,
	}
}

// DefaultConfigurationValues produces Viper defaults for migration configuration.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultConfiguration()
	return map[string]any{
		joinConfigurationKey(rootKey, sourceConfigurationKeyConstant, usernameConfigurationKeyConstant):         defaults.Source.Username,
		joinConfigurationKey(rootKey, sourceConfigurationKeyConstant, passwordConfigurationKeyConstant):         defaults.Source.Password,
		joinConfigurationKey(rootKey, sourceConfigurationKeyConstant, urlsConfigurationKeyConstant):             []string{},
		joinConfigurationKey(rootKey, destinationConfigurationKeyConstant, urlConfigurationKeyConstant):         defaults.Destination.URL,
		joinConfigurationKey(rootKey, destinationConfigurationKeyConstant, tokenConfigurationKeyConstant):       defaults.Destination.Token,
		joinConfigurationKey(rootKey, destinationConfigurationKeyConstant, pathsConfigurationKeyConstant):       []string{},
		joinConfigurationKey(rootKey, transportConfigurationKeyConstant, backendConfigurationKeyConstant):       defaults.Transport.Backend,
		joinConfigurationKey(rootKey, transportConfigurationKeyConstant, workspaceRootConfigurationKeyConstant): defaults.Transport.WorkspaceRoot,
		joinConfigurationKey(rootKey, apiConfigurationKeyConstant, requestTimeoutConfigurationKeyConstant):      defaults.API.RequestTimeout,
		joinConfigurationKey(rootKey, apiConfigurationKeyConstant, requestsPerSecondConfigurationKeyConstant):   defaults.API.RequestsPerSecond,
		joinConfigurationKey(rootKey, apiConfigurationKeyConstant, maxRetriesConfigurationKeyConstant):          defaults.API.MaxRetries,
		joinConfigurationKey(rootKey, concurrencyConfigurationKeyConstant):                                      defaults.Concurrency,
		joinConfigurationKey(rootKey, operationTimeoutConfigurationKeyConstant):                                 defaults.OperationTimeout,
	}
}

// Sanitize trims configured values and splits comma separated list entries.
// A list holding only blank values becomes empty.
func (configuration Configuration) Sanitize() Configuration {
	sanitized := configuration
	sanitized.Source.Username = strings.TrimSpace(configuration.Source.Username)
	sanitized.Source.URLs = sanitizeList(configuration.Source.URLs)
	sanitized.Destination.URL = strings.TrimRight(strings.TrimSpace(configuration.Destination.URL), "/")
	sanitized.Destination.Token = strings.TrimSpace(configuration.Destination.Token)
	sanitized.Destination.Paths = sanitizeList(configuration.Destination.Paths)
	sanitized.Transport.Backend = strings.ToLower(strings.TrimSpace(configuration.Transport.Backend))
	if len(sanitized.Transport.Backend) == 0 {
		sanitized.Transport.Backend = BackendGoGit
	}
	sanitized.Transport.WorkspaceRoot = strings.TrimSpace(configuration.Transport.WorkspaceRoot)
	return sanitized
}

// Validate reports every configuration problem as a single configuration error.
func (configuration Configuration) Validate() error {
	var problems []error

	requiredValues := []struct {
		fieldName string
		value     string
	}{
		{fieldName: joinConfigurationKey(sourceConfigurationKeyConstant, usernameConfigurationKeyConstant), value: configuration.Source.Username},
		{fieldName: joinConfigurationKey(sourceConfigurationKeyConstant, passwordConfigurationKeyConstant), value: configuration.Source.Password},
		{fieldName: joinConfigurationKey(destinationConfigurationKeyConstant, urlConfigurationKeyConstant), value: configuration.Destination.URL},
		{fieldName: joinConfigurationKey(destinationConfigurationKeyConstant, tokenConfigurationKeyConstant), value: configuration.Destination.Token},
	}
	for _, requiredValue := range requiredValues {
		if len(strings.TrimSpace(requiredValue.value)) == 0 {
			problems = append(problems, InvalidFieldError{FieldName: requiredValue.fieldName, Message: requiredValueMessageConstant})
		}
	}

	destinationURL := strings.TrimSpace(configuration.Destination.URL)
	if len(destinationURL) > 0 && !strings.HasPrefix(destinationURL, httpSchemePrefixConstant) && !strings.HasPrefix(destinationURL, httpsSchemePrefixConstant) {
		problems = append(problems, InvalidFieldError{FieldName: joinConfigurationKey(destinationConfigurationKeyConstant, urlConfigurationKeyConstant), Message: destinationURLSchemeMessageConstant})
	}

	problems = append(problems, validateList(joinConfigurationKey(sourceConfigurationKeyConstant, urlsConfigurationKeyConstant), configuration.Source.URLs)...)
	problems = append(problems, validateList(joinConfigurationKey(destinationConfigurationKeyConstant, pathsConfigurationKeyConstant), configuration.Destination.Paths)...)

	if len(configuration.Source.URLs) != len(configuration.Destination.Paths) {
		problems = append(problems, InvalidFieldError{
			FieldName: joinConfigurationKey(destinationConfigurationKeyConstant, pathsConfigurationKeyConstant),
			Message:   fmt.Sprintf(listLengthMismatchTemplateConstant, len(configuration.Source.URLs), len(configuration.Destination.Paths)),
		})
	}

	switch configuration.Transport.Backend {
	case BackendGoGit, BackendGitCLI:
	default:
		problems = append(problems, InvalidFieldError{
			FieldName: joinConfigurationKey(transportConfigurationKeyConstant, backendConfigurationKeyConstant),
			Message:   fmt.Sprintf(unsupportedBackendTemplateConstant, configuration.Transport.Backend, BackendGoGit, BackendGitCLI),
		})
	}

	if configuration.Concurrency < 1 {
		problems = append(problems, InvalidFieldError{FieldName: concurrencyConfigurationKeyConstant, Message: concurrencyTooLowMessageConstant})
	}
	if configuration.OperationTimeout < 0 {
		problems = append(problems, InvalidFieldError{FieldName: operationTimeoutConfigurationKeyConstant, Message: negativeDurationMessageConstant})
	}
	if configuration.API.RequestTimeout < 0 {
		problems = append(problems, InvalidFieldError{FieldName: joinConfigurationKey(apiConfigurationKeyConstant, requestTimeoutConfigurationKeyConstant), Message: negativeDurationMessageConstant})
	}
	if configuration.API.RequestsPerSecond < 0 {
		problems = append(problems, InvalidFieldError{FieldName: joinConfigurationKey(apiConfigurationKeyConstant, requestsPerSecondConfigurationKeyConstant), Message: negativeRateMessageConstant})
	}

	if configuration.API.MaxRetries < 0 {
		problems = append(problems, InvalidFieldError{FieldName: joinConfigurationKey(apiConfigurationKeyConstant, maxRetriesConfigurationKeyConstant), Message: negativeRetriesMessageConstant})
	}

	if len(problems) == 0 {
		return nil
	}
	return migration.NewConfigurationError(errors.Join(problems...))
}

// Tasks pairs source URLs with destination paths by position.
func (configuration Configuration) Tasks() ([]migration.Task, error) {
	if validationError := configuration.Validate(); validationError != nil {
		return nil, validationError
	}

	tasks := make([]migration.Task, 0, len(configuration.Source.URLs))
	for taskIndex := range configuration.Source.URLs {
		tasks = append(tasks, migration.Task{
			SourceURL:       configuration.Source.URLs[taskIndex],
			DestinationPath: configuration.Destination.Paths[taskIndex],
		})
	}
	return tasks, nil
}

// Credentials returns the batch-wide credentials.
func (configuration Configuration) Credentials() migration.Credentials {
	return migration.Credentials{
		Source: migration.SourceCredentials{
			Username: configuration.Source.Username,
			Password: configuration.Source.Password,
		},
		Destination: migration.DestinationCredentials{
			BaseURL: configuration.Destination.URL,
			Token:   configuration.Destination.Token,
		},
	}
}

func validateList(fieldName string, entries []string) []error {
	if len(entries) == 0 {
		return []error{InvalidFieldError{FieldName: fieldName, Message: emptyListMessageConstant}}
	}
	var problems []error
	for entryIndex, entry := range entries {
		if len(strings.TrimSpace(entry)) == 0 {
			problems = append(problems, InvalidFieldError{FieldName: fieldName, Message: fmt.Sprintf(emptyListEntryTemplateConstant, entryIndex)})
		}
	}
	return problems
}

// sanitizeList splits comma separated entries and trims them, keeping blank positions so Validate rejects them.
func sanitizeList(entries []string) []string {
	if listIsBlank(entries) {
		return []string{}
	}
	sanitized := make([]string, 0, len(entries))
	for _, entry := range entries {
		for _, part := range strings.Split(entry, ",") {
			sanitized = append(sanitized, strings.TrimSpace(part))
		}
	}
	return sanitized
}

func listIsBlank(entries []string) bool {
	for _, entry := range entries {
		if len(strings.TrimSpace(entry)) > 0 {
			return false
		}
	}
	return true
}

func joinConfigurationKey(segments ...string) string {
	nonEmpty := make([]string, 0, len(segments))
	for _, segment := range segments {
		if len(segment) > 0 {
			nonEmpty = append(nonEmpty, segment)
		}
	}
	return strings.Join(nonEmpty, configurationKeySeparatorConstant)
}
