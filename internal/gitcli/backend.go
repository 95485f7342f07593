package gitcli

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/temirov/repomigrate/internal/execshell"
	"github.com/temirov/repomigrate/internal/migration"
)

const (
	gitCloneSubcommandConstant           = "clone"
	gitMirrorFlagConstant                = "--mirror"
	gitRemoteSubcommandConstant          = "remote"
	gitRemoteAddSubcommandConstant       = "add"
	gitRemoteSetURLSubcommandConstant    = "set-url"
	gitPushSubcommandConstant            = "push"
	gitForceFlagConstant                 = "--force"
	gitPruneFlagConstant                 = "--prune"
	gitAllFlagConstant                   = "--all"
	gitTagsFlagConstant                  = "--tags"
	terminalPromptEnvironmentConstant    = "GIT_TERMINAL_PROMPT"
	terminalPromptDisabledValueConstant  = "0"
	httpSchemeConstant                   = "http"
	httpsSchemeConstant                  = "https"
	executorMissingMessageConstant       = "git executor not configured"
	cloneErrorTemplateConstant           = "git clone --mirror: %w"
	remoteErrorTemplateConstant          = "git remote %s: %w"
	pushErrorTemplateConstant            = "git push: %w"
	credentialedURLErrorTemplateConstant = "parse remote URL: %w"
)

// ErrGitExecutorNotConfigured indicates the backend was constructed without an executor.
var ErrGitExecutorNotConfigured = errors.New(executorMissingMessageConstant)

// GitExecutor runs git commands.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Backend implements migration.MirrorBackend with the git executable.
type Backend struct {
	executor GitExecutor
}

// NewBackend constructs a git CLI mirror backend.
func NewBackend(executor GitExecutor) (*Backend, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &Backend{executor: executor}, nil
}

// MirrorClone runs git clone --mirror into the request directory.
func (backend *Backend) MirrorClone(executionContext context.Context, request migration.MirrorCloneRequest) error {
	sourceURL, urlError := credentialedURL(request.SourceURL, request.Authentication)
	if urlError != nil {
		return urlError
	}

	_, cloneError := backend.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            []string{gitCloneSubcommandConstant, gitMirrorFlagConstant, sourceURL, request.Directory},
		EnvironmentVariables: nonInteractiveEnvironment(),
	})
	if cloneError != nil {
		return fmt.Errorf(cloneErrorTemplateConstant, cloneError)
	}
	return nil
}

// MirrorPush registers the destination remote and force-pushes branches and tags, pruning refs the mirror lacks.
func (backend *Backend) MirrorPush(executionContext context.Context, request migration.MirrorPushRequest) error {
	destinationURL, urlError := credentialedURL(request.DestinationURL, request.Authentication)
	if urlError != nil {
		return urlError
	}

	if remoteError := backend.registerRemote(executionContext, request.Directory, request.RemoteName, destinationURL); remoteError != nil {
		return remoteError
	}

	for _, pushArguments := range pushCommands(request.RemoteName, request.RefSpecs) {
		_, pushError := backend.executor.ExecuteGit(executionContext, execshell.CommandDetails{
			Arguments:            pushArguments,
			WorkingDirectory:     request.Directory,
			EnvironmentVariables: nonInteractiveEnvironment(),
		})
		if pushError != nil {
			return fmt.Errorf(pushErrorTemplateConstant, pushError)
		}
	}
	return nil
}

func (backend *Backend) registerRemote(executionContext context.Context, directory string, remoteName string, remoteURL string) error {
	_, addError := backend.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRemoteSubcommandConstant, gitRemoteAddSubcommandConstant, remoteName, remoteURL},
		WorkingDirectory: directory,
	})
	if addError == nil {
		return nil
	}

	var commandFailure execshell.CommandFailedError
	if !errors.As(addError, &commandFailure) {
		return fmt.Errorf(remoteErrorTemplateConstant, gitRemoteAddSubcommandConstant, addError)
	}

	_, setURLError := backend.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        []string{gitRemoteSubcommandConstant, gitRemoteSetURLSubcommandConstant, remoteName, remoteURL},
		WorkingDirectory: directory,
	})
	if setURLError != nil {
		return fmt.Errorf(remoteErrorTemplateConstant, gitRemoteSetURLSubcommandConstant, errors.Join(addError, setURLError))
	}
	return nil
}

// pushCommands maps mirror refspecs onto git push invocations.
func pushCommands(remoteName string, refSpecs []string) [][]string {
	var commands [][]string
	var explicitRefSpecs []string
	for _, refSpec := range refSpecs {
		switch refSpec {
		case migration.BranchesMirrorRefSpec:
			commands = append(commands, []string{gitPushSubcommandConstant, gitForceFlagConstant, gitPruneFlagConstant, gitAllFlagConstant, remoteName})
		case migration.TagsMirrorRefSpec:
			commands = append(commands, []string{gitPushSubcommandConstant, gitForceFlagConstant, gitPruneFlagConstant, gitTagsFlagConstant, remoteName})
		default:
			explicitRefSpecs = append(explicitRefSpecs, refSpec)
		}
	}
	if len(explicitRefSpecs) > 0 {
		commands = append(commands, append([]string{gitPushSubcommandConstant, gitForceFlagConstant, remoteName}, explicitRefSpecs...))
	}
	return commands
}

// credentialedURL embeds credentials into http(s) URLs; other URLs are returned unchanged.
func credentialedURL(remoteURL string, credentials migration.BasicAuthentication) (string, error) {
	if len(credentials.Username) == 0 && len(credentials.Password) == 0 {
		return remoteURL, nil
	}
	parsedURL, parseError := url.Parse(remoteURL)
	if parseError != nil {
		return "", fmt.Errorf(credentialedURLErrorTemplateConstant, parseError)
	}
	if parsedURL.Scheme != httpSchemeConstant && parsedURL.Scheme != httpsSchemeConstant {
		return remoteURL, nil
	}
	parsedURL.User = url.UserPassword(credentials.Username, credentials.Password)
	return parsedURL.String(), nil
}

func nonInteractiveEnvironment() map[string]string {
	return map[string]string{terminalPromptEnvironmentConstant: terminalPromptDisabledValueConstant}
}
