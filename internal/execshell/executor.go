package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	commandGitStringConstant                = "git"
	loggerNotConfiguredMessageConstant      = "shell executor logger not configured"
	runnerNotConfiguredMessageConstant      = "shell executor command runner not configured"
	commandFailedTemplateConstant           = "%s command exited with code %d"
	commandFailedWithErrorTemplateConstant  = "%s command exited with code %d: %s"
	commandExecutionFailedTemplateConstant  = "%s command failed: %v"
	logFieldCommandNameConstant             = "command"
	logFieldArgumentsConstant               = "arguments"
	logFieldWorkingDirectoryConstant        = "working_directory"
	logFieldExitCodeConstant                = "exit_code"
	logFieldStandardErrorConstant           = "stderr"
	commandStartedDiagnosticMessageConstant = "Executing command"
	commandSuccessDiagnosticMessageConstant = "Command completed"
	commandFailureDiagnosticMessageConstant = "Command failed"
)

// CommandName identifies an executable supported by the executor.
type CommandName string

// Supported executables.
const (
	CommandGit CommandName = CommandName(commandGitStringConstant)
)

// CommandDetails describes the arguments and environment of a single invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
}

// ShellCommand pairs an executable with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable results of running a command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

var (
	// ErrLoggerNotConfigured indicates the executor was constructed without a logger.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrCommandRunnerNotConfigured indicates the executor was constructed without a runner.
	ErrCommandRunnerNotConfigured = errors.New(runnerNotConfiguredMessageConstant)
)

// CommandFailedError reports a command that ran but returned a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failure.
func (failure CommandFailedError) Error() string {
	standardError := strings.TrimSpace(failure.Result.StandardError)
	if len(standardError) == 0 {
		return fmt.Sprintf(commandFailedTemplateConstant, failure.Command.Name, failure.Result.ExitCode)
	}
	return fmt.Sprintf(commandFailedWithErrorTemplateConstant, failure.Command.Name, failure.Result.ExitCode, redactText(standardError))
}

// CommandExecutionError reports a command that could not be started or was interrupted.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the failure.
func (failure CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionFailedTemplateConstant, failure.Command.Name, failure.Cause)
}

// Unwrap exposes the underlying cause.
func (failure CommandExecutionError) Unwrap() error {
	return failure.Cause
}

// ShellExecutor runs commands through a CommandRunner and logs their lifecycle.
type ShellExecutor struct {
	logger               *zap.Logger
	runner               CommandRunner
	messageFormatter     CommandMessageFormatter
	humanReadableLogging bool
}

// NewShellExecutor constructs a ShellExecutor. Human-readable logging emits formatted lifecycle
// messages at info level; otherwise structured diagnostics are logged at debug level.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, humanReadableLogging bool) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	return &ShellExecutor{
		logger:               logger,
		runner:               runner,
		messageFormatter:     CommandMessageFormatter{},
		humanReadableLogging: humanReadableLogging,
	}, nil
}

// ExecuteGit runs git with the provided details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// Execute runs an arbitrary command. A non-zero exit code yields CommandFailedError;
// a runner failure yields CommandExecutionError.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.logStarted(command)

	executionResult, runError := executor.runner.Run(executionContext, command)
	if runError != nil {
		executor.logExecutionFailure(command, runError)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	if executionResult.ExitCode != 0 {
		executor.logFailure(command, executionResult)
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	executor.logSuccess(command)
	return executionResult, nil
}

func (executor *ShellExecutor) logStarted(command ShellCommand) {
	if executor.humanReadableLogging {
		executor.logger.Info(executor.messageFormatter.BuildStartedMessage(command))
		return
	}
	executor.logger.Debug(
		commandStartedDiagnosticMessageConstant,
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, RedactArguments(command.Details.Arguments)),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
	)
}

func (executor *ShellExecutor) logSuccess(command ShellCommand) {
	if executor.humanReadableLogging {
		executor.logger.Info(executor.messageFormatter.BuildSuccessMessage(command))
		return
	}
	executor.logger.Debug(
		commandSuccessDiagnosticMessageConstant,
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, RedactArguments(command.Details.Arguments)),
	)
}

func (executor *ShellExecutor) logFailure(command ShellCommand, result ExecutionResult) {
	if executor.humanReadableLogging {
		executor.logger.Warn(executor.messageFormatter.BuildFailureMessage(command, result))
		return
	}
	executor.logger.Debug(
		commandFailureDiagnosticMessageConstant,
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, RedactArguments(command.Details.Arguments)),
		zap.Int(logFieldExitCodeConstant, result.ExitCode),
		zap.String(logFieldStandardErrorConstant, redactText(strings.TrimSpace(result.StandardError))),
	)
}

func (executor *ShellExecutor) logExecutionFailure(command ShellCommand, failure error) {
	if executor.humanReadableLogging {
		executor.logger.Warn(executor.messageFormatter.BuildExecutionFailureMessage(command, failure))
		return
	}
	executor.logger.Debug(
		commandFailureDiagnosticMessageConstant,
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, RedactArguments(command.Details.Arguments)),
		zap.Error(failure),
	)
}
