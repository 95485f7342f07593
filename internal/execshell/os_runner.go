package execshell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
)

const environmentAssignmentSeparatorConstant = "="

// OSCommandRunner executes commands using the operating system facilities.
type OSCommandRunner struct{}

// NewOSCommandRunner constructs a runner backed by os/exec.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{}
}

// Run executes the supplied command. A non-zero exit is reported through ExecutionResult.ExitCode,
// not as an error; errors are reserved for commands that could not run to completion.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	commandArguments := append([]string{}, command.Details.Arguments...)
	executable := exec.CommandContext(executionContext, string(command.Name), commandArguments...)

	if len(command.Details.WorkingDirectory) > 0 {
		executable.Dir = command.Details.WorkingDirectory
	}

	if len(command.Details.EnvironmentVariables) > 0 {
		executable.Env = mergeEnvironment(os.Environ(), command.Details.EnvironmentVariables)
	}

	var standardOutputBuffer bytes.Buffer
	var standardErrorBuffer bytes.Buffer
	executable.Stdout = &standardOutputBuffer
	executable.Stderr = &standardErrorBuffer

	if len(command.Details.StandardInput) > 0 {
		executable.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	runError := executable.Run()
	if runError != nil {
		if contextError := executionContext.Err(); contextError != nil {
			return ExecutionResult{}, contextError
		}
		exitError := &exec.ExitError{}
		if errors.As(runError, &exitError) {
			return ExecutionResult{
				StandardOutput: standardOutputBuffer.String(),
				StandardError:  standardErrorBuffer.String(),
				ExitCode:       exitError.ExitCode(),
			}, nil
		}
		return ExecutionResult{}, runError
	}

	return ExecutionResult{
		StandardOutput: standardOutputBuffer.String(),
		StandardError:  standardErrorBuffer.String(),
		ExitCode:       0,
	}, nil
}

func mergeEnvironment(baseEnvironment []string, overrides map[string]string) []string {
	overrideKeys := make([]string, 0, len(overrides))
	for overrideKey := range overrides {
		overrideKeys = append(overrideKeys, overrideKey)
	}
	sort.Strings(overrideKeys)

	mergedEnvironment := append([]string{}, baseEnvironment...)
	for _, overrideKey := range overrideKeys {
		mergedEnvironment = append(mergedEnvironment, overrideKey+environmentAssignmentSeparatorConstant+overrides[overrideKey])
	}
	return mergedEnvironment
}
