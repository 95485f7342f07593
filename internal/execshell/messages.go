package execshell

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	redactedPasswordReplacementConstant     = "${1}:xxxxx@"
	optionPrefixConstant                    = "-"
)

const (
	gitCloneSubcommandNameConstant  = "clone"
	gitRemoteSubcommandNameConstant = "remote"
	gitRemoteAddSubcommandConstant  = "add"
	gitPushSubcommandNameConstant   = "push"
	gitAllFlagConstant              = "--all"
	gitTagsFlagConstant             = "--tags"
	gitAllBranchesLabelConstant     = "all branches"
	gitAllTagsLabelConstant         = "all tags"
	gitAllReferencesLabelConstant   = "references"
)

const (
	gitCloneStartTemplateConstant            = "Mirroring %s into %s"
	gitCloneSuccessTemplateConstant          = "Mirrored %s into %s"
	gitCloneFailureTemplateConstant          = "Failed to mirror %s into %s (exit code %d%s)"
	gitCloneExecutionFailureTemplateConstant = "Unable to mirror %s into %s: %s"
	gitRemoteAddStartTemplateConstant        = "Adding %s remote %s in %s"
	gitRemoteAddSuccessTemplateConstant      = "Added %s remote %s in %s"
	gitRemoteAddFailureTemplateConstant      = "Failed to add %s remote %s in %s (exit code %d%s)"
	gitRemoteAddExecutionTemplateConstant    = "Unable to add %s remote %s in %s: %s"
	gitPushStartTemplateConstant             = "Force pushing %s to %s from %s"
	gitPushSuccessTemplateConstant           = "Force pushed %s to %s from %s"
	gitPushFailureTemplateConstant           = "Failed to force push %s to %s from %s (exit code %d%s)"
	gitPushExecutionFailureTemplateConstant  = "Unable to force push %s to %s from %s: %s"
)

var credentialPattern = regexp.MustCompile(`(://[^/\s:@]+):[^@\s/]+@`)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

// RedactArguments returns a copy of arguments with URL passwords masked.
func RedactArguments(arguments []string) []string {
	redacted := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		redacted = append(redacted, redactArgument(argument))
	}
	return redacted
}

func redactArgument(argument string) string {
	if !strings.Contains(argument, "@") {
		return argument
	}
	parsedURL, parseError := url.Parse(argument)
	if parseError != nil || parsedURL.User == nil {
		return redactText(argument)
	}
	return parsedURL.Redacted()
}

func redactText(text string) string {
	return credentialPattern.ReplaceAllString(text, redactedPasswordReplacementConstant)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if command.Name != CommandGit || len(command.Details.Arguments) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	positional := positionalArguments(command.Details.Arguments)
	switch strings.TrimSpace(command.Details.Arguments[0]) {
	case gitCloneSubcommandNameConstant:
		if len(positional) < 3 {
			break
		}
		source := redactArgument(positional[1])
		return formatter.selectTemplate(stage, result, failure,
			[4]string{gitCloneStartTemplateConstant, gitCloneSuccessTemplateConstant, gitCloneFailureTemplateConstant, gitCloneExecutionFailureTemplateConstant},
			source, positional[2])
	case gitRemoteSubcommandNameConstant:
		if len(positional) < 4 || positional[1] != gitRemoteAddSubcommandConstant {
			break
		}
		return formatter.selectTemplate(stage, result, failure,
			[4]string{gitRemoteAddStartTemplateConstant, gitRemoteAddSuccessTemplateConstant, gitRemoteAddFailureTemplateConstant, gitRemoteAddExecutionTemplateConstant},
			positional[2], redactArgument(positional[3]), formatter.workingDirectoryLabel(command))
	case gitPushSubcommandNameConstant:
		if len(positional) < 2 {
			break
		}
		return formatter.selectTemplate(stage, result, failure,
			[4]string{gitPushStartTemplateConstant, gitPushSuccessTemplateConstant, gitPushFailureTemplateConstant, gitPushExecutionFailureTemplateConstant},
			pushScopeLabel(command.Details.Arguments), redactArgument(positional[1]), formatter.workingDirectoryLabel(command))
	}

	return formatter.buildGenericMessage(command, result, failure, stage)
}

func (formatter CommandMessageFormatter) selectTemplate(stage messageStage, result ExecutionResult, failure error, templates [4]string, values ...any) string {
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(templates[0], values...)
	case messageStageSuccess:
		return fmt.Sprintf(templates[1], values...)
	case messageStageFailure:
		failureValues := append(append([]any{}, values...), result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
		return fmt.Sprintf(templates[2], failureValues...)
	default:
		failureValues := append(append([]any{}, values...), formatter.failureText(failure))
		return fmt.Sprintf(templates[3], failureValues...)
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	label := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, label)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, label)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, label, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, label, formatter.failureText(failure))
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandParts := []string{string(command.Name)}
	if len(command.Details.Arguments) > 0 {
		commandParts = append(commandParts, RedactArguments(command.Details.Arguments)...)
	}
	workingDirectorySuffix := emptyStringConstant
	if len(strings.TrimSpace(command.Details.WorkingDirectory)) > 0 {
		workingDirectorySuffix = fmt.Sprintf(workingDirectorySuffixTemplateConstant, command.Details.WorkingDirectory)
	}
	return fmt.Sprintf(commandLabelTemplateConstant, strings.Join(commandParts, commandArgumentsJoinSeparatorConstant), workingDirectorySuffix)
}

func (formatter CommandMessageFormatter) workingDirectoryLabel(command ShellCommand) string {
	workingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(workingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return workingDirectory
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmed := strings.TrimSpace(standardError)
	if len(trimmed) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, redactText(trimmed))
}

func (formatter CommandMessageFormatter) failureText(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return redactText(failure.Error())
}

func positionalArguments(arguments []string) []string {
	positional := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		if strings.HasPrefix(argument, optionPrefixConstant) {
			continue
		}
		positional = append(positional, argument)
	}
	return positional
}

func pushScopeLabel(arguments []string) string {
	for _, argument := range arguments {
		switch argument {
		case gitAllFlagConstant:
			return gitAllBranchesLabelConstant
		case gitTagsFlagConstant:
			return gitAllTagsLabelConstant
		}
	}
	return gitAllReferencesLabelConstant
}
