package batch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/repomigrate/internal/execshell"
	"github.com/temirov/repomigrate/internal/gitcli"
	"github.com/temirov/repomigrate/internal/gitlab"
	"github.com/temirov/repomigrate/internal/gittransport"
	"github.com/temirov/repomigrate/internal/migration"
)

const (
	commandUseConstant                         = "migrate"
	commandShortDescriptionConstant            = "Mirror repositories into the destination service"
	commandLongDescriptionConstant             = "migrate mirror-clones every configured source repository, provisions its destination groups and project, and pushes all branches and tags."
	commandExecutionErrorTemplateConstant      = "migration failed: %w"
	destinationClientErrorTemplateConstant     = "unable to construct destination client: %w"
	executorCreationErrorTemplateConstant      = "unable to construct git executor: %w"
	transporterCreationErrorTemplateConstant   = "unable to construct repository transporter: %w"
	orchestratorCreationErrorTemplateConstant  = "unable to construct orchestrator: %w"
	concurrencyFlagNameConstant                = "concurrency"
	concurrencyFlagUsageConstant               = "Number of repositories migrated in parallel"
	workspaceRootFlagNameConstant              = "workspace-root"
	workspaceRootFlagUsageConstant             = "Directory under which temporary mirror workspaces are created"
	backendFlagNameConstant                    = "backend"
	backendFlagUsageConstant                   = "Git transport backend (go-git or git)"
	operationTimeoutFlagNameConstant           = "operation-timeout"
	operationTimeoutFlagUsageConstant          = "Upper bound for each clone, provision and push step (0 disables)"
	configurationRejectedMessageConstant       = "Migration configuration rejected"
	batchSummaryMessageConstant                = "Migration batch summary"
	taskFailureSummaryMessageConstant          = "Repository not migrated"
	taskCountFieldNameConstant                 = "tasks"
	succeededCountFieldNameConstant            = "succeeded"
	failedCountFieldNameConstant               = "failed"
	cleanupFailureCountFieldNameConstant       = "cleanup_failures"
	backendFieldNameConstant                   = "backend"
	summarySourceURLFieldNameConstant          = "source_url"
	summaryDestinationPathFieldNameConstant    = "destination_path"
	summaryFailedStageFieldNameConstant        = "stage"
	summaryErrorKindFieldNameConstant          = "error_kind"
	reportSuccessLineTemplateConstant          = "%s -> %s: %s (%s)\n"
	reportFailureLineTemplateConstant          = "%s -> %s: %s at %s: %v\n"
	reportCleanupWarningLineTemplateConstant   = "%s -> %s: workspace %s was not removed: %v\n"
	reportProvisionOutcomeUnknownValueConstant = "unknown"
	backendResolvedMessageConstant             = "Resolved git transport backend"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider returns the current migration configuration.
type ConfigurationProvider func() Configuration

// DestinationResolver builds the destination API for a validated configuration.
type DestinationResolver func(configuration Configuration, logger *zap.Logger) (migration.DestinationAPI, error)

// BackendResolver builds the mirror backend for a validated configuration.
type BackendResolver func(configuration Configuration, logger *zap.Logger) (migration.MirrorBackend, error)

// CommandBuilder assembles the migrate command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        ConfigurationProvider
	HTTPClient                   *http.Client
	CommandRunner                execshell.CommandRunner
	DestinationResolver          DestinationResolver
	BackendResolver              BackendResolver
}

// Build constructs the migrate command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runMigrate,
	}

	command.Flags().Int(concurrencyFlagNameConstant, migration.DefaultConcurrency, concurrencyFlagUsageConstant)
	command.Flags().String(workspaceRootFlagNameConstant, "", workspaceRootFlagUsageConstant)
	command.Flags().String(backendFlagNameConstant, BackendGoGit, backendFlagUsageConstant)
	command.Flags().Duration(operationTimeoutFlagNameConstant, 0, operationTimeoutFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) runMigrate(command *cobra.Command, arguments []string) error {
	logger := builder.resolveLogger()

	configuration, configurationError := builder.resolveConfiguration(command)
	if configurationError != nil {
		return configurationError
	}

	tasks, tasksError := configuration.Tasks()
	if tasksError != nil {
		logger.Error(configurationRejectedMessageConstant, zap.Error(tasksError))
		return fmt.Errorf(commandExecutionErrorTemplateConstant, tasksError)
	}

	destination, destinationError := builder.resolveDestination(configuration, logger)
	if destinationError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, destinationError)
	}

	backend, backendError := builder.resolveBackend(configuration, logger)
	if backendError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, backendError)
	}

	transporter, transporterError := migration.NewRepositoryTransporter(migration.TransporterDependencies{
		Backend:    backend,
		Workspaces: migration.NewWorkspaceManager(configuration.Transport.WorkspaceRoot),
		Logger:     logger,
	})
	if transporterError != nil {
		return fmt.Errorf(transporterCreationErrorTemplateConstant, transporterError)
	}

	orchestrator, orchestratorError := migration.NewOrchestrator(
		migration.OrchestratorDependencies{
			Destination: destination,
			Transport:   transporter,
			Logger:      logger,
		},
		migration.OrchestratorOptions{
			Credentials:      configuration.Credentials(),
			Concurrency:      configuration.Concurrency,
			OperationTimeout: configuration.OperationTimeout,
		},
	)
	if orchestratorError != nil {
		return fmt.Errorf(orchestratorCreationErrorTemplateConstant, orchestratorError)
	}

	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}

	report := orchestrator.Run(executionContext, tasks)

	writeReport(command.OutOrStdout(), report)
	logSummary(logger, configuration, report)

	if batchError := report.Err(); batchError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, batchError)
	}

	return nil
}

func (builder *CommandBuilder) resolveConfiguration(command *cobra.Command) (Configuration, error) {
	configuration := DefaultConfiguration()
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	flagSet := command.Flags()

	if flagSet.Changed(concurrencyFlagNameConstant) {
		concurrencyValue, concurrencyError := flagSet.GetInt(concurrencyFlagNameConstant)
		if concurrencyError != nil {
			return Configuration{}, concurrencyError
		}
		configuration.Concurrency = concurrencyValue
	}

	if flagSet.Changed(workspaceRootFlagNameConstant) {
		workspaceRootValue, workspaceRootError := flagSet.GetString(workspaceRootFlagNameConstant)
		if workspaceRootError != nil {
			return Configuration{}, workspaceRootError
		}
		configuration.Transport.WorkspaceRoot = workspaceRootValue
	}

	if flagSet.Changed(backendFlagNameConstant) {
		backendValue, backendError := flagSet.GetString(backendFlagNameConstant)
		if backendError != nil {
			return Configuration{}, backendError
		}
		configuration.Transport.Backend = backendValue
	}

	if flagSet.Changed(operationTimeoutFlagNameConstant) {
		operationTimeoutValue, operationTimeoutError := flagSet.GetDuration(operationTimeoutFlagNameConstant)
		if operationTimeoutError != nil {
			return Configuration{}, operationTimeoutError
		}
		configuration.OperationTimeout = operationTimeoutValue
	}

	return configuration.Sanitize(), nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func (builder *CommandBuilder) humanReadableLogging() bool {
	if builder.HumanReadableLoggingProvider == nil {
		return false
	}
	return builder.HumanReadableLoggingProvider()
}

func (builder *CommandBuilder) resolveDestination(configuration Configuration, logger *zap.Logger) (migration.DestinationAPI, error) {
	if builder.DestinationResolver != nil {
		return builder.DestinationResolver(configuration, logger)
	}

	client, clientError := gitlab.NewClient(gitlab.ClientOptions{
		BaseURL:           configuration.Destination.URL,
		Token:             configuration.Destination.Token,
		HTTPClient:        builder.HTTPClient,
		RequestTimeout:    configuration.API.RequestTimeout,
		RequestsPerSecond: configuration.API.RequestsPerSecond,
		MaxRetries:        configuration.API.MaxRetries,
		Logger:            logger,
	})
	if clientError != nil {
		return nil, fmt.Errorf(destinationClientErrorTemplateConstant, clientError)
	}

	return gitlab.NewDestination(client), nil
}

func (builder *CommandBuilder) resolveBackend(configuration Configuration, logger *zap.Logger) (migration.MirrorBackend, error) {
	if builder.BackendResolver != nil {
		return builder.BackendResolver(configuration, logger)
	}

	logger.Debug(backendResolvedMessageConstant, zap.String(backendFieldNameConstant, configuration.Transport.Backend))

	if configuration.Transport.Backend != BackendGitCLI {
		return gittransport.NewBackend(logger), nil
	}

	commandRunner := builder.CommandRunner
	if commandRunner == nil {
		commandRunner = execshell.NewOSCommandRunner()
	}

	executor, executorError := execshell.NewShellExecutor(logger, commandRunner, builder.humanReadableLogging())
	if executorError != nil {
		return nil, fmt.Errorf(executorCreationErrorTemplateConstant, executorError)
	}

	return gitcli.NewBackend(executor)
}

func writeReport(output io.Writer, report migration.BatchReport) {
	if output == nil {
		return
	}

	for _, taskReport := range report.Tasks {
		if taskReport.Succeeded() {
			provisionOutcome := string(taskReport.ProvisionOutcome)
			if len(provisionOutcome) == 0 {
				provisionOutcome = reportProvisionOutcomeUnknownValueConstant
			}
			fmt.Fprintf(output, reportSuccessLineTemplateConstant, taskReport.Task.SourceURL, taskReport.Task.DestinationPath, taskReport.Outcome, provisionOutcome)
		} else {
			fmt.Fprintf(output, reportFailureLineTemplateConstant, taskReport.Task.SourceURL, taskReport.Task.DestinationPath, taskReport.Outcome, taskReport.FailedStage, taskReport.Error)
		}

		if taskReport.CleanupError != nil {
			fmt.Fprintf(output, reportCleanupWarningLineTemplateConstant, taskReport.Task.SourceURL, taskReport.Task.DestinationPath, taskReport.Workspace.Path, taskReport.CleanupError)
		}
	}
}

func logSummary(logger *zap.Logger, configuration Configuration, report migration.BatchReport) {
	for _, taskReport := range report.Tasks {
		if taskReport.Succeeded() {
			continue
		}

		errorKind, _ := migration.KindOf(taskReport.Error)
		logger.Warn(
			taskFailureSummaryMessageConstant,
			zap.String(summarySourceURLFieldNameConstant, taskReport.Task.SourceURL),
			zap.String(summaryDestinationPathFieldNameConstant, taskReport.Task.DestinationPath),
			zap.String(summaryFailedStageFieldNameConstant, string(taskReport.FailedStage)),
			zap.String(summaryErrorKindFieldNameConstant, string(errorKind)),
			zap.Error(taskReport.Error),
		)
	}

	logger.Info(
		batchSummaryMessageConstant,
		zap.String(backendFieldNameConstant, configuration.Transport.Backend),
		zap.Int(taskCountFieldNameConstant, len(report.Tasks)),
		zap.Int(succeededCountFieldNameConstant, report.SucceededCount()),
		zap.Int(failedCountFieldNameConstant, report.FailedCount()),
		zap.Int(cleanupFailureCountFieldNameConstant, report.CleanupFailureCount()),
	)
}
