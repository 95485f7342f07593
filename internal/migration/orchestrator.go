package migration

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency runs tasks one after another in input order.
	DefaultConcurrency = 1

	repositoryTransportMissingMessageConstant = "repository transport not configured"
	taskStartedLogMessageConstant             = "Starting repository migration"
	taskSucceededLogMessageConstant           = "Repository migration succeeded"
	taskFailedLogMessageConstant              = "Repository migration failed"
	taskCleanupFailedLogMessageConstant       = "Unable to release migration workspace"
	batchStartedLogMessageConstant            = "Starting batch migration"
	batchFinishedLogMessageConstant           = "Batch migration finished"
	destinationPathFieldNameConstant          = "destination_path"
	stageFieldNameConstant                    = "stage"
	outcomeFieldNameConstant                  = "outcome"
	errorKindFieldNameConstant                = "error_kind"
	durationFieldNameConstant                 = "duration"
	taskCountFieldNameConstant                = "tasks"
	succeededCountFieldNameConstant           = "succeeded"
	failedCountFieldNameConstant              = "failed"
	concurrencyFieldNameConstant              = "concurrency"
	provisionOutcomeFieldNameConstant         = "project_outcome"
)

// ErrRepositoryTransportNotConfigured indicates an orchestrator constructed without a transport.
var ErrRepositoryTransportNotConfigured = errors.New(repositoryTransportMissingMessageConstant)

// OrchestratorDependencies enumerates collaborators required by the orchestrator.
type OrchestratorDependencies struct {
	Destination DestinationAPI
	Transport   RepositoryTransport
	Logger      *zap.Logger
}

// OrchestratorOptions configure batch execution.
type OrchestratorOptions struct {
	Credentials      Credentials
	Concurrency      int
	OperationTimeout time.Duration
}

// Orchestrator drives tasks through validate, clone, provision, push and cleanup.
type Orchestrator struct {
	namespaceResolver  *NamespaceResolver
	projectProvisioner *ProjectProvisioner
	transport          RepositoryTransport
	logger             *zap.Logger
	credentials        Credentials
	concurrency        int
	operationTimeout   time.Duration
	destinationLocks   *keyedLock
	clock              func() time.Time
}

// NewOrchestrator validates dependencies and constructs an orchestrator.
func NewOrchestrator(dependencies OrchestratorDependencies, options OrchestratorOptions) (*Orchestrator, error) {
	if dependencies.Transport == nil {
		return nil, ErrRepositoryTransportNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	namespaceResolver, resolverError := NewNamespaceResolver(dependencies.Destination, logger)
	if resolverError != nil {
		return nil, resolverError
	}
	projectProvisioner, provisionerError := NewProjectProvisioner(dependencies.Destination, logger)
	if provisionerError != nil {
		return nil, provisionerError
	}

	concurrency := options.Concurrency
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	return &Orchestrator{
		namespaceResolver:  namespaceResolver,
		projectProvisioner: projectProvisioner,
		transport:          dependencies.Transport,
		logger:             logger,
		credentials:        options.Credentials,
		concurrency:        concurrency,
		operationTimeout:   options.OperationTimeout,
		destinationLocks:   newKeyedLock(),
		clock:              time.Now,
	}, nil
}

// Run migrates every task and returns their reports in input order. A failing task never
// prevents the remaining tasks from running.
func (orchestrator *Orchestrator) Run(executionContext context.Context, tasks []Task) BatchReport {
	orchestrator.logger.Info(batchStartedLogMessageConstant,
		zap.Int(taskCountFieldNameConstant, len(tasks)),
		zap.Int(concurrencyFieldNameConstant, orchestrator.concurrency),
	)

	reports := make([]TaskReport, len(tasks))
	if orchestrator.concurrency == 1 {
		for taskIndex := range tasks {
			reports[taskIndex] = orchestrator.Migrate(executionContext, tasks[taskIndex])
		}
	} else {
		var workers errgroup.Group
		workers.SetLimit(orchestrator.concurrency)
		for taskIndex := range tasks {
			workers.Go(func() error {
				reports[taskIndex] = orchestrator.Migrate(executionContext, tasks[taskIndex])
				return nil
			})
		}
		_ = workers.Wait()
	}

	batchReport := BatchReport{Tasks: reports}
	orchestrator.logger.Info(batchFinishedLogMessageConstant,
		zap.Int(taskCountFieldNameConstant, len(tasks)),
		zap.Int(succeededCountFieldNameConstant, batchReport.SucceededCount()),
		zap.Int(failedCountFieldNameConstant, batchReport.FailedCount()),
	)
	return batchReport
}

// Migrate runs a single task through its stages. The workspace, once created, is always released.
func (orchestrator *Orchestrator) Migrate(executionContext context.Context, task Task) (report TaskReport) {
	startedAt := orchestrator.clock()
	report = TaskReport{Task: task, Outcome: OutcomeFailed}

	orchestrator.logger.Info(taskStartedLogMessageConstant,
		zap.String(sourceURLFieldNameConstant, task.SourceURL),
		zap.String(destinationPathFieldNameConstant, task.DestinationPath),
	)
	defer func() {
		report.Duration = orchestrator.clock().Sub(startedAt)
		orchestrator.logCompletion(report)
	}()

	if contextError := executionContext.Err(); contextError != nil {
		report.FailedStage = StageValidate
		report.Error = canceledError(task, contextError)
		return report
	}

	namespacePath, validationError := ValidatePath(task.DestinationPath)
	if validationError != nil {
		report.FailedStage = StageValidate
		report.Error = validationError
		return report
	}

	unlock, lockError := orchestrator.destinationLocks.Lock(executionContext, strings.ToLower(namespacePath.String()))
	if lockError != nil {
		report.FailedStage = StageClone
		report.Error = canceledError(task, lockError)
		return report
	}
	defer unlock()

	var workspace Workspace
	cloneError := orchestrator.runStage(executionContext, func(stageContext context.Context) error {
		var stageError error
		workspace, stageError = orchestrator.transport.CloneMirror(stageContext, task.SourceURL, orchestrator.credentials.Source)
		return stageError
	})
	report.Workspace = workspace
	if !workspace.IsZero() {
		defer func() {
			if releaseError := orchestrator.transport.Release(workspace); releaseError != nil {
				report.CleanupError = wrapOperationError(releaseError, ErrorKindCleanup, workspace.Path)
				orchestrator.logger.Warn(taskCleanupFailedLogMessageConstant,
					zap.String(sourceURLFieldNameConstant, task.SourceURL),
					zap.String(workspacePathFieldNameConstant, workspace.Path),
					zap.Error(releaseError),
				)
			}
		}()
	}
	if cloneError != nil {
		report.FailedStage = StageClone
		report.Error = orchestrator.stageError(executionContext, task, cloneError, ErrorKindClone)
		return report
	}

	provisionError := orchestrator.runStage(executionContext, func(stageContext context.Context) error {
		resolution, resolveError := orchestrator.namespaceResolver.ResolveOrCreate(stageContext, namespacePath.Groups())
		report.Namespaces = resolution
		if resolveError != nil {
			return resolveError
		}
		project, provisionOutcome, getOrCreateError := orchestrator.projectProvisioner.GetOrCreate(stageContext, resolution.Namespace, namespacePath.Name())
		if getOrCreateError != nil {
			return getOrCreateError
		}
		report.Project = project
		report.ProvisionOutcome = provisionOutcome
		return nil
	})
	if provisionError != nil {
		report.FailedStage = StageProvision
		report.Error = orchestrator.stageError(executionContext, task, provisionError, ErrorKindProjectProvision)
		return report
	}

	pushError := orchestrator.runStage(executionContext, func(stageContext context.Context) error {
		return orchestrator.transport.PushMirror(stageContext, workspace, report.Project.RemoteURL, orchestrator.credentials.Destination)
	})
	if pushError != nil {
		report.FailedStage = StagePush
		report.Error = orchestrator.stageError(executionContext, task, pushError, ErrorKindPush)
		return report
	}

	report.Outcome = OutcomeSuccess
	return report
}

func (orchestrator *Orchestrator) runStage(executionContext context.Context, stage func(context.Context) error) error {
	if orchestrator.operationTimeout <= 0 {
		return stage(executionContext)
	}
	stageContext, cancel := context.WithTimeout(executionContext, orchestrator.operationTimeout)
	defer cancel()
	return stage(stageContext)
}

func (orchestrator *Orchestrator) stageError(executionContext context.Context, task Task, err error, kind ErrorKind) error {
	stageError := wrapOperationError(err, kind, task.SourceURL)
	if errors.Is(executionContext.Err(), context.Canceled) {
		return canceledError(task, stageError)
	}
	return stageError
}

func (orchestrator *Orchestrator) logCompletion(report TaskReport) {
	if report.Succeeded() {
		orchestrator.logger.Info(taskSucceededLogMessageConstant,
			zap.String(sourceURLFieldNameConstant, report.Task.SourceURL),
			zap.String(destinationPathFieldNameConstant, report.Task.DestinationPath),
			zap.String(outcomeFieldNameConstant, string(report.Outcome)),
			zap.String(provisionOutcomeFieldNameConstant, string(report.ProvisionOutcome)),
			zap.Duration(durationFieldNameConstant, report.Duration),
		)
		return
	}

	errorKind, _ := KindOf(report.Error)
	orchestrator.logger.Warn(taskFailedLogMessageConstant,
		zap.String(sourceURLFieldNameConstant, report.Task.SourceURL),
		zap.String(destinationPathFieldNameConstant, report.Task.DestinationPath),
		zap.String(outcomeFieldNameConstant, string(report.Outcome)),
		zap.String(stageFieldNameConstant, string(report.FailedStage)),
		zap.String(errorKindFieldNameConstant, string(errorKind)),
		zap.Duration(durationFieldNameConstant, report.Duration),
		zap.Error(report.Error),
	)
}

func canceledError(task Task, cause error) error {
	return OperationError{Kind: ErrorKindCanceled, Subject: task.SourceURL, Cause: cause}
}
