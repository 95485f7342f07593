package batch_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/repomigrate/internal/batch"
	"github.com/temirov/repomigrate/internal/execshell"
	"github.com/temirov/repomigrate/internal/migration"
)

const (
	commandTestSourceOneConstant          = "https://source.example.com/scm/alpha/one.git"
	commandTestSourceTwoConstant          = "https://source.example.com/scm/alpha/two.git"
	commandTestDestinationOneConstant     = "teama/teamb/one"
	commandTestDestinationTwoConstant     = "teama/two"
	commandTestDestinationURLConstant     = "https://gitlab.example.com"
	commandTestRemoteURLTemplateConstant  = "https://gitlab.example.com/%s.git"
	commandTestBatchSummaryMessage        = "Migration batch summary"
	commandTestConfigurationRejectedLog   = "Migration configuration rejected"
	commandTestTaskFailureMessage         = "Repository not migrated"
	commandTestSucceededFieldName         = "succeeded"
	commandTestFailedFieldName            = "failed"
	commandTestCloneFailureMessage        = "source unreachable"
	commandTestConcurrencyFlagConstant    = "--concurrency"
	commandTestBackendFlagConstant        = "--backend"
	commandTestWorkspaceRootFlagConstant  = "--workspace-root"
	commandTestOperationTimeoutFlagConst  = "--operation-timeout"
	commandTestGitCloneSubcommandConstant = "clone"
	commandTestGitPushSubcommandConstant  = "push"
)

type commandFakeDestination struct {
	mutex      sync.Mutex
	nextID     int
	namespaces map[string]migration.Namespace
	projects   map[string]migration.Project
}

func newCommandFakeDestination() *commandFakeDestination {
	return &commandFakeDestination{
		namespaces: map[string]migration.Namespace{},
		projects:   map[string]migration.Project{},
	}
}

func (destination *commandFakeDestination) LookupNamespace(_ context.Context, fullPath string) (migration.Namespace, error) {
	destination.mutex.Lock()
	defer destination.mutex.Unlock()
	namespace, exists := destination.namespaces[fullPath]
	if !exists {
		return migration.Namespace{}, migration.ErrNotFound
	}
	return namespace, nil
}

func (destination *commandFakeDestination) CreateNamespace(_ context.Context, request migration.NamespaceCreateRequest) (migration.Namespace, error) {
	destination.mutex.Lock()
	defer destination.mutex.Unlock()
	fullPath := request.Path
	if request.ParentID != nil {
		for parentPath, parent := range destination.namespaces {
			if parent.ID == *request.ParentID {
				fullPath = parentPath + "/" + request.Path
			}
		}
	}
	if _, exists := destination.namespaces[fullPath]; exists {
		return migration.Namespace{}, migration.ErrAlreadyExists
	}
	destination.nextID++
	namespace := migration.Namespace{ID: destination.nextID, FullPath: fullPath, ParentID: request.ParentID}
	destination.namespaces[fullPath] = namespace
	return namespace, nil
}

func (destination *commandFakeDestination) CreateProject(_ context.Context, request migration.ProjectCreateRequest) (migration.Project, error) {
	destination.mutex.Lock()
	defer destination.mutex.Unlock()
	namespacePath := ""
	for path, namespace := range destination.namespaces {
		if namespace.ID == request.NamespaceID {
			namespacePath = path
		}
	}
	fullPath := namespacePath + "/" + request.Path
	if _, exists := destination.projects[fullPath]; exists {
		return migration.Project{}, migration.ErrAlreadyExists
	}
	destination.nextID++
	project := migration.Project{
		ID:                destination.nextID,
		Name:              request.Name,
		NamespaceID:       request.NamespaceID,
		PathWithNamespace: fullPath,
		RemoteURL:         fmt.Sprintf(commandTestRemoteURLTemplateConstant, fullPath),
	}
	destination.projects[fullPath] = project
	return project, nil
}

func (destination *commandFakeDestination) LookupProject(_ context.Context, fullPath string) (migration.Project, error) {
	destination.mutex.Lock()
	defer destination.mutex.Unlock()
	project, exists := destination.projects[fullPath]
	if !exists {
		return migration.Project{}, migration.ErrNotFound
	}
	return project, nil
}

type commandFakeBackend struct {
	mutex       sync.Mutex
	cloneErrors map[string]error
	pushed      []string
}

func (backend *commandFakeBackend) MirrorClone(_ context.Context, request migration.MirrorCloneRequest) error {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	return backend.cloneErrors[request.SourceURL]
}

func (backend *commandFakeBackend) MirrorPush(_ context.Context, request migration.MirrorPushRequest) error {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.pushed = append(backend.pushed, request.DestinationURL)
	return nil
}

type commandRecordingRunner struct {
	mutex    sync.Mutex
	commands []execshell.ShellCommand
}

func (runner *commandRecordingRunner) Run(_ context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()
	runner.commands = append(runner.commands, command)
	return execshell.ExecutionResult{}, nil
}

func (runner *commandRecordingRunner) subcommands() []string {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()
	subcommands := make([]string, 0, len(runner.commands))
	for _, command := range runner.commands {
		if len(command.Details.Arguments) > 0 {
			subcommands = append(subcommands, command.Details.Arguments[0])
		}
	}
	return subcommands
}

func commandTestConfiguration(testInstance *testing.T) batch.Configuration {
	testInstance.Helper()
	configuration := batch.DefaultConfiguration()
	configuration.Source.Username = "migrator"
	configuration.Source.Password = "source-secret"
	configuration.Source.URLs = []string{commandTestSourceOneConstant, commandTestSourceTwoConstant}
	configuration.Destination.URL = commandTestDestinationURLConstant
	configuration.Destination.Token = "destination-token"
	configuration.Destination.Paths = []string{commandTestDestinationOneConstant, commandTestDestinationTwoConstant}
	configuration.Transport.WorkspaceRoot = testInstance.TempDir()
	return configuration
}

type commandHarness struct {
	builder           batch.CommandBuilder
	destination       *commandFakeDestination
	backend           *commandFakeBackend
	logs              *observer.ObservedLogs
	destinationCalled bool
}

func newCommandHarness(configuration batch.Configuration) *commandHarness {
	observedCore, observedLogs := observer.New(zapcore.DebugLevel)
	logger := zap.New(observedCore)

	harness := &commandHarness{
		destination: newCommandFakeDestination(),
		backend:     &commandFakeBackend{cloneErrors: map[string]error{}},
		logs:        observedLogs,
	}
	harness.builder = batch.CommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return logger
		},
		ConfigurationProvider: func() batch.Configuration {
			return configuration
		},
		DestinationResolver: func(batch.Configuration, *zap.Logger) (migration.DestinationAPI, error) {
			harness.destinationCalled = true
			return harness.destination, nil
		},
		BackendResolver: func(batch.Configuration, *zap.Logger) (migration.MirrorBackend, error) {
			return harness.backend, nil
		},
	}
	return harness
}

func executeCommand(testInstance *testing.T, builder *batch.CommandBuilder, arguments ...string) (string, error) {
	testInstance.Helper()
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	outputBuffer := &bytes.Buffer{}
	command.SetOut(outputBuffer)
	command.SetErr(outputBuffer)
	command.SetContext(context.Background())
	command.SetArgs(arguments)

	executionError := command.Execute()
	return outputBuffer.String(), executionError
}

func TestMigrateCommandMigratesEveryTask(testInstance *testing.T) {
	harness := newCommandHarness(commandTestConfiguration(testInstance))

	output, executionError := executeCommand(testInstance, &harness.builder)
	require.NoError(testInstance, executionError)

	require.Contains(testInstance, output, commandTestSourceOneConstant+" -> "+commandTestDestinationOneConstant+": success (created)")
	require.Contains(testInstance, output, commandTestSourceTwoConstant+" -> "+commandTestDestinationTwoConstant+": success (created)")
	require.ElementsMatch(testInstance, []string{
		fmt.Sprintf(commandTestRemoteURLTemplateConstant, commandTestDestinationOneConstant),
		fmt.Sprintf(commandTestRemoteURLTemplateConstant, commandTestDestinationTwoConstant),
	}, harness.backend.pushed)

	summaryEntries := harness.logs.FilterMessage(commandTestBatchSummaryMessage).All()
	require.Len(testInstance, summaryEntries, 1)
	require.EqualValues(testInstance, 2, summaryEntries[0].ContextMap()[commandTestSucceededFieldName])
	require.EqualValues(testInstance, 0, summaryEntries[0].ContextMap()[commandTestFailedFieldName])
}

func TestMigrateCommandReportsFailedTasks(testInstance *testing.T) {
	harness := newCommandHarness(commandTestConfiguration(testInstance))
	harness.backend.cloneErrors[commandTestSourceOneConstant] = errors.New(commandTestCloneFailureMessage)

	output, executionError := executeCommand(testInstance, &harness.builder)
	require.Error(testInstance, executionError)
	require.True(testInstance, migration.IsKind(executionError, migration.ErrorKindClone))
	require.ErrorContains(testInstance, executionError, commandTestCloneFailureMessage)

	require.Contains(testInstance, output, commandTestSourceOneConstant+" -> "+commandTestDestinationOneConstant+": failed at clone")
	require.Contains(testInstance, output, commandTestSourceTwoConstant+" -> "+commandTestDestinationTwoConstant+": success")

	failureEntries := harness.logs.FilterMessage(commandTestTaskFailureMessage).All()
	require.Len(testInstance, failureEntries, 1)
	require.Equal(testInstance, commandTestSourceOneConstant, failureEntries[0].ContextMap()["source_url"])
	require.Equal(testInstance, string(migration.ErrorKindClone), failureEntries[0].ContextMap()["error_kind"])
}

func TestMigrateCommandRejectsInvalidConfiguration(testInstance *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(*batch.Configuration)
		arguments []string
	}{
		{
			name: "missing_token",
			mutate: func(configuration *batch.Configuration) {
				configuration.Destination.Token = ""
			},
		},
		{
			name: "mismatched_lists",
			mutate: func(configuration *batch.Configuration) {
				configuration.Destination.Paths = configuration.Destination.Paths[:1]
			},
		},
		{
			name:      "concurrency_flag_below_one",
			mutate:    func(*batch.Configuration) {},
			arguments: []string{commandTestConcurrencyFlagConstant, "0"},
		},
		{
			name:      "unknown_backend_flag",
			mutate:    func(*batch.Configuration) {},
			arguments: []string{commandTestBackendFlagConstant, "svn"},
		},
		{
			name:      "negative_operation_timeout_flag",
			mutate:    func(*batch.Configuration) {},
			arguments: []string{commandTestOperationTimeoutFlagConst, "-1s"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			configuration := commandTestConfiguration(testInstance)
			testCase.mutate(&configuration)
			harness := newCommandHarness(configuration)

			output, executionError := executeCommand(testInstance, &harness.builder, testCase.arguments...)
			require.Error(testInstance, executionError)
			require.True(testInstance, migration.IsKind(executionError, migration.ErrorKindConfiguration))
			require.False(testInstance, harness.destinationCalled)
			require.Empty(testInstance, output)
			require.Equal(testInstance, 1, harness.logs.FilterMessage(commandTestConfigurationRejectedLog).Len())
		})
	}
}

func TestMigrateCommandFlagsOverrideConfiguration(testInstance *testing.T) {
	configuration := commandTestConfiguration(testInstance)
	workspaceRoot := testInstance.TempDir()

	var resolvedConfiguration batch.Configuration
	harness := newCommandHarness(configuration)
	harness.builder.BackendResolver = func(configuration batch.Configuration, _ *zap.Logger) (migration.MirrorBackend, error) {
		resolvedConfiguration = configuration
		return harness.backend, nil
	}

	_, executionError := executeCommand(
		testInstance,
		&harness.builder,
		commandTestConcurrencyFlagConstant, "2",
		commandTestWorkspaceRootFlagConstant, workspaceRoot,
		commandTestBackendFlagConstant, " GIT ",
		commandTestOperationTimeoutFlagConst, "90s",
	)
	require.NoError(testInstance, executionError)

	require.Equal(testInstance, 2, resolvedConfiguration.Concurrency)
	require.Equal(testInstance, workspaceRoot, resolvedConfiguration.Transport.WorkspaceRoot)
	require.Equal(testInstance, batch.BackendGitCLI, resolvedConfiguration.Transport.Backend)
	require.Equal(testInstance, "1m30s", resolvedConfiguration.OperationTimeout.String())
}

func TestMigrateCommandGitBackendRunsGitExecutable(testInstance *testing.T) {
	configuration := commandTestConfiguration(testInstance)
	configuration.Source.URLs = configuration.Source.URLs[:1]
	configuration.Destination.Paths = configuration.Destination.Paths[:1]
	configuration.Transport.Backend = batch.BackendGitCLI

	harness := newCommandHarness(configuration)
	runner := &commandRecordingRunner{}
	harness.builder.BackendResolver = nil
	harness.builder.CommandRunner = runner

	_, executionError := executeCommand(testInstance, &harness.builder)
	require.NoError(testInstance, executionError)

	subcommands := runner.subcommands()
	require.NotEmpty(testInstance, subcommands)
	require.Equal(testInstance, commandTestGitCloneSubcommandConstant, subcommands[0])
	require.Contains(testInstance, subcommands, commandTestGitPushSubcommandConstant)

	for _, command := range runner.commands {
		for _, argument := range command.Details.Arguments {
			if strings.Contains(argument, "gitlab.example.com") {
				require.Contains(testInstance, argument, "oauth2:destination-token@")
			}
		}
	}
}

func TestMigrateCommandRejectsPositionalArguments(testInstance *testing.T) {
	harness := newCommandHarness(commandTestConfiguration(testInstance))

	_, executionError := executeCommand(testInstance, &harness.builder, "unexpected")
	require.Error(testInstance, executionError)
	require.False(testInstance, harness.destinationCalled)
}
