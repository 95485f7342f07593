package migration_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/repomigrate/internal/migration"
)

const (
	testTransporterSourceURLConstant      = "https://bitbucket.example.com/scm/org/repo1.git"
	testTransporterDestinationURLConstant = "https://gitlab.example.com/teamA/repo1.git"
)

func TestWorkspaceManagerCreatesUniqueWorkspaces(testInstance *testing.T) {
	workspaceRoot := filepath.Join(testInstance.TempDir(), "workspaces")
	manager := migration.NewWorkspaceManager(workspaceRoot)

	firstWorkspace, firstError := manager.Create()
	require.NoError(testInstance, firstError)
	secondWorkspace, secondError := manager.Create()
	require.NoError(testInstance, secondError)

	require.NotEqual(testInstance, firstWorkspace.Path, secondWorkspace.Path)
	require.Equal(testInstance, workspaceRoot, filepath.Dir(firstWorkspace.Path))
	require.True(testInstance, strings.HasPrefix(filepath.Base(firstWorkspace.Path), "migration-"))
	require.DirExists(testInstance, firstWorkspace.Path)

	require.NoError(testInstance, manager.Remove(firstWorkspace))
	require.NoDirExists(testInstance, firstWorkspace.Path)
	require.NoError(testInstance, manager.Remove(firstWorkspace))
	require.NoError(testInstance, manager.Remove(migration.Workspace{}))
}

func TestWorkspaceManagerRefusesPathsOutsideRoot(testInstance *testing.T) {
	workspaceRoot := testInstance.TempDir()
	outsideDirectory := testInstance.TempDir()
	manager := migration.NewWorkspaceManager(workspaceRoot)

	removeError := manager.Remove(migration.Workspace{Path: outsideDirectory})
	require.Error(testInstance, removeError)
	require.DirExists(testInstance, outsideDirectory)
}

func TestWorkspaceManagerDefaultsToTemporaryDirectory(testInstance *testing.T) {
	require.Equal(testInstance, os.TempDir(), migration.NewWorkspaceManager("").Root())
}

func TestRepositoryTransporterCloneMirror(testInstance *testing.T) {
	workspaceRoot := testInstance.TempDir()
	backend := newRecordingMirrorBackend()
	transporter, transporterError := migration.NewRepositoryTransporter(migration.TransporterDependencies{
		Backend:    backend,
		Workspaces: migration.NewWorkspaceManager(workspaceRoot),
	})
	require.NoError(testInstance, transporterError)

	workspace, cloneError := transporter.CloneMirror(context.Background(), testTransporterSourceURLConstant, testCredentials().Source)
	require.NoError(testInstance, cloneError)
	require.FileExists(testInstance, filepath.Join(workspace.Path, testMirrorMarkerFileNameConstant))

	require.Len(testInstance, backend.cloneRequests, 1)
	cloneRequest := backend.cloneRequests[0]
	require.Equal(testInstance, testTransporterSourceURLConstant, cloneRequest.SourceURL)
	require.Equal(testInstance, workspace.Path, cloneRequest.Directory)
	require.Equal(testInstance, migration.BasicAuthentication{Username: testSourceUsernameConstant, Password: testSourcePasswordConstant}, cloneRequest.Authentication)

	require.NoError(testInstance, transporter.Release(workspace))
	require.NoDirExists(testInstance, workspace.Path)
}

func TestRepositoryTransporterReturnsWorkspaceWhenCloneFails(testInstance *testing.T) {
	authenticationError := errors.New("authentication required")
	workspaceRoot := testInstance.TempDir()
	backend := newRecordingMirrorBackend()
	backend.cloneErrors[testTransporterSourceURLConstant] = authenticationError

	transporter, transporterError := migration.NewRepositoryTransporter(migration.TransporterDependencies{
		Backend:    backend,
		Workspaces: migration.NewWorkspaceManager(workspaceRoot),
	})
	require.NoError(testInstance, transporterError)

	workspace, cloneError := transporter.CloneMirror(context.Background(), testTransporterSourceURLConstant, testCredentials().Source)
	require.ErrorIs(testInstance, cloneError, authenticationError)
	require.True(testInstance, migration.IsKind(cloneError, migration.ErrorKindClone))
	require.False(testInstance, workspace.IsZero())
	require.DirExists(testInstance, workspace.Path)

	require.NoError(testInstance, transporter.Release(workspace))
	require.Empty(testInstance, listWorkspaceEntries(workspaceRoot))
}

func TestRepositoryTransporterPushMirror(testInstance *testing.T) {
	backend := newRecordingMirrorBackend()
	transporter, transporterError := migration.NewRepositoryTransporter(migration.TransporterDependencies{
		Backend:    backend,
		Workspaces: migration.NewWorkspaceManager(testInstance.TempDir()),
	})
	require.NoError(testInstance, transporterError)

	workspace := migration.Workspace{Path: testInstance.TempDir()}
	pushError := transporter.PushMirror(context.Background(), workspace, testTransporterDestinationURLConstant, testCredentials().Destination)
	require.NoError(testInstance, pushError)

	require.Len(testInstance, backend.pushRequests, 1)
	pushRequest := backend.pushRequests[0]
	require.Equal(testInstance, migration.DestinationRemoteName, pushRequest.RemoteName)
	require.Equal(testInstance, testTransporterDestinationURLConstant, pushRequest.DestinationURL)
	require.Equal(testInstance, []string{migration.BranchesMirrorRefSpec, migration.TagsMirrorRefSpec}, pushRequest.RefSpecs)
	require.Equal(testInstance, migration.BasicAuthentication{Username: "oauth2", Password: testDestinationTokenConstant}, pushRequest.Authentication)
}

func TestRepositoryTransporterPushFailureKind(testInstance *testing.T) {
	rejectedError := errors.New("pre-receive hook declined")
	backend := newRecordingMirrorBackend()
	backend.pushErrors[testTransporterDestinationURLConstant] = rejectedError

	transporter, transporterError := migration.NewRepositoryTransporter(migration.TransporterDependencies{
		Backend:    backend,
		Workspaces: migration.NewWorkspaceManager(testInstance.TempDir()),
	})
	require.NoError(testInstance, transporterError)

	pushError := transporter.PushMirror(context.Background(), migration.Workspace{Path: testInstance.TempDir()}, testTransporterDestinationURLConstant, testCredentials().Destination)
	require.ErrorIs(testInstance, pushError, rejectedError)
	require.True(testInstance, migration.IsKind(pushError, migration.ErrorKindPush))

	zeroWorkspaceError := transporter.PushMirror(context.Background(), migration.Workspace{}, testTransporterDestinationURLConstant, testCredentials().Destination)
	require.True(testInstance, migration.IsKind(zeroWorkspaceError, migration.ErrorKindPush))
}

func TestNewRepositoryTransporterValidatesDependencies(testInstance *testing.T) {
	_, missingBackendError := migration.NewRepositoryTransporter(migration.TransporterDependencies{Workspaces: migration.NewWorkspaceManager("")})
	require.ErrorIs(testInstance, missingBackendError, migration.ErrMirrorBackendNotConfigured)

	_, missingWorkspacesError := migration.NewRepositoryTransporter(migration.TransporterDependencies{Backend: newRecordingMirrorBackend()})
	require.ErrorIs(testInstance, missingWorkspacesError, migration.ErrWorkspaceManagerNotConfigured)
}
