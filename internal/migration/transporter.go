package migration

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

const (
	// DestinationRemoteName is the remote registered in a workspace before pushing.
	DestinationRemoteName = "destination"
	// DestinationPushUsername is the placeholder user presented together with the destination token.
	DestinationPushUsername = "oauth2"

	mirrorBackendMissingMessageConstant    = "mirror backend not configured"
	workspaceManagerMissingMessageConstant = "workspace manager not configured"
	workspaceMissingMessageConstant        = "workspace was not created"
	mirrorCloneStartLogMessageConstant     = "Mirror cloning source repository"
	mirrorPushStartLogMessageConstant      = "Mirror pushing workspace to destination"
	workspaceReleasedLogMessageConstant    = "Released workspace"
	workspacePathFieldNameConstant         = "workspace"
	sourceURLFieldNameConstant             = "source_url"
	destinationURLFieldNameConstant        = "destination_url"
)

// Mirror refspecs pushed to the destination.
const (
	BranchesMirrorRefSpec = "+refs/heads/*:refs/heads/*"
	TagsMirrorRefSpec     = "+refs/tags/*:refs/tags/*"
)

var (
	// ErrMirrorBackendNotConfigured indicates a transporter constructed without a backend.
	ErrMirrorBackendNotConfigured = errors.New(mirrorBackendMissingMessageConstant)
	// ErrWorkspaceManagerNotConfigured indicates a transporter constructed without a workspace manager.
	ErrWorkspaceManagerNotConfigured = errors.New(workspaceManagerMissingMessageConstant)
	errWorkspaceNotCreated           = errors.New(workspaceMissingMessageConstant)
)

// MirrorCloneRequest describes a bare mirror clone of every source ref into Directory.
type MirrorCloneRequest struct {
	SourceURL      string
	Directory      string
	Authentication BasicAuthentication
}

// MirrorPushRequest describes a forced push of every branch and tag from Directory.
type MirrorPushRequest struct {
	Directory      string
	RemoteName     string
	DestinationURL string
	RefSpecs       []string
	Authentication BasicAuthentication
}

// MirrorBackend performs git transport work for the transporter.
type MirrorBackend interface {
	MirrorClone(executionContext context.Context, request MirrorCloneRequest) error
	MirrorPush(executionContext context.Context, request MirrorPushRequest) error
}

// RepositoryTransport moves a repository through a local workspace.
type RepositoryTransport interface {
	CloneMirror(executionContext context.Context, sourceURL string, credentials SourceCredentials) (Workspace, error)
	PushMirror(executionContext context.Context, workspace Workspace, destinationURL string, credentials DestinationCredentials) error
	Release(workspace Workspace) error
}

// TransporterDependencies enumerates collaborators required by RepositoryTransporter.
type TransporterDependencies struct {
	Backend    MirrorBackend
	Workspaces *WorkspaceManager
	Logger     *zap.Logger
}

// RepositoryTransporter mirror-clones source repositories and pushes them to the destination.
type RepositoryTransporter struct {
	backend    MirrorBackend
	workspaces *WorkspaceManager
	logger     *zap.Logger
}

// NewRepositoryTransporter validates dependencies and constructs a transporter.
func NewRepositoryTransporter(dependencies TransporterDependencies) (*RepositoryTransporter, error) {
	if dependencies.Backend == nil {
		return nil, ErrMirrorBackendNotConfigured
	}
	if dependencies.Workspaces == nil {
		return nil, ErrWorkspaceManagerNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepositoryTransporter{backend: dependencies.Backend, workspaces: dependencies.Workspaces, logger: logger}, nil
}

// CloneMirror creates a workspace and mirror-clones the source into it. When the clone
// fails the workspace is still returned so the caller can release it.
func (transporter *RepositoryTransporter) CloneMirror(executionContext context.Context, sourceURL string, credentials SourceCredentials) (Workspace, error) {
	workspace, workspaceError := transporter.workspaces.Create()
	if workspaceError != nil {
		return Workspace{}, OperationError{Kind: ErrorKindClone, Subject: sourceURL, Cause: workspaceError}
	}

	transporter.logger.Debug(mirrorCloneStartLogMessageConstant,
		zap.String(sourceURLFieldNameConstant, sourceURL),
		zap.String(workspacePathFieldNameConstant, workspace.Path),
	)

	cloneError := transporter.backend.MirrorClone(executionContext, MirrorCloneRequest{
		SourceURL:      sourceURL,
		Directory:      workspace.Path,
		Authentication: BasicAuthentication{Username: credentials.Username, Password: credentials.Password},
	})
	if cloneError != nil {
		return workspace, OperationError{Kind: ErrorKindClone, Subject: sourceURL, Cause: cloneError}
	}
	return workspace, nil
}

// PushMirror force-pushes every branch and tag in the workspace to destinationURL.
func (transporter *RepositoryTransporter) PushMirror(executionContext context.Context, workspace Workspace, destinationURL string, credentials DestinationCredentials) error {
	if workspace.IsZero() {
		return OperationError{Kind: ErrorKindPush, Subject: destinationURL, Cause: errWorkspaceNotCreated}
	}

	transporter.logger.Debug(mirrorPushStartLogMessageConstant,
		zap.String(destinationURLFieldNameConstant, destinationURL),
		zap.String(workspacePathFieldNameConstant, workspace.Path),
	)

	pushError := transporter.backend.MirrorPush(executionContext, MirrorPushRequest{
		Directory:      workspace.Path,
		RemoteName:     DestinationRemoteName,
		DestinationURL: destinationURL,
		RefSpecs:       []string{BranchesMirrorRefSpec, TagsMirrorRefSpec},
		Authentication: BasicAuthentication{Username: DestinationPushUsername, Password: credentials.Token},
	})
	if pushError != nil {
		return OperationError{Kind: ErrorKindPush, Subject: destinationURL, Cause: pushError}
	}
	return nil
}

// Release removes the workspace tree.
func (transporter *RepositoryTransporter) Release(workspace Workspace) error {
	if removeError := transporter.workspaces.Remove(workspace); removeError != nil {
		return OperationError{Kind: ErrorKindCleanup, Subject: workspace.Path, Cause: removeError}
	}
	if !workspace.IsZero() {
		transporter.logger.Debug(workspaceReleasedLogMessageConstant, zap.String(workspacePathFieldNameConstant, workspace.Path))
	}
	return nil
}
