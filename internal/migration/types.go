package migration

import "strings"

const namespacePathSeparatorConstant = "/"

// Task pairs a source repository with the destination path it migrates to.
type Task struct {
	SourceURL       string
	DestinationPath string
}

// SourceCredentials authenticate against the source git host.
type SourceCredentials struct {
	Username string
	Password string
}

// DestinationCredentials address and authenticate against the destination service.
type DestinationCredentials struct {
	BaseURL string
	Token   string
}

// Credentials groups the batch-wide credentials shared by every task.
type Credentials struct {
	Source      SourceCredentials
	Destination DestinationCredentials
}

// BasicAuthentication is a username and secret pair presented to a git remote.
type BasicAuthentication struct {
	Username string
	Password string
}

// NamespacePath is a validated destination path split into segments.
type NamespacePath []string

// String joins the segments with slashes.
func (path NamespacePath) String() string {
	return strings.Join(path, namespacePathSeparatorConstant)
}

// Groups returns every segment except the last one.
func (path NamespacePath) Groups() NamespacePath {
	if len(path) == 0 {
		return nil
	}
	return path[:len(path)-1]
}

// Name returns the final segment, which names the project.
func (path NamespacePath) Name() string {
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1]
}

// Namespace is a destination group.
type Namespace struct {
	ID       int
	FullPath string
	ParentID *int
}

// Project is a destination repository.
type Project struct {
	ID                int
	Name              string
	NamespaceID       int
	PathWithNamespace string
	RemoteURL         string
}

// Workspace is a local directory holding one task's mirror clone.
type Workspace struct {
	Path string
}

// IsZero reports whether the workspace was never created.
func (workspace Workspace) IsZero() bool {
	return len(workspace.Path) == 0
}
