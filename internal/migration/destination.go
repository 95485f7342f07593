package migration

import "context"

const (
	// NamespaceVisibilityPrivate is the visibility assigned to created namespaces.
	NamespaceVisibilityPrivate           = "private"
	namespaceDescriptionTemplateConstant = "Description for %s"
	projectDescriptionConstant           = "Migrated project"
)

// NamespaceCreateRequest describes a namespace to create beneath an optional parent.
type NamespaceCreateRequest struct {
	Name        string
	Path        string
	Description string
	Visibility  string
	ParentID    *int
}

// ProjectCreateRequest describes a project to create inside a namespace.
type ProjectCreateRequest struct {
	Name        string
	Path        string
	NamespaceID int
	Description string
}

// DestinationAPI is the subset of the destination service the migration relies on.
// Implementations wrap ErrNotFound for missing resources and ErrAlreadyExists for
// creation conflicts so callers can tell them apart from other failures.
type DestinationAPI interface {
	LookupNamespace(executionContext context.Context, fullPath string) (Namespace, error)
	CreateNamespace(executionContext context.Context, request NamespaceCreateRequest) (Namespace, error)
	CreateProject(executionContext context.Context, request ProjectCreateRequest) (Project, error)
	LookupProject(executionContext context.Context, fullPath string) (Project, error)
}
