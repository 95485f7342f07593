package gitlab

import (
	"context"
	"errors"
	"fmt"

	"github.com/temirov/repomigrate/internal/migration"
)

const translatedErrorTemplateConstant = "%w: %w"

// Destination adapts Client to migration.DestinationAPI.
type Destination struct {
	client *Client
}

// NewDestination wraps client for use by the migration workflow.
func NewDestination(client *Client) *Destination {
	return &Destination{client: client}
}

// LookupNamespace fetches the group at fullPath.
func (destination *Destination) LookupNamespace(executionContext context.Context, fullPath string) (migration.Namespace, error) {
	group, lookupError := destination.client.GetGroup(executionContext, fullPath)
	if lookupError != nil {
		return migration.Namespace{}, translateError(lookupError)
	}
	return namespaceFromGroup(group), nil
}

// CreateNamespace creates a group.
func (destination *Destination) CreateNamespace(executionContext context.Context, request migration.NamespaceCreateRequest) (migration.Namespace, error) {
	group, createError := destination.client.CreateGroup(executionContext, CreateGroupRequest{
		Name:        request.Name,
		Path:        request.Path,
		Description: request.Description,
		Visibility:  request.Visibility,
		ParentID:    request.ParentID,
	})
	if createError != nil {
		return migration.Namespace{}, translateError(createError)
	}
	return namespaceFromGroup(group), nil
}

// CreateProject creates a project.
func (destination *Destination) CreateProject(executionContext context.Context, request migration.ProjectCreateRequest) (migration.Project, error) {
	project, createError := destination.client.CreateProject(executionContext, CreateProjectRequest{
		Name:        request.Name,
		Path:        request.Path,
		NamespaceID: request.NamespaceID,
		Description: request.Description,
	})
	if createError != nil {
		return migration.Project{}, translateError(createError)
	}
	return projectFromAPI(project), nil
}

// LookupProject fetches the project at fullPath.
func (destination *Destination) LookupProject(executionContext context.Context, fullPath string) (migration.Project, error) {
	project, lookupError := destination.client.GetProject(executionContext, fullPath)
	if lookupError != nil {
		return migration.Project{}, translateError(lookupError)
	}
	return projectFromAPI(project), nil
}

func translateError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf(translatedErrorTemplateConstant, migration.ErrNotFound, err)
	case errors.Is(err, ErrAlreadyExists):
		return fmt.Errorf(translatedErrorTemplateConstant, migration.ErrAlreadyExists, err)
	default:
		return err
	}
}

func namespaceFromGroup(group Group) migration.Namespace {
	return migration.Namespace{ID: group.ID, FullPath: group.FullPath, ParentID: group.ParentID}
}

func projectFromAPI(project Project) migration.Project {
	return migration.Project{
		ID:                project.ID,
		Name:              project.Name,
		NamespaceID:       project.Namespace.ID,
		PathWithNamespace: project.PathWithNamespace,
		RemoteURL:         project.HTTPURLToRepo,
	}
}
