package migration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	projectCreateErrorTemplateConstant = "creation of project %s: %w"
	projectLookupErrorTemplateConstant = "lookup of existing project %s: %w"
	projectCreatedLogMessageConstant   = "Created destination project"
	projectReusedLogMessageConstant    = "Reusing existing destination project"
	projectPathFieldNameConstant       = "project_path"
	projectIdentifierFieldNameConstant = "project_id"
	projectRemoteURLMissingTemplate    = "project %s has no git remote URL"
)

// ProvisionOutcome records whether a project was created or an existing one was reused.
type ProvisionOutcome string

// Provisioning outcomes.
const (
	ProvisionOutcomeCreated ProvisionOutcome = ProvisionOutcome("created")
	ProvisionOutcomeReused  ProvisionOutcome = ProvisionOutcome("reused")
)

// ProjectProvisioner ensures that a destination project exists inside a namespace.
type ProjectProvisioner struct {
	destination DestinationAPI
	logger      *zap.Logger
}

// NewProjectProvisioner constructs a provisioner backed by the provided destination API.
func NewProjectProvisioner(destination DestinationAPI, logger *zap.Logger) (*ProjectProvisioner, error) {
	if destination == nil {
		return nil, ErrDestinationAPINotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectProvisioner{destination: destination, logger: logger}, nil
}

// GetOrCreate creates the project and falls back to looking it up only when creation
// reports that it already exists.
func (provisioner *ProjectProvisioner) GetOrCreate(executionContext context.Context, namespace Namespace, name string) (Project, ProvisionOutcome, error) {
	projectPath := namespace.FullPath + namespacePathSeparatorConstant + name

	created, createError := provisioner.destination.CreateProject(executionContext, ProjectCreateRequest{
		Name:        name,
		Path:        name,
		NamespaceID: namespace.ID,
		Description: projectDescriptionConstant,
	})
	if createError == nil {
		if remoteError := requireRemoteURL(created, projectPath); remoteError != nil {
			return Project{}, "", remoteError
		}
		provisioner.logger.Info(projectCreatedLogMessageConstant,
			zap.String(projectPathFieldNameConstant, projectPath),
			zap.Int(projectIdentifierFieldNameConstant, created.ID),
		)
		return created, ProvisionOutcomeCreated, nil
	}
	if !errors.Is(createError, ErrAlreadyExists) {
		return Project{}, "", OperationError{Kind: ErrorKindProjectProvision, Subject: projectPath, Cause: fmt.Errorf(projectCreateErrorTemplateConstant, projectPath, createError)}
	}

	existing, lookupError := provisioner.destination.LookupProject(executionContext, projectPath)
	if lookupError != nil {
		return Project{}, "", OperationError{Kind: ErrorKindProjectProvision, Subject: projectPath, Cause: fmt.Errorf(projectLookupErrorTemplateConstant, projectPath, lookupError)}
	}
	if remoteError := requireRemoteURL(existing, projectPath); remoteError != nil {
		return Project{}, "", remoteError
	}

	provisioner.logger.Info(projectReusedLogMessageConstant,
		zap.String(projectPathFieldNameConstant, projectPath),
		zap.Int(projectIdentifierFieldNameConstant, existing.ID),
	)
	return existing, ProvisionOutcomeReused, nil
}

func requireRemoteURL(project Project, projectPath string) error {
	if len(project.RemoteURL) > 0 {
		return nil
	}
	return OperationError{Kind: ErrorKindProjectProvision, Subject: projectPath, Cause: fmt.Errorf(projectRemoteURLMissingTemplate, projectPath)}
}
