package migration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	missingNamespaceGroupsMessageConstant  = "destination path must contain at least one namespace"
	namespaceLookupErrorTemplateConstant   = "lookup of namespace %s: %w"
	namespaceCreateErrorTemplateConstant   = "creation of namespace %s: %w"
	namespaceRelookupErrorTemplateConstant = "lookup of concurrently created namespace %s: %w"
	namespaceReusedLogMessageConstant      = "Reusing destination namespace"
	namespaceCreatedLogMessageConstant     = "Created destination namespace"
	namespaceCreateRaceLogMessageConstant  = "Destination namespace created concurrently; reusing it"
	namespaceFullPathFieldNameConstant     = "namespace_path"
	namespaceIdentifierFieldNameConstant   = "namespace_id"
	destinationAPIMissingMessageConstant   = "destination API not configured"
)

// ErrDestinationAPINotConfigured indicates that a component was constructed without a DestinationAPI.
var ErrDestinationAPINotConfigured = errors.New(destinationAPIMissingMessageConstant)

// NamespaceResolution records the deepest namespace of a path and which of its ancestors were created.
type NamespaceResolution struct {
	Namespace    Namespace
	CreatedPaths []string
	ReusedPaths  []string
}

// NamespaceResolver ensures that a namespace hierarchy exists on the destination.
type NamespaceResolver struct {
	destination DestinationAPI
	logger      *zap.Logger
}

// NewNamespaceResolver constructs a resolver backed by the provided destination API.
func NewNamespaceResolver(destination DestinationAPI, logger *zap.Logger) (*NamespaceResolver, error) {
	if destination == nil {
		return nil, ErrDestinationAPINotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NamespaceResolver{destination: destination, logger: logger}, nil
}

// ResolveOrCreate walks the group segments from the root, reusing existing namespaces
// and creating missing ones beneath their parent. Only a not-found lookup leads to creation.
func (resolver *NamespaceResolver) ResolveOrCreate(executionContext context.Context, groups NamespacePath) (NamespaceResolution, error) {
	resolution := NamespaceResolution{}
	if len(groups) == 0 {
		return resolution, OperationError{Kind: ErrorKindNamespaceResolution, Subject: groups.String(), Cause: errors.New(missingNamespaceGroupsMessageConstant)}
	}

	var parent *Namespace
	for segmentIndex := range groups {
		segment := groups[segmentIndex]
		fullPath := groups[:segmentIndex+1].String()

		namespace, created, resolveError := resolver.resolveSegment(executionContext, segment, fullPath, parent)
		if resolveError != nil {
			return resolution, OperationError{Kind: ErrorKindNamespaceResolution, Subject: fullPath, Cause: resolveError}
		}

		if created {
			resolution.CreatedPaths = append(resolution.CreatedPaths, fullPath)
		} else {
			resolution.ReusedPaths = append(resolution.ReusedPaths, fullPath)
		}

		resolved := namespace
		parent = &resolved
	}

	resolution.Namespace = *parent
	return resolution, nil
}

func (resolver *NamespaceResolver) resolveSegment(executionContext context.Context, segment string, fullPath string, parent *Namespace) (Namespace, bool, error) {
	existing, lookupError := resolver.destination.LookupNamespace(executionContext, fullPath)
	if lookupError == nil {
		resolver.logger.Debug(namespaceReusedLogMessageConstant,
			zap.String(namespaceFullPathFieldNameConstant, fullPath),
			zap.Int(namespaceIdentifierFieldNameConstant, existing.ID),
		)
		return existing, false, nil
	}
	if !errors.Is(lookupError, ErrNotFound) {
		return Namespace{}, false, fmt.Errorf(namespaceLookupErrorTemplateConstant, fullPath, lookupError)
	}

	request := NamespaceCreateRequest{
		Name:        segment,
		Path:        segment,
		Description: fmt.Sprintf(namespaceDescriptionTemplateConstant, segment),
		Visibility:  NamespaceVisibilityPrivate,
	}
	if parent != nil {
		parentIdentifier := parent.ID
		request.ParentID = &parentIdentifier
	}

	created, createError := resolver.destination.CreateNamespace(executionContext, request)
	if createError == nil {
		resolver.logger.Info(namespaceCreatedLogMessageConstant,
			zap.String(namespaceFullPathFieldNameConstant, fullPath),
			zap.Int(namespaceIdentifierFieldNameConstant, created.ID),
		)
		return created, true, nil
	}
	if !errors.Is(createError, ErrAlreadyExists) {
		return Namespace{}, false, fmt.Errorf(namespaceCreateErrorTemplateConstant, fullPath, createError)
	}

	concurrent, relookupError := resolver.destination.LookupNamespace(executionContext, fullPath)
	if relookupError != nil {
		return Namespace{}, false, fmt.Errorf(namespaceRelookupErrorTemplateConstant, fullPath, relookupError)
	}
	resolver.logger.Info(namespaceCreateRaceLogMessageConstant,
		zap.String(namespaceFullPathFieldNameConstant, fullPath),
		zap.Int(namespaceIdentifierFieldNameConstant, concurrent.ID),
	)
	return concurrent, false, nil
}
