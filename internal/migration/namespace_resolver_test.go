package migration_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/repomigrate/internal/migration"
)

func TestNamespaceResolverCreatesMissingHierarchy(testInstance *testing.T) {
	destination := newFakeDestination()
	resolver, resolverError := migration.NewNamespaceResolver(destination, zap.NewNop())
	require.NoError(testInstance, resolverError)

	resolution, resolveError := resolver.ResolveOrCreate(context.Background(), migration.NamespacePath{"teamA", "teamB"})
	require.NoError(testInstance, resolveError)

	require.Equal(testInstance, []string{"teamA", "teamA/teamB"}, resolution.CreatedPaths)
	require.Empty(testInstance, resolution.ReusedPaths)
	require.Equal(testInstance, "teamA/teamB", resolution.Namespace.FullPath)

	require.Len(testInstance, destination.namespaceCreations, 2)
	rootRequest := destination.namespaceCreations[0]
	require.Equal(testInstance, "teamA", rootRequest.Name)
	require.Equal(testInstance, "teamA", rootRequest.Path)
	require.Equal(testInstance, "Description for teamA", rootRequest.Description)
	require.Equal(testInstance, migration.NamespaceVisibilityPrivate, rootRequest.Visibility)
	require.Nil(testInstance, rootRequest.ParentID)

	childRequest := destination.namespaceCreations[1]
	require.NotNil(testInstance, childRequest.ParentID)
	require.Equal(testInstance, destination.namespaces["teamA"].ID, *childRequest.ParentID)
}

func TestNamespaceResolverIsIdempotent(testInstance *testing.T) {
	destination := newFakeDestination()
	resolver, resolverError := migration.NewNamespaceResolver(destination, nil)
	require.NoError(testInstance, resolverError)

	groups := migration.NamespacePath{"teamA", "teamB"}
	firstResolution, firstError := resolver.ResolveOrCreate(context.Background(), groups)
	require.NoError(testInstance, firstError)
	creationsAfterFirstCall := destination.createdNamespaceCount()

	secondResolution, secondError := resolver.ResolveOrCreate(context.Background(), groups)
	require.NoError(testInstance, secondError)

	require.Equal(testInstance, firstResolution.Namespace.ID, secondResolution.Namespace.ID)
	require.Equal(testInstance, creationsAfterFirstCall, destination.createdNamespaceCount())
	require.Empty(testInstance, secondResolution.CreatedPaths)
	require.Equal(testInstance, []string{"teamA", "teamA/teamB"}, secondResolution.ReusedPaths)
}

func TestNamespaceResolverReusesExistingPrefix(testInstance *testing.T) {
	destination := newFakeDestination()
	existingRoot := destination.seedNamespace("teamA")

	resolver, resolverError := migration.NewNamespaceResolver(destination, nil)
	require.NoError(testInstance, resolverError)

	resolution, resolveError := resolver.ResolveOrCreate(context.Background(), migration.NamespacePath{"teamA", "teamB"})
	require.NoError(testInstance, resolveError)

	require.Equal(testInstance, []string{"teamA"}, resolution.ReusedPaths)
	require.Equal(testInstance, []string{"teamA/teamB"}, resolution.CreatedPaths)
	require.Len(testInstance, destination.namespaceCreations, 1)
	require.Equal(testInstance, existingRoot.ID, *destination.namespaceCreations[0].ParentID)
}

func TestNamespaceResolverPropagatesLookupFailures(testInstance *testing.T) {
	forbiddenError := errors.New("403 Forbidden")
	destination := newFakeDestination()
	destination.lookupErrors["teamA"] = forbiddenError

	resolver, resolverError := migration.NewNamespaceResolver(destination, nil)
	require.NoError(testInstance, resolverError)

	_, resolveError := resolver.ResolveOrCreate(context.Background(), migration.NamespacePath{"teamA"})
	require.Error(testInstance, resolveError)
	require.ErrorIs(testInstance, resolveError, forbiddenError)
	require.True(testInstance, migration.IsKind(resolveError, migration.ErrorKindNamespaceResolution))
	require.Zero(testInstance, destination.createdNamespaceCount())
}

func TestNamespaceResolverRelooksUpAfterConcurrentCreation(testInstance *testing.T) {
	destination := newFakeDestination()
	destination.lookupErrors["teamA"] = fmt.Errorf("group teamA: %w", migration.ErrNotFound)
	destination.concurrentCreators["teamA"] = true

	resolver, resolverError := migration.NewNamespaceResolver(destination, nil)
	require.NoError(testInstance, resolverError)

	resolution, resolveError := resolver.ResolveOrCreate(context.Background(), migration.NamespacePath{"teamA"})
	require.NoError(testInstance, resolveError)
	require.Equal(testInstance, destination.namespaces["teamA"].ID, resolution.Namespace.ID)
	require.Equal(testInstance, []string{"teamA"}, resolution.ReusedPaths)
	require.Equal(testInstance, []string{"teamA", "teamA"}, destination.namespaceLookups)
}

func TestNamespaceResolverPropagatesCreationFailures(testInstance *testing.T) {
	quotaError := errors.New("namespace quota exceeded")
	destination := newFakeDestination()
	destination.createErrors["teamA"] = quotaError

	resolver, resolverError := migration.NewNamespaceResolver(destination, nil)
	require.NoError(testInstance, resolverError)

	_, resolveError := resolver.ResolveOrCreate(context.Background(), migration.NamespacePath{"teamA", "teamB"})
	require.ErrorIs(testInstance, resolveError, quotaError)
	kind, found := migration.KindOf(resolveError)
	require.True(testInstance, found)
	require.Equal(testInstance, migration.ErrorKindNamespaceResolution, kind)
}

func TestNamespaceResolverRequiresGroups(testInstance *testing.T) {
	resolver, resolverError := migration.NewNamespaceResolver(newFakeDestination(), nil)
	require.NoError(testInstance, resolverError)

	_, resolveError := resolver.ResolveOrCreate(context.Background(), nil)
	require.True(testInstance, migration.IsKind(resolveError, migration.ErrorKindNamespaceResolution))
}

func TestNewNamespaceResolverRequiresDestination(testInstance *testing.T) {
	_, resolverError := migration.NewNamespaceResolver(nil, nil)
	require.ErrorIs(testInstance, resolverError, migration.ErrDestinationAPINotConfigured)
}
