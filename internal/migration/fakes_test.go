package migration_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/temirov/repomigrate/internal/migration"
)

const (
	testDestinationBaseURLConstant   = "https://gitlab.example.com"
	testRemoteURLTemplateConstant    = "https://gitlab.example.com/%s.git"
	testMirrorMarkerFileNameConstant = "HEAD"
	testMirrorMarkerContentsConstant = "ref: refs/heads/main\n"
	testSourceUsernameConstant       = "source-user"
	testSourcePasswordConstant       = "source-secret"
	testDestinationTokenConstant     = "destination-token"
)

type fakeDestination struct {
	mutex              sync.Mutex
	namespaces         map[string]migration.Namespace
	projects           map[string]migration.Project
	nextIdentifier     int
	lookupErrors       map[string]error
	createErrors       map[string]error
	projectErrors      map[string]error
	concurrentCreators map[string]bool
	namespaceCreations []migration.NamespaceCreateRequest
	namespaceLookups   []string
	projectCreations   []migration.ProjectCreateRequest
	projectLookups     []string
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		namespaces:         make(map[string]migration.Namespace),
		projects:           make(map[string]migration.Project),
		lookupErrors:       make(map[string]error),
		createErrors:       make(map[string]error),
		projectErrors:      make(map[string]error),
		concurrentCreators: make(map[string]bool),
	}
}

func (destination *fakeDestination) seedNamespace(fullPath string) migration.Namespace {
	destination.mutex.Lock()
	defer destination.mutex.Unlock()
	destination.nextIdentifier++
	namespace := migration.Namespace{ID: destination.nextIdentifier, FullPath: fullPath}
	destination.namespaces[fullPath] = namespace
	return namespace
}

func (destination *fakeDestination) LookupNamespace(_ context.Context, fullPath string) (migration.Namespace, error) {
	destination.mutex.Lock()
	defer destination.mutex.Unlock()
	destination.namespaceLookups = append(destination.namespaceLookups, fullPath)
	if lookupError, exists := destination.lookupErrors[fullPath]; exists {
		return migration.Namespace{}, lookupError
	}
	namespace, exists := destination.namespaces[fullPath]
	if !exists {
		return migration.Namespace{}, fmt.Errorf("group %s: %w", fullPath, migration.ErrNotFound)
	}
	return namespace, nil
}

func (destination *fakeDestination) CreateNamespace(_ context.Context, request migration.NamespaceCreateRequest) (migration.Namespace, error) {
	destination.mutex.Lock()
	defer destination.mutex.Unlock()
	destination.namespaceCreations = append(destination.namespaceCreations, request)

	fullPath := request.Path
	if request.ParentID != nil {
		parentPath := destination.namespacePathByIdentifier(*request.ParentID)
		fullPath = parentPath + "/" + request.Path
	}
	if createError, exists := destination.createErrors[fullPath]; exists {
		return migration.Namespace{}, createError
	}

	destination.nextIdentifier++
	namespace := migration.Namespace{ID: destination.nextIdentifier, FullPath: fullPath, ParentID: request.ParentID}
	destination.namespaces[fullPath] = namespace
	if destination.concurrentCreators[fullPath] {
		delete(destination.lookupErrors, fullPath)
		return migration.Namespace{}, fmt.Errorf("group %s: %w", fullPath, migration.ErrAlreadyExists)
	}
	return namespace, nil
}

func (destination *fakeDestination) CreateProject(_ context.Context, request migration.ProjectCreateRequest) (migration.Project, error) {
	destination.mutex.Lock()
	defer destination.mutex.Unlock()
	destination.projectCreations = append(destination.projectCreations, request)

	projectPath := destination.namespacePathByIdentifier(request.NamespaceID) + "/" + request.Path
	if projectError, exists := destination.projectErrors[projectPath]; exists {
		return migration.Project{}, projectError
	}
	if _, exists := destination.projects[projectPath]; exists {
		return migration.Project{}, fmt.Errorf("project %s: %w", projectPath, migration.ErrAlreadyExists)
	}

	destination.nextIdentifier++
	project := migration.Project{
		ID:                destination.nextIdentifier,
		Name:              request.Name,
		NamespaceID:       request.NamespaceID,
		PathWithNamespace: projectPath,
		RemoteURL:         fmt.Sprintf(testRemoteURLTemplateConstant, projectPath),
	}
	destination.projects[projectPath] = project
	return project, nil
}

func (destination *fakeDestination) LookupProject(_ context.Context, fullPath string) (migration.Project, error) {
	destination.mutex.Lock()
	defer destination.mutex.Unlock()
	destination.projectLookups = append(destination.projectLookups, fullPath)
	project, exists := destination.projects[fullPath]
	if !exists {
		return migration.Project{}, fmt.Errorf("project %s: %w", fullPath, migration.ErrNotFound)
	}
	return project, nil
}

func (destination *fakeDestination) namespacePathByIdentifier(identifier int) string {
	for _, namespace := range destination.namespaces {
		if namespace.ID == identifier {
			return namespace.FullPath
		}
	}
	return ""
}

func (destination *fakeDestination) createdNamespaceCount() int {
	destination.mutex.Lock()
	defer destination.mutex.Unlock()
	return len(destination.namespaceCreations)
}

func (destination *fakeDestination) projectCount() int {
	destination.mutex.Lock()
	defer destination.mutex.Unlock()
	return len(destination.projects)
}

type recordingMirrorBackend struct {
	mutex           sync.Mutex
	cloneErrors     map[string]error
	pushErrors      map[string]error
	blockingSources map[string]bool
	cloneRequests   []migration.MirrorCloneRequest
	pushRequests    []migration.MirrorPushRequest
	onClone         func(migration.MirrorCloneRequest)
}

func newRecordingMirrorBackend() *recordingMirrorBackend {
	return &recordingMirrorBackend{
		cloneErrors:     make(map[string]error),
		pushErrors:      make(map[string]error),
		blockingSources: make(map[string]bool),
	}
}

func (backend *recordingMirrorBackend) MirrorClone(executionContext context.Context, request migration.MirrorCloneRequest) error {
	backend.mutex.Lock()
	backend.cloneRequests = append(backend.cloneRequests, request)
	cloneError := backend.cloneErrors[request.SourceURL]
	blocking := backend.blockingSources[request.SourceURL]
	onClone := backend.onClone
	backend.mutex.Unlock()

	if blocking {
		<-executionContext.Done()
		return executionContext.Err()
	}

	if onClone != nil {
		onClone(request)
	}

	markerError := os.WriteFile(filepath.Join(request.Directory, testMirrorMarkerFileNameConstant), []byte(testMirrorMarkerContentsConstant), 0o600)
	if markerError != nil {
		return markerError
	}
	return cloneError
}

func (backend *recordingMirrorBackend) MirrorPush(_ context.Context, request migration.MirrorPushRequest) error {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	backend.pushRequests = append(backend.pushRequests, request)
	return backend.pushErrors[request.DestinationURL]
}

func (backend *recordingMirrorBackend) clonedSources() []string {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()
	sources := make([]string, 0, len(backend.cloneRequests))
	for _, request := range backend.cloneRequests {
		sources = append(sources, request.SourceURL)
	}
	return sources
}

func testCredentials() migration.Credentials {
	return migration.Credentials{
		Source:      migration.SourceCredentials{Username: testSourceUsernameConstant, Password: testSourcePasswordConstant},
		Destination: migration.DestinationCredentials{BaseURL: testDestinationBaseURLConstant, Token: testDestinationTokenConstant},
	}
}

func listWorkspaceEntries(root string) []string {
	entries, readError := os.ReadDir(root)
	if readError != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "migration-") {
			names = append(names, entry.Name())
		}
	}
	return names
}
