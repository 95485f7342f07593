package migration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	workspaceDirectoryPrefixConstant      = "migration-"
	workspaceRootPermissionsConstant      = os.FileMode(0o755)
	workspaceDirectoryPermissionsConstant = os.FileMode(0o700)
	workspaceRootErrorTemplateConstant    = "prepare workspace root %s: %w"
	workspaceCreateErrorTemplateConstant  = "create workspace %s: %w"
	workspaceRemoveErrorTemplateConstant  = "remove workspace %s: %w"
	workspaceOutsideRootTemplateConstant  = "workspace %s is outside workspace root %s"
)

// WorkspaceManager allocates and removes uniquely named workspace directories beneath a root.
type WorkspaceManager struct {
	root               string
	identifierProvider func() string
}

// NewWorkspaceManager constructs a manager rooted at root, defaulting to the OS temporary directory.
func NewWorkspaceManager(root string) *WorkspaceManager {
	if len(root) == 0 {
		root = os.TempDir()
	}
	return &WorkspaceManager{root: root, identifierProvider: uuid.NewString}
}

// Root returns the directory under which workspaces are created.
func (manager *WorkspaceManager) Root() string {
	return manager.root
}

// Create allocates a fresh, empty workspace directory.
func (manager *WorkspaceManager) Create() (Workspace, error) {
	if mkdirError := os.MkdirAll(manager.root, workspaceRootPermissionsConstant); mkdirError != nil {
		return Workspace{}, fmt.Errorf(workspaceRootErrorTemplateConstant, manager.root, mkdirError)
	}

	workspacePath := filepath.Join(manager.root, workspaceDirectoryPrefixConstant+manager.identifierProvider())
	if mkdirError := os.Mkdir(workspacePath, workspaceDirectoryPermissionsConstant); mkdirError != nil {
		return Workspace{}, fmt.Errorf(workspaceCreateErrorTemplateConstant, workspacePath, mkdirError)
	}

	return Workspace{Path: workspacePath}, nil
}

// Remove deletes the workspace tree. Removing a zero or already removed workspace succeeds.
func (manager *WorkspaceManager) Remove(workspace Workspace) error {
	if workspace.IsZero() {
		return nil
	}

	relativePath, relativeError := filepath.Rel(manager.root, workspace.Path)
	if relativeError != nil || relativePath == "." || strings.HasPrefix(relativePath, "..") {
		return fmt.Errorf(workspaceOutsideRootTemplateConstant, workspace.Path, manager.root)
	}

	if removeError := os.RemoveAll(workspace.Path); removeError != nil && !errors.Is(removeError, os.ErrNotExist) {
		return fmt.Errorf(workspaceRemoveErrorTemplateConstant, workspace.Path, removeError)
	}
	return nil
}
