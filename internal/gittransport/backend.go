package gittransport

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/temirov/repomigrate/internal/migration"
)

const (
	httpProtocolConstant                 = "http"
	httpsProtocolConstant                = "https"
	mirrorCloneErrorTemplateConstant     = "mirror clone of %s: %w"
	openRepositoryErrorTemplateConstant  = "open repository %s: %w"
	remoteConfigureErrorTemplateConstant = "configure remote %s: %w"
	mirrorPushErrorTemplateConstant      = "mirror push to %s: %w"
	listReferencesErrorTemplateConstant  = "list references of %s: %w"
	endpointParseErrorTemplateConstant   = "parse endpoint %s: %w"
	mirrorClonedLogMessageConstant       = "Mirror clone completed"
	mirrorPushedLogMessageConstant       = "Mirror push completed"
	mirrorUpToDateLogMessageConstant     = "Destination already up to date"
	directoryFieldNameConstant           = "directory"
	branchCountFieldNameConstant         = "branches"
	tagCountFieldNameConstant            = "tags"
	remoteFieldNameConstant              = "remote"
)

// ReferenceSet lists the branch and tag references of a repository.
type ReferenceSet struct {
	Branches map[string]plumbing.Hash
	Tags     map[string]plumbing.Hash
}

// Names returns every branch and tag reference name in sorted order.
func (references ReferenceSet) Names() []string {
	names := make([]string, 0, len(references.Branches)+len(references.Tags))
	for name := range references.Branches {
		names = append(names, name)
	}
	for name := range references.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backend implements migration.MirrorBackend with go-git.
type Backend struct {
	logger *zap.Logger
}

// NewBackend constructs a go-git mirror backend.
func NewBackend(logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{logger: logger}
}

// MirrorClone creates a bare mirror of the source in the request directory.
func (backend *Backend) MirrorClone(executionContext context.Context, request migration.MirrorCloneRequest) error {
	authentication, authenticationError := authenticationFor(request.SourceURL, request.Authentication)
	if authenticationError != nil {
		return authenticationError
	}

	repository, cloneError := git.PlainCloneContext(executionContext, request.Directory, true, &git.CloneOptions{
		URL:    request.SourceURL,
		Auth:   authentication,
		Mirror: true,
	})
	if cloneError != nil {
		return fmt.Errorf(mirrorCloneErrorTemplateConstant, request.SourceURL, cloneError)
	}

	references, referencesError := collectReferences(repository)
	if referencesError != nil {
		return fmt.Errorf(listReferencesErrorTemplateConstant, request.Directory, referencesError)
	}
	backend.logger.Debug(mirrorClonedLogMessageConstant,
		zap.String(directoryFieldNameConstant, request.Directory),
		zap.Int(branchCountFieldNameConstant, len(references.Branches)),
		zap.Int(tagCountFieldNameConstant, len(references.Tags)),
	)
	return nil
}

// MirrorPush registers the destination remote and force-pushes the requested refspecs.
// Destination refs matching a refspec but absent locally are deleted.
func (backend *Backend) MirrorPush(executionContext context.Context, request migration.MirrorPushRequest) error {
	repository, openError := git.PlainOpen(request.Directory)
	if openError != nil {
		return fmt.Errorf(openRepositoryErrorTemplateConstant, request.Directory, openError)
	}

	if remoteError := replaceRemote(repository, request.RemoteName, request.DestinationURL); remoteError != nil {
		return fmt.Errorf(remoteConfigureErrorTemplateConstant, request.RemoteName, remoteError)
	}

	authentication, authenticationError := authenticationFor(request.DestinationURL, request.Authentication)
	if authenticationError != nil {
		return authenticationError
	}

	refSpecs := make([]config.RefSpec, 0, len(request.RefSpecs))
	for _, refSpec := range request.RefSpecs {
		refSpecs = append(refSpecs, config.RefSpec(refSpec))
	}

	pushError := repository.PushContext(executionContext, &git.PushOptions{
		RemoteName: request.RemoteName,
		RefSpecs:   refSpecs,
		Auth:       authentication,
		Force:      true,
		Prune:      true,
	})
	if errors.Is(pushError, git.NoErrAlreadyUpToDate) {
		backend.logger.Debug(mirrorUpToDateLogMessageConstant, zap.String(remoteFieldNameConstant, request.RemoteName))
		return nil
	}
	if pushError != nil {
		return fmt.Errorf(mirrorPushErrorTemplateConstant, request.RemoteName, pushError)
	}

	backend.logger.Debug(mirrorPushedLogMessageConstant,
		zap.String(directoryFieldNameConstant, request.Directory),
		zap.String(remoteFieldNameConstant, request.RemoteName),
	)
	return nil
}

// ListReferences reads the branch and tag references of the repository at path.
func ListReferences(path string) (ReferenceSet, error) {
	repository, openError := git.PlainOpen(path)
	if openError != nil {
		return ReferenceSet{}, fmt.Errorf(openRepositoryErrorTemplateConstant, path, openError)
	}
	references, referencesError := collectReferences(repository)
	if referencesError != nil {
		return ReferenceSet{}, fmt.Errorf(listReferencesErrorTemplateConstant, path, referencesError)
	}
	return references, nil
}

func collectReferences(repository *git.Repository) (ReferenceSet, error) {
	references := ReferenceSet{Branches: make(map[string]plumbing.Hash), Tags: make(map[string]plumbing.Hash)}

	iterator, iteratorError := repository.References()
	if iteratorError != nil {
		return ReferenceSet{}, iteratorError
	}
	defer iterator.Close()

	iterationError := iterator.ForEach(func(reference *plumbing.Reference) error {
		if reference.Type() != plumbing.HashReference {
			return nil
		}
		switch {
		case reference.Name().IsBranch():
			references.Branches[reference.Name().String()] = reference.Hash()
		case reference.Name().IsTag():
			references.Tags[reference.Name().String()] = reference.Hash()
		}
		return nil
	})
	if iterationError != nil {
		return ReferenceSet{}, iterationError
	}
	return references, nil
}

func replaceRemote(repository *git.Repository, remoteName string, remoteURL string) error {
	deleteError := repository.DeleteRemote(remoteName)
	if deleteError != nil && !errors.Is(deleteError, git.ErrRemoteNotFound) {
		return deleteError
	}
	_, createError := repository.CreateRemote(&config.RemoteConfig{Name: remoteName, URLs: []string{remoteURL}})
	return createError
}

// authenticationFor returns HTTP basic auth for http(s) endpoints with credentials and nil otherwise.
func authenticationFor(remoteURL string, credentials migration.BasicAuthentication) (transport.AuthMethod, error) {
	endpoint, endpointError := transport.NewEndpoint(remoteURL)
	if endpointError != nil {
		return nil, fmt.Errorf(endpointParseErrorTemplateConstant, remoteURL, endpointError)
	}
	if endpoint.Protocol != httpProtocolConstant && endpoint.Protocol != httpsProtocolConstant {
		return nil, nil
	}
	if len(credentials.Username) == 0 && len(credentials.Password) == 0 {
		return nil, nil
	}
	return &githttp.BasicAuth{Username: credentials.Username, Password: credentials.Password}, nil
}
