package migration

import (
	"errors"
	"fmt"
	"strings"
)

const (
	forbiddenUnderscoreCharacterConstant = "_"
	forbiddenDotCharacterConstant        = "."
	emptyPathMessageConstant             = "destination path must not be empty"
	forbiddenCharacterTemplateConstant   = "destination path %q must not contain %q"
	emptySegmentTemplateConstant         = "destination path %q contains an empty segment"
)

var forbiddenPathCharacters = []string{forbiddenUnderscoreCharacterConstant, forbiddenDotCharacterConstant}

// ValidatePath checks a destination path and splits it into namespace segments.
// Paths containing an underscore or a dot are rejected, as are empty segments.
func ValidatePath(destinationPath string) (NamespacePath, error) {
	if len(destinationPath) == 0 {
		return nil, validationError(destinationPath, errors.New(emptyPathMessageConstant))
	}

	for _, forbiddenCharacter := range forbiddenPathCharacters {
		if strings.Contains(destinationPath, forbiddenCharacter) {
			return nil, validationError(destinationPath, fmt.Errorf(forbiddenCharacterTemplateConstant, destinationPath, forbiddenCharacter))
		}
	}

	segments := strings.Split(destinationPath, namespacePathSeparatorConstant)
	for _, segment := range segments {
		if len(segment) == 0 {
			return nil, validationError(destinationPath, fmt.Errorf(emptySegmentTemplateConstant, destinationPath))
		}
	}

	return NamespacePath(segments), nil
}

func validationError(destinationPath string, cause error) error {
	return OperationError{Kind: ErrorKindValidation, Subject: destinationPath, Cause: cause}
}
