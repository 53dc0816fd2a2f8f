package credentials

import (
	"errors"
	"fmt"

	"github.com/dukex/automata/pkg/models"
)

var (
	// ErrSerializationRefused is returned when a credential-bearing value is serialized.
	ErrSerializationRefused = models.ErrSerializationRefused

	ErrUnauthorizedAccess = errors.New("unauthorized credential access")
	ErrUnsupportedAction  = errors.New("unsupported action for credential type")
	ErrCredentialRevoked  = errors.New("credential revoked")
	ErrCredentialExpired  = errors.New("credential expired")
	ErrMissingSecret      = errors.New("credential is missing required secret")
)

// UnauthorizedAccessError reports a scope denial. It never carries secret material.
type UnauthorizedAccessError struct {
	Credential string // Credential name
	Caller     string // Identity of the calling component
	Reason     string
}

func (e *UnauthorizedAccessError) Error() string {
	return fmt.Sprintf("unauthorized access to credential %q by %q: %s", e.Credential, e.Caller, e.Reason)
}

func (e *UnauthorizedAccessError) Is(target error) bool {
	return target == ErrUnauthorizedAccess
}

// UnsupportedActionError reports an action the credential type cannot serve.
type UnsupportedActionError struct {
	Action         string
	CredentialType models.CredentialType
}

func (e *UnsupportedActionError) Error() string {
	if e.CredentialType == "" {
		return fmt.Sprintf("unsupported credential action %q", e.Action)
	}

	return fmt.Sprintf("action %q is not supported for credential type %q", e.Action, e.CredentialType)
}

func (e *UnsupportedActionError) Is(target error) bool {
	return target == ErrUnsupportedAction
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorizedAccess)
}

func IsUnsupportedAction(err error) bool {
	return errors.Is(err, ErrUnsupportedAction)
}
