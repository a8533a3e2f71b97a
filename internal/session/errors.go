package session

import "errors"

var (
	// ErrNoCredentialSource is returned when there are no stored
	// credentials, no access token and no provisioning key.
	ErrNoCredentialSource = errors.New("session: no credentials and provisioning not configured")

	// ErrUnknownProcedure is returned by the Registry for methods nobody handles.
	ErrUnknownProcedure = errors.New("session: unknown procedure")
)
