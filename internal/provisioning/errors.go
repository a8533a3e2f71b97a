package provisioning

import "errors"

var (
	// ErrProvisionRejected is returned when the response status is not SUCCESS.
	ErrProvisionRejected = errors.New("provisioning: request rejected")

	// ErrUnsupportedCredentials is returned for a credentials type the
	// device cannot use (for example X509_CERTIFICATE).
	ErrUnsupportedCredentials = errors.New("provisioning: unsupported credentials type")

	// ErrMalformedResponse is returned when the response cannot be decoded.
	ErrMalformedResponse = errors.New("provisioning: malformed response")

	// ErrTimeout is reported when no response arrives in time.
	ErrTimeout = errors.New("provisioning: request timed out")

	// ErrInFlight is returned by Begin while a request is outstanding.
	ErrInFlight = errors.New("provisioning: request already in flight")
)
