package provisioning

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/tb-edge-agent/internal/credentials"
)

// Credential types.
const (
	StatusSuccess = "SUCCESS"

	CredentialsAccessToken = "ACCESS_TOKEN"
	CredentialsMQTTBasic   = "MQTT_BASIC"
	CredentialsX509        = "X509_CERTIFICATE"
)

// Request is the outbound provisioning request.
type Request struct {
	DeviceName            string `json:"deviceName"`
	ProvisionDeviceKey    string `json:"provisionDeviceKey"`
	ProvisionDeviceSecret string `json:"provisionDeviceSecret"`
}

// NewRequest builds the request for deviceID using the pre-shared key pair.
func NewRequest(key, secret, deviceID string) Request {
	return Request{
		DeviceName:            deviceID,
		ProvisionDeviceKey:    key,
		ProvisionDeviceSecret: secret,
	}
}

// Marshal encodes the request body.
func (r Request) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Response is the inbound provisioning response.
type Response struct {
	Status           string          `json:"status"`
	ErrorMsg         string          `json:"errorMsg,omitempty"`
	CredentialsType  string          `json:"credentialsType"`
	CredentialsValue json.RawMessage `json:"credentialsValue"`
}

// mqttBasic is the credentialsValue object of MQTT_BASIC credentials.
type mqttBasic struct {
	ClientID string `json:"clientId"`
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// ParseResponse validates a provisioning response and extracts the
// credentials it carries.
//
// Returns:
//   - ErrProvisionRejected wrapping the server message when status is not
//     exactly "SUCCESS"
//   - ErrUnsupportedCredentials for any type other than ACCESS_TOKEN or MQTT_BASIC
//   - ErrMalformedResponse when the body or credential value cannot be decoded
func ParseResponse(data []byte) (credentials.Credentials, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return credentials.Credentials{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if resp.Status != StatusSuccess {
		return credentials.Credentials{}, fmt.Errorf("%w: status %q: %s", ErrProvisionRejected, resp.Status, resp.ErrorMsg)
	}

	switch resp.CredentialsType {
	case CredentialsAccessToken:
		var token string
		if err := json.Unmarshal(resp.CredentialsValue, &token); err != nil || token == "" {
			return credentials.Credentials{}, fmt.Errorf("%w: access token value", ErrMalformedResponse)
		}
		return credentials.Credentials{Username: token}, nil

	case CredentialsMQTTBasic:
		var basic mqttBasic
		if err := json.Unmarshal(resp.CredentialsValue, &basic); err != nil || basic.UserName == "" {
			return credentials.Credentials{}, fmt.Errorf("%w: mqtt basic value", ErrMalformedResponse)
		}
		return credentials.Credentials{
			ClientID: basic.ClientID,
			Username: basic.UserName,
			Secret:   basic.Password,
		}, nil

	default:
		return credentials.Credentials{}, fmt.Errorf("%w: %q", ErrUnsupportedCredentials, resp.CredentialsType)
	}
}
