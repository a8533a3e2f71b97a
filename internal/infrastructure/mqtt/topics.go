package mqtt

import (
	"strconv"
	"strings"
)

// ThingsBoard device API topics.
// See https://thingsboard.io/docs/reference/mqtt-api/
const (
	// TopicTelemetry carries time-series readings.
	TopicTelemetry = "v1/devices/me/telemetry"

	// TopicAttributes carries client attribute publishes (outbound) and
	// shared attribute updates (inbound) on the same topic.
	TopicAttributes = "v1/devices/me/attributes"

	// TopicAttributeRequestPrefix is the base of attribute pull requests.
	TopicAttributeRequestPrefix = "v1/devices/me/attributes/request/"

	// TopicAttributeResponsePrefix is the base of attribute pull responses.
	TopicAttributeResponsePrefix = "v1/devices/me/attributes/response/"

	// TopicRPCRequestPrefix is the base of server-side RPC requests.
	TopicRPCRequestPrefix = "v1/devices/me/rpc/request/"

	// TopicRPCResponsePrefix is the base of server-side RPC responses.
	TopicRPCResponsePrefix = "v1/devices/me/rpc/response/"

	// TopicProvisionRequest is published by an unprovisioned device.
	TopicProvisionRequest = "/provision/request"

	// TopicProvisionResponse carries the provisioning result.
	TopicProvisionResponse = "/provision/response"
)

// Topics provides builders for the ThingsBoard device topics that carry
// a request id.
type Topics struct{}

// AttributeRequest returns the topic for attribute pull request id.
//
// Example: v1/devices/me/attributes/request/3
func (Topics) AttributeRequest(id uint64) string {
	return TopicAttributeRequestPrefix + strconv.FormatUint(id, 10)
}

// RPCResponse returns the response topic for RPC request id.
//
// Example: v1/devices/me/rpc/response/42
func (Topics) RPCResponse(id string) string {
	return TopicRPCResponsePrefix + id
}

// AllAttributeResponses returns a pattern matching every pull response.
//
// Pattern: v1/devices/me/attributes/response/+
func (Topics) AllAttributeResponses() string {
	return TopicAttributeResponsePrefix + "+"
}

// AllRPCRequests returns a pattern matching every server-side RPC request.
//
// Pattern: v1/devices/me/rpc/request/+
func (Topics) AllRPCRequests() string {
	return TopicRPCRequestPrefix + "+"
}

// RequestID extracts the trailing request id from topic if it starts with
// prefix. It returns false for any other topic or an empty id.
func RequestID(topic, prefix string) (string, bool) {
	id, ok := strings.CutPrefix(topic, prefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
