package thingsboard

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/mqtt"
)

// Kind classifies an inbound message.
type Kind int

const (
	// KindUnknown is any message on a topic the device does not handle.
	KindUnknown Kind = iota

	// KindProcedureCall is a server-side RPC request.
	KindProcedureCall

	// KindAttributeUpdate is a shared attribute push.
	KindAttributeUpdate

	// KindAttributeResponse answers an attribute pull request.
	KindAttributeResponse

	// KindProvisionResponse answers a provisioning request.
	KindProvisionResponse
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindProcedureCall:
		return "procedure_call"
	case KindAttributeUpdate:
		return "attribute_update"
	case KindAttributeResponse:
		return "attribute_response"
	case KindProvisionResponse:
		return "provision_response"
	default:
		return "unknown"
	}
}

// Message is a classified inbound message.
type Message struct {
	Kind Kind

	// RequestID is the id from the topic of RPC requests and attribute responses.
	RequestID string

	// Method and Params are set for KindProcedureCall.
	Method string
	Params json.RawMessage

	// Payload is the raw message body.
	Payload []byte
}

// rpcRequest is the body of a server-side RPC request.
type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// classify maps a raw topic/payload pair onto a Message.
func classify(topic string, payload []byte) (Message, error) {
	msg := Message{Payload: payload}

	switch {
	case topic == mqtt.TopicAttributes:
		msg.Kind = KindAttributeUpdate

	case topic == mqtt.TopicProvisionResponse:
		msg.Kind = KindProvisionResponse

	case strings.HasPrefix(topic, mqtt.TopicAttributeResponsePrefix):
		id, ok := mqtt.RequestID(topic, mqtt.TopicAttributeResponsePrefix)
		if !ok {
			return msg, nil
		}
		msg.Kind = KindAttributeResponse
		msg.RequestID = id

	case strings.HasPrefix(topic, mqtt.TopicRPCRequestPrefix):
		id, ok := mqtt.RequestID(topic, mqtt.TopicRPCRequestPrefix)
		if !ok {
			return msg, nil
		}
		var req rpcRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return msg, fmt.Errorf("%w: %w", ErrMalformedRPC, err)
		}
		if req.Method == "" {
			return msg, fmt.Errorf("%w: missing method", ErrMalformedRPC)
		}
		msg.Kind = KindProcedureCall
		msg.RequestID = id
		msg.Method = req.Method
		msg.Params = req.Params
	}

	return msg, nil
}
