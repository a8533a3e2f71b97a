// Package thingsboard implements the ThingsBoard device MQTT API on top of
// the infrastructure MQTT session.
//
// It covers telemetry and client attribute publishing, shared attribute
// push, attribute pull requests, server-side RPC and device provisioning.
//
// # Threading
//
// MQTT callbacks never run device logic. They only enqueue the message on
// a bounded queue. Pump, called periodically from the session task,
// classifies queued messages, resolves pending requests by id, expires
// requests whose timeout elapsed, and hands unsolicited messages (RPC
// calls, attribute pushes) to the Dispatcher. Publishing is safe from any
// goroutine.
//
// Topics: https://thingsboard.io/docs/reference/mqtt-api/
package thingsboard
