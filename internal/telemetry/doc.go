// Package telemetry publishes the device attributes and periodic sensor
// readings while the platform session is Ready.
//
// Both reports go out immediately on every new session generation and then
// on their own intervals. A failed publish is logged and waits for the next
// interval.
package telemetry
