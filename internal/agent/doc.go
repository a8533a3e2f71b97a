// Package agent wires the edge agent together and runs its tasks.
//
// Tasks (one errgroup):
//   - association: keeps the network link up
//   - session: processes inbound platform messages and steps the session
//     state machine
//   - control loop: applies queued attribute changes and publishes
//     telemetry and device attributes
//   - input watcher (optional): turns GPIO presses into local toggles
//
// The tasks share no mutable state directly. The session is observed
// through its atomic Snapshot and attributes are changed only by the
// control loop.
//
// Session transitions are appended to the SQLite journal (package audit)
// from the session task.
package agent
