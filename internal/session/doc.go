// Package session owns the device's platform session.
//
// The Manager is a state machine stepped on the session task. It decides
// whether the device needs provisioning, opens the credentialed session
// under a connect throttle and an attempt ceiling, detects session loss and
// drives the capability Orchestrator until the session is Ready.
//
// States:
//
//	Idle
//	  -> AwaitingProvisionConnect     (no credentials)
//	  -> AwaitingCredentialedConnect  (credentials stored)
//	AwaitingProvisionConnect
//	  -> ProvisionRequestInFlight     (anonymous session open, request sent)
//	ProvisionRequestInFlight
//	  -> AwaitingCredentialedConnect  (credentials issued and persisted)
//	  -> AwaitingProvisionConnect     (rejected, unsupported or timed out)
//	AwaitingCredentialedConnect
//	  -> SubscribingCapabilities      (connected)
//	  -> AwaitingProvisionConnect     (attempt ceiling reached, credentials discarded)
//	SubscribingCapabilities
//	  -> Ready                        (all capabilities registered)
//	SubscribingCapabilities, Ready
//	  -> Awaiting*Connect             (session lost)
//
// Other tasks observe the session only through Snapshot, which is
// published atomically after every transition.
package session
