// Package attributes holds the device's shared attributes and keeps them
// in step with the platform.
//
// Attributes are grouped into families: bounded arrays of values of one
// kind sharing a key prefix. The default schema is one family of six
// booleans, switch_state_0 to switch_state_5. Key and Parse map between an
// index and its canonical key; keys outside the schema are ignored.
//
// The Synchronizer is the only writer of the attribute Set. Platform
// pushes, pull responses, RPC calls and local input are queued as events
// and applied in order by Drain on the control loop, so the last event
// processed for a key wins.
package attributes
