// Package credentials persists the device's platform credentials.
//
// Credentials live in the preferences table under the tb_prefs namespace
// as three string keys (dev_id, dev_user, dev_pass). They are written once
// after provisioning and reused on every boot until the session manager
// clears them after repeated connect failures.
//
// Every Store call runs in its own transaction; no handle or statement is
// held between calls.
package credentials
