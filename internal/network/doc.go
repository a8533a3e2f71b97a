// Package network keeps the device associated with its network.
//
// The Manager never blocks its caller: EnsureAssociated starts at most one
// association attempt per cool-down window and returns. Link events from the
// Driver (associated, address acquired, disassociated) update the link
// state that IsUp reports and are fanned out to OnChange listeners.
//
// Drivers:
//   - StaticDriver: a link managed outside the agent (wired, container).
//     Only the interface address is watched.
//   - NMCLIDriver: WiFi through NetworkManager. Association uses
//     "nmcli device wifi connect"; state comes from a supervised
//     "nmcli device monitor" and address polling.
package network
