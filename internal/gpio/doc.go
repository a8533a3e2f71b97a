// Package gpio binds physical inputs and outputs to switch indices using
// the Linux sysfs GPIO interface.
//
// Inputs are sampled every poll interval; a press (inactive to active
// edge) is reported once per press. Outputs mirror the switch states.
package gpio
