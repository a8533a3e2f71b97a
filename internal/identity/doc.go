// Package identity derives the device's platform identity from its
// hardware network address.
//
// The identity is computed once at startup and never changes while the
// process runs:
//
//	MAC   A4:CF:12:0B:3E:91
//	Name  Smart Office - A4CF120B3E91
//	ID    smartoffice-a4cf120b3e91
//	Model Smart Office SO-01
package identity
