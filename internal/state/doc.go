// Package state holds the mode and retry counters shared by the connectivity
// state machine, the provisioning session and the asynchronous signal
// sources (button, HTTP handlers, BLE callbacks).
//
// A single logical actor writes the retry counters. Asynchronous actors may
// only request a mode, toggle the button signal, or schedule a restart; all
// of these are safe to call from any goroutine.
package state
