// Package transport defines the contract between the provisioning session
// and the local configuration channels (captive portal, BLE).
//
// A transport delivers raw JSON commands and carries typed responses back
// to the peer. Commands are consumed on the main loop only; transports
// buffer whatever their own goroutines or callbacks receive in between.
package transport
