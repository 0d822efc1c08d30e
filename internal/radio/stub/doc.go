// Package stub provides in-memory radios for host builds.
//
// The simulator in cmd/edgent-device and the package tests drive the
// provisioning engine through these stubs. Test helpers (SetNetworks,
// DropLink, Connect, Write, ...) stand in for events a real radio would
// raise on its own.
package stub
