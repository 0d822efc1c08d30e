// Package config holds the provisioning record, its persistence and the
// device settings the engine is built with.
//
// # Provisioning Record
//
// Record is the single persisted configuration: Wi-Fi credentials, cloud
// token and endpoint, an optional static network override, the VALID and
// STATIC_IP flags, the last provisioning error and the firmware version that
// last completed a cloud handshake.
//
// A submission never edits the working record in place. Candidate builds a
// full record from the default template, overlays the supplied fields and
// validates the result; only a valid candidate replaces the working record.
//
//	rec, err := config.Candidate(settings.Default(), fields)
//	if err != nil {
//	    return err // working record untouched
//	}
//	*working = rec
//
// # Storage
//
// FileStore writes the record as YAML using a write-temp-then-rename cycle.
// The default location follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/edgent/record.yaml or $HOME/.config/edgent/record.yaml
//   - macOS: $HOME/.config/edgent/record.yaml
//   - Windows: %LOCALAPPDATA%\edgent\record.yaml
//
// The file contains credentials and is created with 0600 permissions.
//
// # Settings
//
// Settings are loaded by LoadSettings from an optional YAML file with
// EDGENT_* environment overrides:
//
//	transport: ble
//	device:
//	  template_id: TMPL1234
//	  firmware_version: 1.2.0
//	timeouts:
//	  net_connect: 30s
package config
