// Package scan runs a Wi-Fi scan through a radio.WiFi and ranks the result
// for configuration clients: strongest first, at most MaxResults entries,
// security modes mapped to display names.
package scan
