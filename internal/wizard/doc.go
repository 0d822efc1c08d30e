// Package wizard is the interactive provisioning flow of edgent-cfg.
//
// It is a bubbletea program with one screen per step:
//
//	discovery    devices found over mDNS, or an address typed by hand
//	networks     the Wi-Fi networks the chosen device can see
//	credentials  SSID, password and token form
//	applying     the configuration is being sent
//	success      the device accepted it and is leaving configuration mode
//	failure      the error, with a hint and a way back to the form
//
// The wizard only needs the read and provision calls of the portal client,
// expressed by the Device interface, so tests drive it with fakes.
package wizard
