// Package portal implements the captive-portal configuration transport.
//
// Attach turns the Wi-Fi radio into a soft access point named after the
// device, starts a DNS responder that resolves every name to the access
// point, and serves the configuration API over HTTP:
//
//	GET  /                   configuration form (or index.html from the asset dir)
//	GET  /board_info.json    device description, enters CONFIGURING
//	GET  /wifi_scan.json     ranked scan results
//	GET  /config             apply settings and connect
//	GET  /reset              reset the stored configuration
//	GET  /reboot             restart the device
//	GET  /update             firmware upload form
//	POST /update             multipart firmware upload
//
// HTTP handlers run on server goroutines. Each API request becomes a
// command on the transport queue; the handler blocks until the main loop
// answers it or the reply timeout expires.
package portal
