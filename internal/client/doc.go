// Package client talks to an edgent device's configuration portal.
//
// While a device waits for configuration it serves a small JSON API on its
// soft-AP address. Client wraps that API:
//
//	GET  /board_info.json   device identity and last provisioning error
//	GET  /wifi_scan.json    networks visible to the device
//	GET  /config?...        one-shot provisioning (credentials + connect)
//	GET  /reset             factory reset
//	GET  /reboot            restart
//	POST /update            firmware upload (multipart)
//
// # Error Handling
//
// Every failure is returned as a *DeviceError classified by ErrorType.
// Network level failures and 5xx replies are retryable; the client retries
// them with exponential backoff, other failures are returned immediately:
//
//	info, err := c.BoardInfo()
//	if err != nil {
//	    fmt.Println(client.GetShortErrorMessage(err))
//	    fmt.Println(client.GetTroubleshootingHint(err))
//	}
//
// # Provisioning
//
// Provision requests are validated locally with the same rules the device
// applies (32 character token, non-empty SSID, parseable static addresses)
// so obvious mistakes never reach the device:
//
//	req := &client.Provision{SSID: "Home", Password: "secret", Token: token}
//	res, err := c.Provision(req)
package client
