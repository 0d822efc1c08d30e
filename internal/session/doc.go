// Package session interprets configuration commands independently of the
// transport that delivered them.
//
// Commands are JSON objects whose "t" key names the command:
//
//	info     describe the device and enter CONFIGURING
//	set      stage fields (ssid, pass, blynk, host, port, ip, mask, gw, dns, dns2, save)
//	connect  build a record from the staged fields and switch to station mode
//	config   set + connect in one request (captive portal)
//	scan     stream scan_start, one scan per network, scan_end
//	reset    reset the stored configuration
//	reboot   restart the device
//
// A command is applied completely or not at all. The working record is
// only ever replaced by a candidate that passed validation.
package session
