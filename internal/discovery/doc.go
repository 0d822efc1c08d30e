// Package discovery finds edgent devices in configuration mode over mDNS.
//
// While its portal is up, a device advertises an "_http._tcp" service named
// after its hotspot, with TXT entries built by TXTRecords:
//
//	edgent=1  tmpl=<template id>  fw=<firmware version>  uid=<device uid>
//
// The "edgent" key is what separates a device from every other HTTP service
// on the network; entries without it are ignored.
//
// # Usage Example
//
//	devices, err := discovery.ScanForDevices(ctx, 5*time.Second)
//	if err != nil {
//	    return err
//	}
//	for _, d := range devices {
//	    fmt.Println(d.Name, d.BaseURL())
//	}
//
// # Network Requirements
//
// mDNS needs multicast on the interface and UDP port 5353 open. Devices only
// advertise while in configuration mode, so the host usually has to be
// joined to the device's hotspot.
package discovery
