// Package ble implements the BLE GATT configuration transport.
//
// The device exposes one primary service with two characteristics: RX,
// written by the phone (with or without response) and carrying one JSON
// command per write, and TX, notified by the device and carrying JSON
// responses split into MTU-sized chunks.
package ble
