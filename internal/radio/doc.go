// Package radio declares the capability interfaces the provisioning engine
// consumes from the platform: the Wi-Fi station/AP radio, the BLE GATT
// peripheral and the system pump.
//
// The engine never drives a radio stack directly. Hardware builds supply
// their own implementations; package stub provides in-memory ones for host
// builds, the simulator and tests.
package radio
