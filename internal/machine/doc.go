// Package machine drives a device through provisioning and connectivity.
//
// The Machine owns the connectivity modes held in a state.Context and runs
// one mode handler per Step:
//
//	WAIT_CONFIG / CONFIGURING  attach the configuration transport and feed
//	                           its commands to the provisioning session
//	SWITCH_TO_STA              cycle the radio into station mode
//	CONNECTING_NET             associate with the configured network
//	CONNECTING_CLOUD           authenticate with the cloud
//	RUNNING                    watch the link and the cloud session
//	ERROR                      dwell, then restart
//	RESET_CONFIG               restore factory defaults
//
// Every wait is a wait.Waiter bounded by a timeout from config.Settings. A
// wait is cancelled as soon as the mode changes under it (a button, a signal
// or a provisioning command), when the context is done, or when a restart
// has come due.
//
// Network and cloud attempts draw from separate retry budgets kept in the
// state.Context. A budget is refilled only after a successful attempt and is
// forced to one after manual configuration, so a bad configuration fails
// fast into ERROR with the reason recorded in the persisted record.
//
// Restarts are not performed by the machine. Step and Run return ErrRestart
// and the caller re-initialises the device.
package machine
