// Package server implements a development cloud endpoint for edgent devices.
//
// The endpoint speaks the websocket protocol described in package cloud: a
// device opens the websocket, sends a login frame carrying its 32 character
// token and is answered with login_ok or login_fail. After login the server
// records the events and metadata the device publishes and answers pings.
//
// # Tokens
//
// Config.Tokens lists the accepted tokens. With an empty list any token of
// the right length is accepted, which is convenient when provisioning a
// simulated device by hand.
//
// # TLS
//
// Plain ws:// is served unless Config.TLS is set. With TLS the certificate is
// loaded from CertPath/KeyPath, or generated in memory when GenerateCert is
// set. The generated certificate is self-signed and can be pinned by clients
// through Certificate().
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{
//	    Port:   8080,
//	    Tokens: []string{"0123456789abcdef0123456789abcdef"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Start blocks until shutdown signal or error
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// Start handles SIGINT and SIGTERM. Shutdown stops the HTTP server, closes
// the hijacked websocket connections and waits for their goroutines.
package server
