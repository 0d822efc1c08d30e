// Package cloud is the device side of the cloud session.
//
// The connectivity machine only needs a handful of operations from the cloud
// collaborator: configure the endpoint and token, start a non-blocking
// connection attempt, poll whether the session came up or the token was
// rejected, and push events and metadata once it is up. Client captures that
// surface; WSClient implements it over a websocket with a JSON login
// handshake.
//
// # Wire Format
//
// Every frame is a JSON text message with a "t" type field:
//
//	{"t":"login","token":"<32 chars>"}       device -> cloud
//	{"t":"login_ok"}                         cloud -> device
//	{"t":"login_fail","msg":"invalid token"} cloud -> device
//	{"t":"event","name":"sys_ota","value":"..."}
//	{"t":"meta","key":"Device UID","value":"..."}
//	{"t":"ping"} / {"t":"pong"}
//
// internal/server implements the other end for development and tests.
package cloud
