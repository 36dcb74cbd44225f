// Package stomp implements a client for a STOMP 1.2 style text protocol used
// to follow live game feeds.
//
// The primary lifecycle is:
//   - construct a Client with NewClient
//   - Login to a broker (blocks until CONNECTED or failure)
//   - Join game topics, Report events from files, write Summary files
//   - Logout (blocks until the DISCONNECT receipt) or Close
//
// ProcessInput accepts the same operations as text commands and is what the
// interactive front end drives.
//
// Frames are terminated by a NUL byte on the wire. Decode never fails: a
// malformed frame yields a best-effort Frame so the receive loop keeps running.
//
// A Client runs one receive goroutine per connection. It shares the session
// state, the receipt registry, the subscription table and the aggregation
// store with the calling goroutine; each is guarded by its own mutex and
// outgoing frames are serialized by a send lock. Close joins the receive
// goroutine before returning.
//
// Errors are typed with NewError and carry a code readable with ErrorCode.
package stomp
