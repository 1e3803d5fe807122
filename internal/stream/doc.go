// Package stream follows one agent session over Server-Sent Events.
//
// A Controller subscribes through a Transport, decodes each frame with
// DecodeFrame and folds it into the conversation store with chat.Reconcile.
// It closes normally when a frame carries a terminal status or the caller
// tears it down, and with ErrStreamTransport when the connection fails or
// ends early. Malformed and unaddressable frames never leave the controller.
package stream
