// Package sse reads and writes Server-Sent Events.
//
// The reader is pull based: each call to Next returns the next complete
// block, which lets a single goroutine own the stream and dispatch frames
// in delivery order.
package sse
