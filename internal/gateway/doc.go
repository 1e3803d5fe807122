// Package gateway serves the taskstream HTTP API on top of the reference agent.
//
// # Overview
//
// The Gateway owns the session store, the agent runner and the snapshot
// hub. It wires them to four routes:
//
//	POST /api/v1/chat                  submit a message, get the seed response
//	GET  /api/v1/chat/stream/{id}      server-sent progress of one session
//	GET  /api/v1/sessions              session summaries
//	GET  /health                       liveness
//
// # Streaming
//
// The stream handler subscribes to the hub and writes one frame per
// snapshot. A frame whose status or content changed is a status_update
// carrying status, content and the full step list; otherwise it is a
// step_update carrying only steps. SSE ids are the hub's per-session
// sequence numbers. Keep-alive comments are written on an interval so
// idle proxies keep the connection open.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // returns after ctx is cancelled and shutdown completes
//
// Shutdown closes open streams first, then stops running agents, stops the
// HTTP server and closes the store.
package gateway
