// Package client talks to the agent platform over HTTP.
//
// A Client performs the synchronous seed request (POST /api/v1/chat), opens
// session streams (GET /api/v1/chat/stream/{id}) for stream controllers, and
// reads the sessions and health endpoints:
//
//	c := client.New("http://localhost:8080", client.Options{SeedTimeout: 30 * time.Second})
//	resp, err := c.Seed(ctx, api.ChatRequest{Message: "buy milk", Stream: true})
//
// Seed failures wrap ErrSeedRequestFailed. Non-2xx replies carry an
// *HTTPError with the status code and the server's error text.
package client
