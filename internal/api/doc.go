// Package api holds the JSON request, response and stream frame types of the
// agent platform HTTP API, plus conversions to and from the chat model.
package api
