// Package render prints conversation messages and step progress to a terminal.
package render
