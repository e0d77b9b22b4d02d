// Package types defines the JSON request and response bodies of the
// firewall HTTP API, including the error envelope shared by handlers and
// middleware.
package types
