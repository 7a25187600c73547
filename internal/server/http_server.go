// Package server builds the HTTP server that fronts the WebSocket gateway.
package server

import (
	"net/http"
	"time"
)

// CreateServer creates the gateway's HTTP server. Only the request header read is
// bounded; upgraded connections live as long as their sessions.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
