// Package server wires HTTP handlers into a ServeMux for the WebSocket gateway.
package server

import "net/http"

// Routes returns the gateway's ServeMux: health check, WebSocket endpoint and test page.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
