// Package server implements the chat server: the accept loop, the per-connection
// session state machine, the registry of logged-in sessions, and the hub that serializes
// history appends with fan-out.
//
// The implementation is organized into specialized files for configuration, hub
// management, sessions, the session registry, and the optional WebSocket gateway.
package server
