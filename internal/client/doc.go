// Package client implements the client side of the chat protocol.
//
// A Client dials the server, then repeatedly offers credentials with Login until the
// server answers with a welcome status. After that it sends chat lines with Send,
// reads broadcasts with Receive, and leaves with Quit.
package client
