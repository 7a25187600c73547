package client

import "github.com/pkg/errors"

// ErrNotLoggedIn indicates that a chat operation was attempted before a welcome status.
var ErrNotLoggedIn = errors.New("not logged in")

// ErrRejected indicates that the server refused the offered credentials.
// The returned error wraps it with the server's status text.
var ErrRejected = errors.New("login rejected")

// ErrServerFull indicates that the server refused the connection for capacity.
var ErrServerFull = errors.New("server full")
