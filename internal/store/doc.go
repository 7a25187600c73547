// Package store holds the two durable registries of the chat server: the credential
// store and the bounded message history. Both are backed by append-only text files that
// are read fully at startup and never rewritten.
package store
