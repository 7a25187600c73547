// Package protocol defines the chat wire format shared by the server and the client.
//
// Every exchange is a sequence of records. A record is a two-byte big-endian length
// followed by that many bytes of UTF-8 text, which is the framing produced by Java's
// DataOutputStream.writeUTF for text without NUL or supplementary characters.
//
// After connecting, a client sends a username record and a password record. The server
// answers with one status record. On a welcome status it follows with a single history
// record; on any other status the client sends credentials again. From then on the client
// sends one record per chat line, or the Quit record to leave, and the server sends one
// record per broadcast.
package protocol
