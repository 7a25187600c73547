package protocol

import (
	"fmt"
	"strings"
)

// Quit is the record a client sends to end its session.
const Quit = "quit"

// Status records sent in reply to a credentials pair.
const (
	StatusInvalidPassword    = "Invalid password : please try again."
	StatusAlreadyLoggedIn    = "This user is already logged in."
	StatusInvalidCredentials = "Invalid credentials : please try again."
	StatusCreationFailed     = "Account creation failed : please try again."
	StatusServerFull         = "Server is full : try again later."
	StatusRateLimited        = "Message discarded : you are sending messages too fast."

	welcomeCreatedPrefix  = "Account Created Successfully : Welcome to the chat room "
	welcomeExistingPrefix = "Login Successful: Welcome to the chat room "
)

// WelcomeCreated is the status for a freshly provisioned account.
func WelcomeCreated(username string) string {
	return welcomeCreatedPrefix + username
}

// WelcomeBack is the status for an existing account that logged in.
func WelcomeBack(username string) string {
	return welcomeExistingPrefix + username
}

// IsWelcome reports whether status admits the client to the room.
func IsWelcome(status string) bool {
	return strings.HasPrefix(status, welcomeCreatedPrefix) ||
		strings.HasPrefix(status, welcomeExistingPrefix)
}

// IsTerminal reports whether status ends the connection instead of asking for new credentials.
func IsTerminal(status string) bool {
	return status == StatusServerFull
}

// HistoryBlock formats the record that follows a welcome status.
func HistoryBlock(entries []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d old messages\n", len(entries))
	for _, entry := range entries {
		b.WriteString(entry)
		b.WriteByte('\n')
	}
	return b.String()
}

// JoinedNotice announces a login to the other members of the room.
func JoinedNotice(username string, created bool) string {
	if created {
		return "New user " + username + " has joined the room"
	}
	return username + " has joined the room"
}

// LeftNotice announces a departure.
func LeftNotice(username string) string {
	return username + " has left the chat room."
}
