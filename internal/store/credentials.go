package store

import (
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

const credentialSeparator = ":"

// Length limits in runes. A chat entry carries the username in its header, so the cap
// keeps every entry well under MaxEntrySize.
const (
	MaxUsernameLength = 32
	MaxPasswordLength = 64
)

var (
	// ErrDuplicateUser is returned by Create when the username already has a credential.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrInvalidCredential is returned by Create for values that cannot be stored as one record.
	ErrInvalidCredential = errors.New("invalid credential")
)

// ValidCredential reports whether the pair fits in one username:password record and
// respects the length limits.
func ValidCredential(username, password string) bool {
	return validField(username, MaxUsernameLength) && validField(password, MaxPasswordLength)
}

func validField(s string, maxLength int) bool {
	return s != "" &&
		utf8.RuneCountInString(s) <= maxLength &&
		!strings.ContainsAny(s, credentialSeparator+"\r\n")
}

// Credentials maps usernames to passwords and persists every new account.
type Credentials struct {
	mu        sync.RWMutex
	passwords map[string]string
	file      *os.File
	path      string
}

// LoadCredentials opens (creating if needed) the credential file at path and reads every
// well-formed record. Lines that do not split into exactly two valid fields are skipped.
func LoadCredentials(path string) (*Credentials, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "open credentials %s", path)
	}

	c := &Credentials{
		passwords: make(map[string]string),
		file:      file,
		path:      path,
	}

	malformed := 0
	oversized, err := readLines(file, MaxEntrySize, func(line string) {
		fields := strings.Split(line, credentialSeparator)
		if len(fields) != 2 || !ValidCredential(fields[0], fields[1]) {
			if line != "" {
				malformed++
			}
			return
		}
		c.passwords[fields[0]] = fields[1]
	})
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrapf(err, "read credentials %s", path)
	}

	logger.WithFields(logrus.Fields{
		"path":    path,
		"users":   len(c.passwords),
		"skipped": malformed + oversized,
	}).Info("loaded credentials")
	return c, nil
}

// Lookup returns the stored password for username.
func (c *Credentials) Lookup(username string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	password, ok := c.passwords[username]
	return password, ok
}

// Create provisions a new account. The record is written and synced before the
// in-memory map changes, so a failed write leaves the store untouched.
func (c *Credentials) Create(username, password string) error {
	if !ValidCredential(username, password) {
		return ErrInvalidCredential
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.passwords[username]; exists {
		return ErrDuplicateUser
	}
	if err := appendLine(c.file, username+credentialSeparator+password); err != nil {
		return errors.Wrapf(err, "append credential to %s", c.path)
	}
	c.passwords[username] = password
	return nil
}

// Len returns the number of known accounts.
func (c *Credentials) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.passwords)
}

// Close releases the backing file.
func (c *Credentials) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}

func appendLine(file *os.File, line string) error {
	if _, err := file.WriteString(line + "\n"); err != nil {
		return err
	}
	return file.Sync()
}
