// Package console reads the interactive setup answers both binaries ask for: the
// server address, the port, and the login credentials.
package console

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Port range accepted by the prompts.
const (
	MinPort = 5000
	MaxPort = 5050
)

var ipv4Pattern = regexp.MustCompile(
	`^([01]?\d\d?|2[0-4]\d|25[0-5])\.` +
		`([01]?\d\d?|2[0-4]\d|25[0-5])\.` +
		`([01]?\d\d?|2[0-4]\d|25[0-5])\.` +
		`([01]?\d\d?|2[0-4]\d|25[0-5])$`)

// ValidIPAddress reports whether s is a dotted-quad IPv4 address.
func ValidIPAddress(s string) bool {
	return ipv4Pattern.MatchString(s)
}

// ValidPort reports whether port is inside the accepted range.
func ValidPort(port int) bool {
	return MinPort <= port && port <= MaxPort
}

// Prompter asks questions on out and reads line answers from in.
type Prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewPrompter returns a Prompter over the given streams.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewScanner(in), out: out}
}

func (p *Prompter) ask(question string) (string, error) {
	fmt.Fprintln(p.out, question)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", errors.Wrap(err, "read input")
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

// IPAddress asks until a valid IPv4 address is entered.
func (p *Prompter) IPAddress() (string, error) {
	for {
		answer, err := p.ask("Please enter desired server IP address in this format (ex: 127.0.0.1)")
		if err != nil {
			return "", err
		}
		if ValidIPAddress(answer) {
			return answer, nil
		}
		fmt.Fprintln(p.out, "The IP address you have written is not valid.")
	}
}

// Port asks until a port in [MinPort, MaxPort] is entered.
func (p *Prompter) Port() (int, error) {
	for {
		answer, err := p.ask(fmt.Sprintf("Please enter a port # between %d and %d:", MinPort, MaxPort))
		if err != nil {
			return 0, err
		}
		if port, convErr := strconv.Atoi(answer); convErr == nil && ValidPort(port) {
			return port, nil
		}
		fmt.Fprintln(p.out, "The port number you have written is not valid.")
	}
}

// Credentials asks until both a username and a password with at least one visible
// character are entered.
func (p *Prompter) Credentials() (string, string, error) {
	for {
		fmt.Fprintln(p.out, "Login information")
		username, err := p.ask("Enter username :")
		if err != nil {
			return "", "", err
		}
		password, err := p.ask("Enter password :")
		if err != nil {
			return "", "", err
		}
		if username != "" && password != "" {
			return username, password, nil
		}
		fmt.Fprintln(p.out, "You have to enter at least one character.")
	}
}

// Line reads the next raw line, for chat input.
func (p *Prompter) Line() (string, error) {
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", errors.Wrap(err, "read input")
		}
		return "", io.EOF
	}
	return p.in.Text(), nil
}
