package store

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// MaxEntrySize bounds one stored line in bytes. Lines over it are skipped on load, which
// keeps a block of DefaultHistoryLimit entries inside one wire record.
const MaxEntrySize = 4096

// Paths names the backing files of one server instance.
type Paths struct {
	Credentials string
	Messages    string
}

// PathsFor derives the backing file names from the bound address and port.
func PathsFor(dir, host string, port int) Paths {
	suffix := fmt.Sprintf("%s_%d.txt", host, port)
	return Paths{
		Credentials: filepath.Join(dir, "user_credentials_"+suffix),
		Messages:    filepath.Join(dir, "messages_"+suffix),
	}
}

// readLines calls fn with every line of r that is at most maxLen bytes long, without
// its line ending. Longer lines are discarded while reading and counted.
func readLines(r io.Reader, maxLen int, fn func(line string)) (int, error) {
	reader := bufio.NewReader(r)
	var (
		line    []byte
		tooLong bool
		skipped int
	)
	for {
		chunk, err := reader.ReadSlice('\n')
		switch {
		case tooLong:
		case len(line)+len(chunk) > maxLen+len("\r\n"):
			tooLong, line = true, line[:0]
		default:
			line = append(line, chunk...)
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return skipped, err
		}

		if tooLong {
			skipped++
		} else if len(line) > 0 {
			fn(strings.TrimRight(string(line), "\r\n"))
		}
		line, tooLong = line[:0], false

		if err != nil {
			return skipped, nil
		}
	}
}
