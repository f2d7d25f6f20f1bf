// Package input reads number lists, one number per line
package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const maxLineLength = 64 * 1024

// Read returns the non-blank lines of r. A leading UTF-8 byte order mark is
// stripped, CRLF endings are accepted and lines starting with '#' are
// treated as comments.
func Read(r io.Reader) ([]string, error) {
	var out []string

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineLength)

	first := true
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return out, nil
}

// LoadFromFile reads numbers from path. "-" reads standard input.
func LoadFromFile(path string) ([]string, error) {
	if path == "-" {
		return Read(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	return Read(f)
}
