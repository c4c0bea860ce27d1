package github

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoOutputFile is returned when GITHUB_OUTPUT is not set.
var ErrNoOutputFile = errors.New("GITHUB_OUTPUT is not set")

// SetOutput appends a step output to the file named by GITHUB_OUTPUT.
// Multi-line values use the heredoc form.
func (s *Settings) SetOutput(name, value string) error {
	if s.Output == "" {
		return ErrNoOutputFile
	}

	f, err := os.OpenFile(s.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer f.Close()

	line, err := formatOutput(name, value)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write output %s: %w", name, err)
	}
	return nil
}

func formatOutput(name, value string) (string, error) {
	if !strings.ContainsAny(value, "\r\n") {
		return fmt.Sprintf("%s=%s\n", name, value), nil
	}

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate output delimiter: %w", err)
	}
	delim := "ghadelimiter_" + hex.EncodeToString(buf)
	return fmt.Sprintf("%s<<%s\n%s\n%s\n", name, delim, value, delim), nil
}
