// Package importer turns user-submitted stock files into credentials.
package importer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/flor3z/payout-bot/internal/storage"
)

// maxLineBytes bounds a single line of an import file
const maxLineBytes = 64 * 1024

// Batch is the parsed content of an import file
type Batch struct {
	Credentials []storage.Credential
	Lines       int // non-blank lines read
	Invalid     int // non-blank lines that were not email:secret
}

// Parse reads email:secret lines. Blank lines are ignored, the secret may
// itself contain ':' and both halves are trimmed.
func Parse(r io.Reader) (Batch, error) {
	var b Batch

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		b.Lines++

		email, secret, ok := strings.Cut(line, ":")
		email, secret = strings.TrimSpace(email), strings.TrimSpace(secret)
		if !ok || email == "" || secret == "" {
			b.Invalid++
			continue
		}
		b.Credentials = append(b.Credentials, storage.Credential{Email: email, Secret: secret})
	}
	if err := scanner.Err(); err != nil {
		return Batch{}, fmt.Errorf("failed to read import file: %w", err)
	}

	return b, nil
}
