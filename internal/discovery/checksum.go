package discovery

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// LookupEncoding resolves an encoding label such as "UTF-8" or
// "ISO-8859-1".
func LookupEncoding(name string) (encoding.Encoding, error) {
	if strings.TrimSpace(name) == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported script encoding %q: %w", name, err)
	}
	return enc, nil
}

// Decode converts raw script bytes to normalized text: decoded from enc,
// byte order mark removed, line endings converted to LF.
func Decode(raw []byte, enc encoding.Encoding) (string, error) {
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	text := strings.TrimPrefix(string(decoded), "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return text, nil
}

// Checksum fingerprints normalized script text.
func Checksum(text string) int64 {
	return int64(xxhash.Sum64String(text))
}
