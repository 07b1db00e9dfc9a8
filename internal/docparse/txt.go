package docparse

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// extractTXT decodes UTF-8 text, honoring a UTF-8 or UTF-16 byte order mark.
// Invalid byte sequences are dropped.
func extractTXT(data []byte) (string, error) {
	decoder := unicode.BOMOverride(transform.Nop)
	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(out), ""), nil
}
