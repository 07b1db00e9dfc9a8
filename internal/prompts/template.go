package prompts

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"text/template"
)

var (
	actionPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)
	fieldPattern  = regexp.MustCompile(`(?:^|[\s(-])\.([A-Z][a-zA-Z0-9_.]*)`)
)

// ExtractVariables returns the sorted, de-duplicated field names referenced
// in template actions, e.g. {{.Prompt}} or {{join .Schools ", "}}.
func ExtractVariables(text string) []string {
	seen := make(map[string]bool)
	var vars []string
	for _, action := range actionPattern.FindAllStringSubmatch(text, -1) {
		for _, match := range fieldPattern.FindAllStringSubmatch(action[1], -1) {
			if name := match[1]; !seen[name] {
				seen[name] = true
				vars = append(vars, name)
			}
		}
	}
	sort.Strings(vars)
	return vars
}

// HashText returns a SHA256 hash of the text for change detection.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Funcs are available to every prompt template.
var Funcs = template.FuncMap{
	"join": strings.Join,
}

// MustParse parses an embedded template with Funcs, panicking on error.
func MustParse(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(Funcs).Parse(text))
}

// Render executes t with data.
func Render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
