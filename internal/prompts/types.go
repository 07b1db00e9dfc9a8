// Package prompts holds the embedded prompt templates and the language
// heuristics used to pick between them.
//
// Every template is registered under a dotted key with a SHA256 hash of its
// text so call records can be tied to the exact prompt version that produced
// them. Templates live next to the code that renders them (stream, filetask,
// match, similarity) and are embedded at build time.
package prompts

// EmbeddedPrompt represents a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string   `json:"key"`  // Hierarchical key: filetask.instruct.zh
	Text        string   `json:"text"` // The prompt text (Go template)
	Description string   `json:"description,omitempty"`
	Variables   []string `json:"variables,omitempty"`
	Hash        string   `json:"hash"` // SHA256 of Text for change detection
}
