// Package prompts provides the oracle prompt templates with override support.
package prompts

import "embed"

//go:embed suggest/*.md
var embeddedFS embed.FS
