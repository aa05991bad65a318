// Package prompts provides the batch review prompt template with override support.
package prompts

import "embed"

//go:embed batch/*.md
var embeddedFS embed.FS
