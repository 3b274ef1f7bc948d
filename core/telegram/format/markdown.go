package format

import "strings"

var mdV1Replacer = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"`", "\\`",
)

// EscapeMarkdown escapes user-supplied text for Telegram Markdown (v1) captions.
func EscapeMarkdown(text string) string {
	return mdV1Replacer.Replace(text)
}
