// Package masking redacts personally identifiable data (phone handles,
// emails) from text destined for logs.
package masking

import "regexp"

// CompiledPattern holds a pre-compiled regex with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// Built-in patterns. Phone handles keep the country code and last two digits
// so operators can still correlate log lines with a conversation.
var builtinPatterns = []*CompiledPattern{
	{
		Name:        "phone_handle",
		Regex:       regexp.MustCompile(`(\+\d{2})\d{6,11}(\d{2})`),
		Replacement: "$1********$2",
	},
	{
		Name:        "email",
		Regex:       regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		Replacement: "***@***",
	},
}

// MaskPII applies all built-in patterns to the text.
func MaskPII(text string) string {
	for _, p := range builtinPatterns {
		text = p.Regex.ReplaceAllString(text, p.Replacement)
	}
	return text
}

// MaskHandle redacts a single handle, keeping the prefix and last two digits.
func MaskHandle(handle string) string {
	if len(handle) <= 5 {
		return "***"
	}
	return handle[:3] + "********" + handle[len(handle)-2:]
}
