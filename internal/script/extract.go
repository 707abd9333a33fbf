package script

import "strings"

const (
	openMarker  = "<userRequest>"
	closeMarker = "</userRequest>"
)

// ExtractSource returns the script body embedded in a prompt. If the prompt
// contains a well-formed delimited region, the text strictly between the first
// opening marker and the first closing marker is returned. Anything else (no
// markers, an unmatched opening marker, a closing marker that precedes the
// opening one) falls back to the whole prompt, so extraction never fails hard.
// The returned body is whitespace-trimmed and is not validated as executable
// script.
func ExtractSource(prompt string) string {
	start := strings.Index(prompt, openMarker)
	end := strings.Index(prompt, closeMarker)

	if start >= 0 && end >= 0 {
		contentStart := start + len(openMarker)
		if contentStart <= end {
			return strings.TrimSpace(prompt[contentStart:end])
		}
	}

	return strings.TrimSpace(prompt)
}
