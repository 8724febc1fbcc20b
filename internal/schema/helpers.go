package schema

// file: internal/schema/helpers.go

import (
	"bytes"
)

// calculatePreview renders data for error context: at most 100 bytes, with
// control characters replaced by '.', and "..." appended when truncated.
func calculatePreview(data []byte) string {
	const maxPreviewLen = 100
	if len(data) > maxPreviewLen {
		// Consider replacing control characters for cleaner previews
		previewBytes := bytes.Map(func(r rune) rune {
			if r < 32 || r == 127 {
				return '.'
			}
			return r
		}, data[:maxPreviewLen])
		return string(previewBytes) + "..."
	}
	// Consider replacing control characters here too
	previewBytes := bytes.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return '.'
		}
		return r
	}, data)
	return string(previewBytes)
}
