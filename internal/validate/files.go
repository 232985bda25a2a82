package validate

import (
	"fmt"
	"path/filepath"
	"strings"

	"bookvault/internal/upload"
)

// Files validates staged uploads against per-field rule lists. Supported
// tokens: required, image (mime prefixed image/), file (mime prefixed
// application/), and mimes:ext1,ext2 which checks the lower-cased extension
// of the original filename independent of the mime checks.
//
// Only the first file per field is considered even when several were uploaded
// under the same name. When a file violates more than one rule, the message
// of the last evaluated check wins; earlier messages are overwritten. That
// last-write-wins behavior is kept intentionally for parity with the original
// API responses.
func Files(files map[string][]upload.File, rules map[string][]string) Outcome {
	var outcome Outcome
	for field, tokens := range rules {
		group := files[field]
		if len(group) == 0 {
			if hasToken(tokens, "required") {
				outcome.setLast(field, fmt.Sprintf("%s is required", field))
			}
			continue
		}
		f := group[0]
		for _, token := range tokens {
			switch {
			case token == "image":
				if !strings.HasPrefix(f.MimeType, "image/") {
					outcome.setLast(field, fmt.Sprintf("%s must be an image", field))
				}
			case token == "file":
				if !strings.HasPrefix(f.MimeType, "application/") {
					outcome.setLast(field, fmt.Sprintf("%s must be a document", field))
				}
			case strings.HasPrefix(token, "mimes:"):
				allowed := strings.Split(strings.TrimPrefix(token, "mimes:"), ",")
				ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(f.OriginalName), "."))
				if !hasToken(allowed, ext) {
					outcome.setLast(field, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
				}
			}
		}
	}
	return outcome
}
