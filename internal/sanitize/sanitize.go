// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

// Package sanitize neutralizes untrusted text before it is persisted.
//
// Two distinct operations live here and must not be conflated:
//
//   - Sanitization (Text, Email) is destructive: markup and control
//     characters are stripped before storage, on the assumption that the
//     stored value may later be rendered without escaping.
//   - Encoding (ForDisplay) is non-destructive: markup-significant
//     characters are escaped for safe rendering. It is a second,
//     independent defense layer applied at render time.
//
// Sanitization never fails. Adversarial or malformed input degrades to a
// best-effort cleaned string, never to an error.
package sanitize

import (
	"html"
	"regexp"
	"strings"
)

// EmailMaxLength is the fixed cap applied by Email.
const EmailMaxLength = 100

// scriptBlockRegex matches a complete script element including its
// content, case-insensitively and across newlines. Partial or unclosed
// script tags are left for tagRegex to strip.
var scriptBlockRegex = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)

// tagRegex matches any remaining markup tag, keeping the text between tags.
var tagRegex = regexp.MustCompile(`(?s)<[^>]*>`)

// controlRegex matches ASCII control characters (0x00-0x1F and DEL).
var controlRegex = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// Text cleans free-form input for storage: script blocks are removed with
// their content, remaining tags are stripped, control characters are
// dropped, and the result is trimmed and truncated to maxLength runes.
// Empty input is returned unchanged, and the operation is idempotent.
func Text(input string, maxLength int) string {
	if input == "" {
		return input
	}

	cleaned := scriptBlockRegex.ReplaceAllString(input, "")
	cleaned = tagRegex.ReplaceAllString(cleaned, "")
	cleaned = controlRegex.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	if maxLength >= 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLength {
			cleaned = string(runes[:maxLength])
		}
	}

	// Truncation can expose trailing whitespace that the earlier trim
	// could not see; trim again so sanitizing twice equals sanitizing once.
	return strings.TrimSpace(cleaned)
}

// Email cleans an email address with the fixed EmailMaxLength cap.
// Syntactic validity is the field-validation layer's job, not ours; this
// only strips dangerous content.
func Email(input string) string {
	if strings.TrimSpace(input) == "" {
		return input
	}
	return Text(input, EmailMaxLength)
}

// ForDisplay escapes markup-significant characters (<, >, &, quotes) for
// rendering sanitized text in an HTML context. Unlike Text it loses no
// information.
func ForDisplay(input string) string {
	if input == "" {
		return input
	}
	return html.EscapeString(input)
}
