// Package utils provides helpers for filenames and ids.
//
// Functions:
//   - SanitizeFilename: Returns a safe filename for storage.
//   - DisplayName: Returns the archive name of a certificate from a row value.
//   - GenerateUUID: Returns a new UUID string.
//
// Used by the web shell for uploads and by the batch for archive entries.
package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func SanitizeFilename(name string) string {
	base := filepath.Base(name)
	safe := unsafeFilename.ReplaceAllString(base, "_")
	if len(safe) > 100 {
		safe = safe[:100]
	}
	return safe
}

// DisplayName derives a certificate's file name (without extension) from
// the value of its row's first column. Letters, digits, spaces, '_' and '-'
// are kept and anything else becomes '_'. Empty or "nan" values fall back
// to certificate_<idx+1>.
func DisplayName(value string, idx int) string {
	fallback := fmt.Sprintf("certificate_%d", idx+1)
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "nan") {
		return fallback
	}
	safe := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, value)
	safe = strings.TrimSpace(safe)
	if safe == "" {
		return fallback
	}
	return safe
}

func GenerateUUID() string {
	return uuid.New().String()
}
