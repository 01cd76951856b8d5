package util

import (
	"regexp"
	"strings"
)

const (
	maxTitleLength = 200
	FallbackTitle  = "download"
)

var (
	reTitleUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_\s-]`)
	reSpaces      = regexp.MustCompile(`\s+`)
)

// SanitizeTitle makes a title safe to use as a file name. The result may be empty.
func SanitizeTitle(title string) string {
	title = reTitleUnsafe.ReplaceAllString(title, "")
	title = strings.TrimSpace(reSpaces.ReplaceAllString(title, " "))

	if len(title) > maxTitleLength {
		title = strings.TrimSpace(title[:maxTitleLength])
	}

	return title
}
