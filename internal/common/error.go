package common

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound        = fmt.Errorf("job not found")
	ErrInvalidJobID       = fmt.Errorf("invalid job id")
	ErrInvalidURL         = fmt.Errorf("invalid video url")
	ErrFormatNotAllowed   = fmt.Errorf("format is not allowed")
	ErrQueueFull          = fmt.Errorf("job queue is full")
	ErrToolNotFound       = fmt.Errorf("extraction tool not found")
	ErrVideoPrivate       = fmt.Errorf("video is private")
	ErrVideoUnavailable   = fmt.Errorf("video is unavailable")
	ErrAuthRequired       = fmt.Errorf("authentication required")
	ErrExtractionFailed   = fmt.Errorf("extraction failed")
	ErrInvalidVideo       = fmt.Errorf("invalid video")
	ErrProcessStart       = fmt.Errorf("cannot start process")
	ErrProcessTimeout     = fmt.Errorf("process timed out")
	ErrProcessCancelled   = fmt.Errorf("process cancelled")
	ErrArtifactNotFound   = fmt.Errorf("artifact not found")
	ErrFileTooLarge       = fmt.Errorf("file exceeds maximum allowed size")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
	ErrFileNotFoundError  = fmt.Errorf("file not found")
	ErrJobNotRunningError = fmt.Errorf("job is not running")
)

const genericMessage = "Download failed. Please check the URL and try again."

var userMessages = []struct {
	err error
	msg string
}{
	{ErrInvalidURL, "Please enter a valid video URL."},
	{ErrFormatNotAllowed, "Selected format is not allowed."},
	{ErrQueueFull, "The server is busy. Please try again in a moment."},
	{ErrToolNotFound, "Downloader is not available. Please contact the site administrator."},
	{ErrVideoPrivate, "This video is private and cannot be downloaded."},
	{ErrVideoUnavailable, "This video is unavailable."},
	{ErrAuthRequired, "Authentication required. Please check your cookies file settings."},
	{ErrExtractionFailed, "Failed to access video. Please check the URL and try again."},
	{ErrInvalidVideo, "Invalid video URL or video not accessible."},
	{ErrProcessStart, "Could not start the download."},
	{ErrProcessTimeout, "Download timed out."},
	{ErrProcessCancelled, "Download cancelled."},
	{ErrArtifactNotFound, genericMessage},
	{ErrFileTooLarge, "File exceeds maximum allowed size."},
	{ErrInvalidToken, "File not found or has expired."},
	{ErrFileNotFoundError, "File not found or has expired."},
	{ErrJobNotFound, "Progress not found."},
	{ErrInvalidJobID, "Invalid progress ID."},
	{ErrJobNotRunningError, "Download is not running."},
}

// UserMessage returns the short text shown to the end user for err.
func UserMessage(err error) string {
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}

	return genericMessage
}
