package entity

import "time"

// DownloadRequest is the input of Start-Download.
type DownloadRequest struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Quality string `json:"quality"`
	Title   string `json:"title"`
}

// Job is one accepted download request.
type Job struct {
	ID        string
	Request   DownloadRequest
	WorkDir   string
	CreatedAt time.Time
}

// Artifact is the file a finished job produced.
type Artifact struct {
	Path        string // Absolute path on disk
	Name        string // Base name on disk
	DisplayName string // Name offered to the user agent
	Size        int64
}
