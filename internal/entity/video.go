package entity

// VideoInfo is the result of Fetch-Info.
type VideoInfo struct {
	Title              string `json:"title"`
	Uploader           string `json:"uploader"`
	DurationSeconds    int    `json:"duration"`
	ThumbnailURL       string `json:"thumbnail"`
	AvailableQualities []int  `json:"available_qualities"`
}
