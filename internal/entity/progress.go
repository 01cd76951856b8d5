package entity

// Status is the lifecycle state of a download job.
type Status string

const (
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
)

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// ProgressRecord is the pollable snapshot of one job. Records are replaced wholesale on every write.
type ProgressRecord struct {
	Status           Status  `json:"status"`
	Percent          float64 `json:"percent"`
	Message          string  `json:"message"`
	DownloadedBytes  int64   `json:"downloaded_bytes"`
	TotalBytes       int64   `json:"total_bytes"`
	SpeedBytesPerSec int64   `json:"speed"`

	DownloadURL string `json:"download_url,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
}
