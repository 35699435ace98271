package protocol

type QueueStats struct {
	Queue      map[string]int64 `json:"queue"`
	Processing *ProcessingStats `json:"processing,omitempty"`
}

type ProcessingStats struct {
	AvgProcessingTime float64        `json:"avg_processing_time"`
	TotalProcessed    int64          `json:"total_processed"`
	SuccessRate       float64        `json:"success_rate"`
	HourlyVolume      []VolumeBucket `json:"hourly_volume"`
}

// VolumeBucket counts jobs processed during one hour. Hour is formatted as
// HourLayout, so the hour of day is the fourth dash-separated component.
type VolumeBucket struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}

const HourLayout = "2006-01-02-15"

type HistoryPoint struct {
	Timestamp int64 `json:"timestamp"`
	Queued    int64 `json:"queued"`
	Started   int64 `json:"started"`
	Failed    int64 `json:"failed"`
}

type ServerInfo struct {
	Name       string `json:"name"`
	APIVersion int    `json:"api_version"`
	Version    string `json:"version"`
	Hostname   string `json:"hostname,omitempty"`
	Backend    string `json:"backend,omitempty"`
}

type EnqueueJobRequest struct {
	Queue string `json:"queue"`
}

type JobStatusUpdateRequest struct {
	Status string `json:"status"`
}
