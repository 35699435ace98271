package protocol

import "time"

type Job struct {
	ID         string    `json:"id"`
	Queue      string    `json:"queue"`
	Status     string    `json:"status"`
	CreatedUTC time.Time `json:"created_utc"`
	StartedUTC time.Time `json:"started_utc,omitzero"`
	EndedUTC   time.Time `json:"ended_utc,omitzero"`
}
