package model

import "time"

// Notification message types pushed over the websocket
const (
	MessageTypeQueueUpdate = "QUEUE_UPDATE"
	MessageTypeJobUpdate   = "JOB_UPDATE"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
)

// WSMessage represents a generic client-sent websocket frame
type WSMessage struct {
	Type string `json:"type"`
}

// QueueUpdateMessage is the queue-wide "now serving" broadcast
type QueueUpdateMessage struct {
	Type       string `json:"type"`
	NowServing uint64 `json:"nowServing"`
	Timestamp  string `json:"timestamp"`
}

// JobUpdateMessage is the per-job status notification
type JobUpdateMessage struct {
	Type         string    `json:"type"`
	JobID        string    `json:"jobId"`
	Status       JobStatus `json:"status"`
	TicketNumber *uint64   `json:"ticketNumber,omitempty"`
	VideoURL     string    `json:"videoUrl,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Timestamp    string    `json:"timestamp"`
}

// NewQueueUpdate builds a QUEUE_UPDATE message stamped with the current time.
func NewQueueUpdate(nowServing uint64) QueueUpdateMessage {
	return QueueUpdateMessage{
		Type:       MessageTypeQueueUpdate,
		NowServing: nowServing,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

// NewJobUpdate builds a JOB_UPDATE message from a job's current record.
// Terminal payload fields are only populated once the job has reached a
// terminal status.
func NewJobUpdate(job *Job) JobUpdateMessage {
	msg := JobUpdateMessage{
		Type:      MessageTypeJobUpdate,
		JobID:     job.ID,
		Status:    job.Status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if job.TicketNumber > 0 {
		ticket := job.TicketNumber
		msg.TicketNumber = &ticket
	}
	if job.Status == JobStatusCompleted {
		msg.VideoURL = job.VideoURL
	}
	if job.Status == JobStatusFailed {
		msg.ErrorMessage = job.ErrorMessage
	}
	return msg
}
