package model

import "time"

// Job represents a video generation job in the system
type Job struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"ownerId"`
	TicketNumber uint64     `json:"ticketNumber"`
	Status       JobStatus  `json:"status"`
	Spec         []byte     `json:"-"` // Stored as JSON
	VideoKey     string     `json:"videoKey,omitempty"`
	VideoURL     string     `json:"videoUrl,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Job status
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Connection represents an active subscriber connection. A connection
// subscribes to exactly one job for its lifetime.
type Connection struct {
	ConnectionID  string    `json:"connectionId"`
	OwnerID       string    `json:"ownerId"`
	JobID         string    `json:"jobId"`
	EstablishedAt time.Time `json:"establishedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Expired reports whether the connection entry has passed its TTL.
func (c Connection) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
