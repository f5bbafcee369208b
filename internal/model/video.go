package model

import "time"

// GenerateRequest represents the request to start a video generation job
type GenerateRequest struct {
	Prompt         string  `json:"prompt" validate:"required,min=3,max=2000"`
	NegativePrompt string  `json:"negativePrompt" validate:"omitempty,max=2000"`
	DurationSec    int     `json:"durationSec" validate:"omitempty,min=1,max=30"`
	Width          int     `json:"width" validate:"omitempty,oneof=480 720 848 1280"`
	Height         int     `json:"height" validate:"omitempty,oneof=270 480 720"`
	Seed           *int64  `json:"seed" validate:"omitempty,min=0"`
	GuidanceScale  float64 `json:"guidanceScale" validate:"omitempty,min=1,max=20"`
}

// GenerateResponse represents the response when a job is admitted
type GenerateResponse struct {
	JobID         string    `json:"jobId"`
	TicketNumber  uint64    `json:"ticketNumber"`
	Status        JobStatus `json:"status"`
	QueuePosition uint64    `json:"queuePosition"`
	CreatedAt     time.Time `json:"createdAt"`
}

// StatusResponse represents the status of a generation job
type StatusResponse struct {
	JobID         string     `json:"jobId"`
	Status        JobStatus  `json:"status"`
	TicketNumber  uint64     `json:"ticketNumber"`
	QueuePosition uint64     `json:"queuePosition"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// ResultResponse represents the result of a completed generation job
type ResultResponse struct {
	JobID       string    `json:"jobId"`
	VideoURL    string    `json:"videoUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// QueueResponse represents the global queue counters
type QueueResponse struct {
	NextTicket uint64 `json:"nextTicket"`
	NowServing uint64 `json:"nowServing"`
}
