package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AudioFormat is the audio container the extraction tool converts into.
type AudioFormat string

const (
	AudioFormatM4A  AudioFormat = "m4a"
	AudioFormatMP3  AudioFormat = "mp3"
	AudioFormatOpus AudioFormat = "opus"
)

// ParseAudioFormat accepts m4a, mp3 or opus in any case.
func ParseAudioFormat(s string) (AudioFormat, error) {
	switch f := AudioFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case AudioFormatM4A, AudioFormatMP3, AudioFormatOpus:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

func (f AudioFormat) String() string {
	return string(f)
}

// JobStatus is the lifecycle state of one download job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "Queued"
	JobStatusRunning   JobStatus = "Running"
	JobStatusSucceeded JobStatus = "Succeeded"
	JobStatusFailed    JobStatus = "Failed"
	JobStatusCanceled  JobStatus = "Canceled"
)

// ParseJobStatus maps a stored status back to JobStatus. Unknown values
// are read as Failed.
func ParseJobStatus(s string) JobStatus {
	switch st := JobStatus(s); st {
	case JobStatusQueued, JobStatusRunning, JobStatusSucceeded, JobStatusCanceled:
		return st
	default:
		return JobStatusFailed
	}
}

func (s JobStatus) String() string {
	return string(s)
}

// Terminal reports whether no further transition may follow s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

// DownloadRequest describes one URL to extract audio from. Blank fields
// are filled from the configuration when the job is admitted.
type DownloadRequest struct {
	URL        string
	OutputDir  string
	Format     AudioFormat
	ExtraArgs  []string
	CookieFile string
}

// Progress is one reading parsed from the tool's diagnostic output.
// Every field is optional.
type Progress struct {
	Percent          *float64       `json:"percent,omitempty"`
	DownloadedBytes  *uint64        `json:"downloaded_bytes,omitempty"`
	TotalBytes       *uint64        `json:"total_bytes,omitempty"`
	SpeedBytesPerSec *uint64        `json:"speed_bytes_per_sec,omitempty"`
	ETA              *time.Duration `json:"eta,omitempty"`
}

// Empty reports whether no field was recognized.
func (p Progress) Empty() bool {
	return p.Percent == nil && p.DownloadedBytes == nil && p.TotalBytes == nil &&
		p.SpeedBytesPerSec == nil && p.ETA == nil
}

// Clone returns a copy sharing no memory with p.
func (p Progress) Clone() Progress {
	return Progress{
		Percent:          clonePtr(p.Percent),
		DownloadedBytes:  clonePtr(p.DownloadedBytes),
		TotalBytes:       clonePtr(p.TotalBytes),
		SpeedBytesPerSec: clonePtr(p.SpeedBytesPerSec),
		ETA:              clonePtr(p.ETA),
	}
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// DownloadSummary is the terminal artifact of a job.
type DownloadSummary struct {
	ID          uuid.UUID `json:"id"`
	URL         string    `json:"url"`
	Status      JobStatus `json:"status"`
	Title       *string   `json:"title,omitempty"`
	Uploader    *string   `json:"uploader,omitempty"`
	FilePath    *string   `json:"file_path,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
	Error       *string   `json:"error,omitempty"`
}

// EventType discriminates Event payloads.
type EventType string

const (
	EventStatus    EventType = "status"
	EventProgress  EventType = "progress"
	EventLog       EventType = "log"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is one entry of a job's ordered notification stream. Only the
// field matching Type is set.
type Event struct {
	Type     EventType        `json:"type"`
	Status   JobStatus        `json:"status,omitempty"`
	Progress *Progress        `json:"progress,omitempty"`
	Line     string           `json:"line,omitempty"`
	Summary  *DownloadSummary `json:"summary,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// Terminal reports whether e carries a terminal status or outcome.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventCompleted, EventFailed:
		return true
	case EventStatus:
		return e.Status.Terminal()
	default:
		return false
	}
}
