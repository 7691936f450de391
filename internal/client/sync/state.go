package sync

import (
	"time"
)

// State of the Coordinator.
type State string

const (
	StateIdle        State = "idle"
	StateSyncing     State = "syncing"
	StateDownloading State = "downloading"
	StateRepairing   State = "repairing"
	StateUploading   State = "uploading"
	StateRetrying    State = "retrying"
	StateError       State = "error"
)

// EventType distinguishes Coordinator notifications.
type EventType int

const (
	EventStateChanged EventType = iota
	EventRetrying
	EventCompleted
	EventFailed
)

type Event struct {
	Type    EventType
	State   State
	Attempt int           // retry number, for EventRetrying
	Delay   time.Duration // backoff before the next attempt
	Err     error
	Result  *Result
}

// DownloadResult summarizes one applied delta.
type DownloadResult struct {
	Categories int
	Bookmarks  int
	Deleted    int
	Promoted   int
	KeptLocal  int
	FullSync   bool
}

// RepairResult summarizes the repair passes.
type RepairResult struct {
	Orphans          int64
	EncryptionPasses int
	Decrypted        int
}

// UploadResult summarizes one upload run.
type UploadResult struct {
	RemoteDeletes int
	Categories    int
	Bookmarks     int
	Promoted      int
	MediaUploaded int
	MediaFailed   int
}

// Result of a complete cycle.
type Result struct {
	Download DownloadResult
	Repair   RepairResult
	Upload   UploadResult
	Attempts int
	Duration time.Duration
}

// Status is a snapshot of the Coordinator for callers.
type Status struct {
	State      State
	InProgress bool
	LastSyncAt time.Time
	LastError  string
	LastResult *Result
}
