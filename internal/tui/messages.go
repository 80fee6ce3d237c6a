package tui

import (
	"time"

	"github.com/dshills/sitesmith/internal/livereload"
	"github.com/dshills/sitesmith/internal/task"
)

// TaskStartedMsg is sent when a task begins executing.
type TaskStartedMsg struct {
	ExecutionID string
	Task        string
}

// TaskFinishedMsg carries the terminal result of a task.
type TaskFinishedMsg struct {
	Result task.Result
}

// WatchRunMsg is sent when a watch binding finished a run.
type WatchRunMsg struct {
	Binding string
	Paths   []string
	Report  task.Report
}

// WatchErrorMsg is sent for failures during a watch session.
type WatchErrorMsg struct {
	Binding string
	Err     error
	Time    time.Time
}

// ReloadMsg is sent when a live-reload event is published.
type ReloadMsg struct {
	Event livereload.Event
}
