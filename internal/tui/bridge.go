package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dshills/sitesmith/internal/livereload"
	"github.com/dshills/sitesmith/internal/task"
)

// Bridge forwards runner and coordinator callbacks into a tea.Program.
// Typically constructed with program.Send.
type Bridge struct {
	send func(tea.Msg)
}

// NewBridge creates a Bridge that delivers messages through send.
func NewBridge(send func(tea.Msg)) *Bridge {
	return &Bridge{send: send}
}

// OnTaskStarted implements task.Listener.
func (b *Bridge) OnTaskStarted(executionID, name string) {
	b.send(TaskStartedMsg{ExecutionID: executionID, Task: name})
}

// OnTaskFinished implements task.Listener.
func (b *Bridge) OnTaskFinished(res task.Result) {
	b.send(TaskFinishedMsg{Result: res})
}

// OnRun matches watcher.CoordinatorConfig.OnRun.
func (b *Bridge) OnRun(binding string, paths []string, report task.Report) {
	b.send(WatchRunMsg{Binding: binding, Paths: paths, Report: report})
}

// OnError matches watcher.CoordinatorConfig.OnError.
func (b *Bridge) OnError(binding string, err error) {
	b.send(WatchErrorMsg{Binding: binding, Err: err, Time: time.Now()})
}

// WaitForReloadCmd blocks on events and delivers the next one as a
// ReloadMsg. It returns nil once the channel is closed.
func WaitForReloadCmd(events <-chan livereload.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return ReloadMsg{Event: e}
	}
}
