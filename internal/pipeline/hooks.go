package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/sitesmith/internal/livereload"
	"github.com/dshills/sitesmith/internal/logging"
	"github.com/dshills/sitesmith/internal/task"
)

// ReloadHook returns a post-success hook that publishes a task's outputs to
// the hub as URL paths relative to outDir. Stylesheet-only outputs publish
// a css event, everything else a reload.
func ReloadHook(hub *livereload.Hub, outDir string) task.Hook {
	return func(ctx context.Context, res task.Result) {
		if len(res.Outputs) == 0 {
			return
		}
		paths := make([]string, 0, len(res.Outputs))
		for _, out := range res.Outputs {
			rel, err := filepath.Rel(outDir, out)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			paths = append(paths, "/"+filepath.ToSlash(rel))
		}
		if len(paths) == 0 {
			return
		}
		hub.Publish(livereload.KindFor(paths), paths)
	}
}

// LogListener logs task starts, results and warnings.
type LogListener struct {
	log *logging.Logger
}

// NewLogListener creates a listener logging to log.
func NewLogListener(log *logging.Logger) *LogListener {
	return &LogListener{log: log.WithComponent("task")}
}

// OnTaskStarted implements task.Listener.
func (l *LogListener) OnTaskStarted(executionID, name string) {
	l.log.Debug("%s started (%s)", name, executionID)
}

// OnTaskFinished implements task.Listener.
func (l *LogListener) OnTaskFinished(res task.Result) {
	for _, w := range res.Warnings {
		l.log.Warn("%s: %s", res.Task, w)
	}
	if res.Err != nil {
		l.log.Error("%v", res.Err)
		return
	}
	l.log.Info("%s: %d inputs, %d outputs in %s", res.Task, len(res.Inputs), len(res.Outputs), res.Duration.Round(time.Millisecond))
}
