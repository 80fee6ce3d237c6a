// Package task provides the build task registry and runner for sitesmith.
//
// A task binds a name to a transform unit, a source PathSet, a destination
// directory and a watch PathSet. Tasks are registered once at startup into a
// Registry that is then frozen and shared read-only by the Runner and the
// watch coordinator.
//
// # Execution
//
// The Runner composes tasks in two ways:
//
//   - RunSequence runs tasks in listed order and stops at the first failure.
//     The report carries the first *TransformError.
//   - RunFanOut runs a group of independent tasks concurrently. The report
//     carries an *AggregateError with every member failure; successful members
//     keep their outputs.
//
// Each task resolves its sources when it runs, never at registration time,
// so files created after startup are picked up by the next run.
//
// # Hooks and Listeners
//
// Post-success hooks receive the result (including written outputs) of every
// task that succeeded. The live-reload broadcaster is attached this way, so
// transform units never know about reloading. Listeners observe start and
// finish of every task for logging and the dashboard.
//
//	reg := task.NewRegistry()
//	_ = reg.Register(task.Descriptor{Name: "styles", Transform: styles, ...})
//	reg.Freeze()
//
//	runner := task.NewRunner(reg, task.RunnerConfig{Root: root})
//	runner.OnSuccess(reloadHook)
//	report := runner.RunSequence(ctx, []string{"html", "styles"})
//	if report.Err != nil {
//	    // report.Results shows which tasks ran
//	}
package task
