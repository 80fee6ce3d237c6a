package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/sitesmith/internal/pathset"
	"github.com/dshills/sitesmith/internal/task"
)

// mockRunner records fan-out calls. When gate is non-nil every run blocks
// until a value is received from it.
type mockRunner struct {
	mu      sync.Mutex
	calls   [][]string
	active  map[string]int
	overlap atomic.Bool
	gate    chan struct{}
	err     error
	ran     chan []string
}

func newMockRunner() *mockRunner {
	return &mockRunner{active: map[string]int{}, ran: make(chan []string, 100)}
}

func (m *mockRunner) RunFanOut(ctx context.Context, names []string) task.Report {
	key := names[0]
	m.mu.Lock()
	m.calls = append(m.calls, names)
	m.active[key]++
	if m.active[key] > 1 {
		m.overlap.Store(true)
	}
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	m.mu.Lock()
	m.active[key]--
	m.mu.Unlock()
	m.ran <- names
	return task.Report{Err: m.err}
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func expectRun(t *testing.T, r *mockRunner, want string) {
	t.Helper()
	select {
	case names := <-r.ran:
		if names[0] != want {
			t.Fatalf("ran %v, want %s", names, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s run", want)
	}
}

func expectNoRun(t *testing.T, r *mockRunner) {
	t.Helper()
	select {
	case names := <-r.ran:
		t.Fatalf("unexpected run of %v", names)
	case <-time.After(100 * time.Millisecond):
	}
}

type coordinatorFixture struct {
	root   string
	fake   *fakeWatcher
	runner *mockRunner
	coord  *Coordinator
}

func newCoordinatorFixture(t *testing.T, config CoordinatorConfig) *coordinatorFixture {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"src/pages", "src/blocks/header", "src/styles", "src/img"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	f := &coordinatorFixture{root: root, fake: newFakeWatcher(), runner: newMockRunner()}
	bindings := []Binding{
		{Name: "html", Watch: pathset.New("src/pages/*.html", "src/blocks/**/*.html"), Tasks: []string{"html"}},
		{Name: "styles", Watch: pathset.New("src/blocks/**/*.css", "src/styles/**/*.css"), Tasks: []string{"styles"}},
		{Name: "images", Watch: pathset.New("src/img/**/*"), Tasks: []string{"images", "sprites"}},
	}
	config.Root = root
	config.NewWatcher = func() (Watcher, error) { return f.fake, nil }
	f.coord = NewCoordinator(f.runner, bindings, config)
	t.Cleanup(func() { _ = f.coord.Stop() })
	return f
}

func (f *coordinatorFixture) change(rel string) {
	f.fake.push(filepath.Join(f.root, filepath.FromSlash(rel)), OpWrite)
}

func TestCoordinator_WatchDirs(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	if err := f.coord.Start(context.Background()); err != nil {
		t.Fatalf("Start error = %v", err)
	}

	want := []string{
		filepath.Join(f.root, "src", "blocks"),
		filepath.Join(f.root, "src", "img"),
		filepath.Join(f.root, "src", "pages"),
		filepath.Join(f.root, "src", "styles"),
	}
	got := f.fake.WatchedPaths()
	if len(got) != len(want) {
		t.Fatalf("watched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("watched[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	f.fake.mu.Lock()
	trees := len(f.fake.trees)
	f.fake.mu.Unlock()
	if trees != len(want) {
		t.Errorf("%d recursive registrations, want %d", trees, len(want))
	}
}

func TestCoordinator_WatchDirsMissingBase(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	c := NewCoordinator(newMockRunner(), []Binding{
		{Name: "fonts", Watch: pathset.New("src/fonts/**/*"), Tasks: []string{"fonts"}},
	}, CoordinatorConfig{Root: root})

	dirs := c.WatchDirs()
	if len(dirs) != 1 || dirs[0] != filepath.Join(root, "src") {
		t.Errorf("WatchDirs = %v, want nearest existing ancestor src", dirs)
	}
}

func TestCoordinator_TriggersOnlyMatchingBinding(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	if err := f.coord.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.change("src/styles/partials/_vars.css")
	expectRun(t, f.runner, "styles")
	expectNoRun(t, f.runner)

	f.change("src/blocks/header/header.html")
	expectRun(t, f.runner, "html")

	f.change("src/blocks/header/header.css")
	expectRun(t, f.runner, "styles")

	f.change("README.md")
	f.change("src/pages/nested/deep.html")
	expectNoRun(t, f.runner)

	if n := f.runner.callCount(); n != 3 {
		t.Errorf("runner called %d times, want 3", n)
	}
}

func TestCoordinator_RunsAllBindingTasks(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	if err := f.coord.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.change("src/img/icons/arrow.svg")
	select {
	case names := <-f.runner.ran:
		if len(names) != 2 || names[0] != "images" || names[1] != "sprites" {
			t.Errorf("ran %v, want [images sprites]", names)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout")
	}
}

func TestCoordinator_CoalescesDuringRun(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	f.runner.gate = make(chan struct{})
	var (
		mu      sync.Mutex
		batches [][]string
	)
	f.coord.config.OnRun = func(binding string, paths []string, _ task.Report) {
		mu.Lock()
		batches = append(batches, paths)
		mu.Unlock()
	}
	if err := f.coord.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.change("src/styles/main.css")
	waitUntil(t, func() bool { return f.runner.callCount() == 1 })

	f.change("src/styles/a.css")
	f.change("src/styles/b.css")
	f.change("src/styles/c.css")
	time.Sleep(50 * time.Millisecond)
	if n := f.runner.callCount(); n != 1 {
		t.Fatalf("runner called %d times during the first run, want 1", n)
	}

	f.runner.gate <- struct{}{}
	expectRun(t, f.runner, "styles")
	f.runner.gate <- struct{}{}
	expectRun(t, f.runner, "styles")
	expectNoRun(t, f.runner)

	if n := f.runner.callCount(); n != 2 {
		t.Errorf("runner called %d times, want 2 (one coalesced rerun)", n)
	}
	if f.runner.overlap.Load() {
		t.Error("two runs of one binding overlapped")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 2 || len(batches[1]) != 3 {
		t.Errorf("batches = %v, want the rerun to carry the 3 queued changes", batches)
	}
}

func TestCoordinator_ErrorsDoNotEndSession(t *testing.T) {
	var (
		mu     sync.Mutex
		errs   []error
		seenBy []string
	)
	f := newCoordinatorFixture(t, CoordinatorConfig{
		OnError: func(binding string, err error) {
			mu.Lock()
			errs = append(errs, err)
			seenBy = append(seenBy, binding)
			mu.Unlock()
		},
	})
	boom := errors.New("sass syntax error")
	f.runner.err = boom
	if err := f.coord.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.change("src/styles/main.css")
	expectRun(t, f.runner, "styles")
	f.change("src/styles/main.css")
	expectRun(t, f.runner, "styles")

	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) == 2
	})
	if !errors.Is(errs[0], boom) || seenBy[0] != "styles" {
		t.Errorf("OnError got (%s, %v)", seenBy[0], errs[0])
	}
	if s := f.coord.State(); s != StateWatching {
		t.Errorf("State = %s after failures, want watching", s)
	}

	f.fake.errs <- errors.New("inotify overflow")
	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) == 3 && seenBy[2] == ""
	})
}

func TestCoordinator_Lifecycle(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	if s := f.coord.State(); s != StateIdle {
		t.Fatalf("initial State = %s, want idle", s)
	}
	if err := f.coord.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.coord.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start error = %v, want ErrAlreadyStarted", err)
	}

	if err := f.coord.Stop(); err != nil {
		t.Fatalf("Stop error = %v", err)
	}
	if err := f.coord.Stop(); err != nil {
		t.Errorf("second Stop error = %v", err)
	}
	if s := f.coord.State(); s != StateStopped {
		t.Errorf("State = %s, want stopped", s)
	}
	if !f.fake.isClosed() {
		t.Error("watcher not closed on Stop")
	}
	if err := f.coord.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Start after Stop error = %v, want ErrAlreadyStarted", err)
	}
}

func TestCoordinator_StopCancelsRun(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	f.runner.gate = make(chan struct{})
	if err := f.coord.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.change("src/pages/index.html")
	waitUntil(t, func() bool { return f.runner.callCount() == 1 })

	done := make(chan struct{})
	go func() {
		_ = f.coord.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the in-flight run")
	}
}

func TestCoordinator_ContextCancelStopsDispatch(t *testing.T) {
	f := newCoordinatorFixture(t, CoordinatorConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	if err := f.coord.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	time.Sleep(20 * time.Millisecond)

	f.change("src/pages/index.html")
	expectNoRun(t, f.runner)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
