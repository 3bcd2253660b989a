package acl_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/knowbot/pkg/acl"
)

type reloadLog struct {
	mu      sync.Mutex
	results []error
}

func (r *reloadLog) hook(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, err)
}

func (r *reloadLog) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcherReloadsOnFileChange(t *testing.T) {
	store, path := newFileStore(t, policyV1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &reloadLog{}
	w := acl.NewWatcher(store,
		acl.WithFile(path),
		acl.WithDebounce(10*time.Millisecond),
		acl.WithReloadHook(log.hook),
	)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)

	writePolicy(t, path, policyV2)
	waitFor(t, func() bool {
		name, _ := store.NotebookName("hr")
		return name == "People Ops"
	})

	cancel()
	gt.NoError(t, <-done)
}

func TestWatcherKeepsPolicyOnBrokenFile(t *testing.T) {
	store, path := newFileStore(t, policyV1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := &reloadLog{}
	w := acl.NewWatcher(store,
		acl.WithInterval(20*time.Millisecond),
		acl.WithReloadHook(log.hook),
	)
	writePolicy(t, path, "notebooks: [")

	go func() { _ = w.Run(ctx) }()
	waitFor(t, func() bool { return log.count() >= 2 })
	cancel()

	log.mu.Lock()
	gt.Error(t, log.results[0])
	log.mu.Unlock()

	name, ok := store.NotebookName("hr")
	gt.True(t, ok)
	gt.Equal(t, name, "HR Policies")
}
