package acl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/knowbot/pkg/acl"
)

const policyV1 = `
notebooks:
  - id: "hr"
    name: "HR Policies"
    allowed_groups:
      - group_id: "aaaaaaaa-1111-2222-3333-444444444444"
        display_name: "HR"
  - id: "public"
    name: "Company Wiki"
    allowed_groups: ["*"]
`

const policyV2 = `
notebooks:
  - id: "hr"
    name: "People Ops"
    allowed_groups:
      - group_id: "aaaaaaaa-1111-2222-3333-444444444444"
        display_name: "HR"
  - id: "finance"
    name: "Finance"
    allowed_groups:
      - group_id: "aaaaaaaa-1111-2222-3333-444444444444"
        display_name: "HR"
`

func writePolicy(t *testing.T, path, doc string) {
	t.Helper()
	gt.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
}

func newFileStore(t *testing.T, doc string) (*acl.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acl.yaml")
	writePolicy(t, path, doc)

	store, err := acl.NewStore(context.Background(), acl.NewFileSource(path))
	gt.NoError(t, err)
	return store, path
}

func TestNewStoreMissingFile(t *testing.T) {
	_, err := acl.NewStore(context.Background(), acl.NewFileSource(filepath.Join(t.TempDir(), "none.yaml")))
	gt.Error(t, err)
}

func TestNewStoreInvalidPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acl.yaml")
	writePolicy(t, path, "notebooks:\n  - id: x\n")

	_, err := acl.NewStore(context.Background(), acl.NewFileSource(path))
	gt.Error(t, err)
	gt.True(t, errors.Is(err, acl.ErrConfig))
}

func TestStoreNotebookName(t *testing.T) {
	store, _ := newFileStore(t, validPolicy)

	name, ok := store.NotebookName("hr-notebook")
	gt.True(t, ok)
	gt.Equal(t, name, "HR Policies")

	_, ok = store.NotebookName("nonexistent")
	gt.False(t, ok)

	_, ok = store.NotebookName("*")
	gt.False(t, ok)

	gt.A(t, store.Notebooks()).Length(3)
}

func TestStoreReload(t *testing.T) {
	store, path := newFileStore(t, policyV1)
	ctx := context.Background()

	writePolicy(t, path, policyV2)
	gt.NoError(t, store.Reload(ctx))

	name, ok := store.NotebookName("hr")
	gt.True(t, ok)
	gt.Equal(t, name, "People Ops")
	gt.Equal(t, store.Resolve([]string{"aaaaaaaa-1111-2222-3333-444444444444"}).Notebooks, []string{"finance", "hr"})
}

func TestStoreFailedReloadKeepsPolicy(t *testing.T) {
	store, path := newFileStore(t, policyV1)
	ctx := context.Background()
	before := store.Policy()

	writePolicy(t, path, "notebooks: [ {id: broken")
	err := store.Reload(ctx)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, acl.ErrConfig))

	gt.True(t, store.Policy() == before)
	name, ok := store.NotebookName("hr")
	gt.True(t, ok)
	gt.Equal(t, name, "HR Policies")

	// A validation failure is all-or-nothing too.
	writePolicy(t, path, `
notebooks:
  - id: "hr"
    name: "Renamed"
  - id: "bad"
    name: "Bad"
    allowed_groups:
      - group_id: "short"
        display_name: "x"
`)
	gt.Error(t, store.Reload(ctx))
	name, _ = store.NotebookName("hr")
	gt.Equal(t, name, "HR Policies")

	gt.NoError(t, os.Remove(path))
	gt.Error(t, store.Reload(ctx))
	name, _ = store.NotebookName("hr")
	gt.Equal(t, name, "HR Policies")
}

func TestStoreReloadIsAtomicForReaders(t *testing.T) {
	store, path := newFileStore(t, policyV1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mixed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				policy := store.Policy()
				name, _ := policy.NotebookName("hr")
				_, hasPublic := policy.NotebookName("public")
				_, hasFinance := policy.NotebookName("finance")

				v1 := name == "HR Policies" && hasPublic && !hasFinance
				v2 := name == "People Ops" && !hasPublic && hasFinance
				if !v1 && !v2 {
					mixed.Add(1)
				}
			}
		}()
	}

	docs := []string{policyV2, policyV1, "notebooks: [", policyV2}
	for i := 0; i < 40; i++ {
		writePolicy(t, path, docs[i%len(docs)])
		_ = store.Reload(ctx)
	}
	cancel()
	wg.Wait()

	gt.Equal(t, mixed.Load(), int64(0))
}
