package acl

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/knowbot/pkg/interfaces"
	"github.com/m-mizutani/knowbot/pkg/model"
)

// Load reads and parses a policy from src.
func Load(ctx context.Context, src interfaces.PolicySource) (*model.Policy, error) {
	data, err := src.Load(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load access control config", goerr.V("source", src.String()))
	}

	policy, err := Parse(data)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load access control config", goerr.V("source", src.String()))
	}
	return policy, nil
}

// Store holds the active policy. Readers always see one complete snapshot;
// Reload swaps in a new snapshot only after it parsed and validated.
type Store struct {
	src    interfaces.PolicySource
	policy atomic.Pointer[model.Policy]

	reloadMu sync.Mutex
}

// NewStore loads the initial policy. Any failure is fatal to the caller.
func NewStore(ctx context.Context, src interfaces.PolicySource) (*Store, error) {
	policy, err := Load(ctx, src)
	if err != nil {
		return nil, err
	}

	s := &Store{src: src}
	s.policy.Store(policy)
	return s, nil
}

// Reload re-reads the source. On failure the previous policy stays
// active and the error is returned.
func (s *Store) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	policy, err := Load(ctx, s.src)
	if err != nil {
		return err
	}
	s.policy.Store(policy)
	return nil
}

// Policy returns the current snapshot. It must not be modified.
func (s *Store) Policy() *model.Policy {
	return s.policy.Load()
}

func (s *Store) Source() string {
	return s.src.String()
}

// NotebookName returns the name of a real notebook. Unknown ids are not an
// error.
func (s *Store) NotebookName(id string) (string, bool) {
	return s.Policy().NotebookName(id)
}

// Resolve computes access for groupIDs against the current snapshot.
func (s *Store) Resolve(groupIDs []string) model.Access {
	return Resolve(s.Policy(), groupIDs)
}

// Notebooks returns the real notebook entries of the current snapshot.
func (s *Store) Notebooks() []model.NotebookACL {
	policy := s.Policy()
	out := make([]model.NotebookACL, 0, len(policy.Notebooks))
	for _, nb := range policy.Notebooks {
		if !nb.IsAdminEntry() {
			out = append(out, nb)
		}
	}
	return out
}
