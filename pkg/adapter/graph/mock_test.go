package graph_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/knowbot/pkg/adapter/graph"
	"github.com/m-mizutani/knowbot/pkg/model"
)

type countingDirectory struct {
	calls int
	err   error
}

func (d *countingDirectory) GetUser(_ context.Context, userID string) (*model.UserInfo, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return &model.UserInfo{ID: userID, DisplayName: "Real User"}, nil
}

func TestMock(t *testing.T) {
	mock := graph.NewMock(graph.ParseGroupList(" g-1, ,g-2 "))

	info, err := mock.GetUser(context.Background(), "00000000-0000-0000-0000-000000000020")
	gt.NoError(t, err)
	gt.Equal(t, info.DisplayName, "Test User (Agent Playground)")
	gt.Equal(t, info.Email, "test@playground.local")
	gt.Equal(t, info.Groups, []model.GroupRef{
		{ID: "g-1", DisplayName: "Test Group 1"},
		{ID: "g-2", DisplayName: "Test Group 2"},
	})
}

func TestRouter(t *testing.T) {
	live := &countingDirectory{}
	router := graph.NewRouter(live, graph.NewMock([]string{"g-1"}))
	ctx := context.Background()

	info, err := router.GetUser(ctx, "00000000-0000-0000-0000-000000000020")
	gt.NoError(t, err)
	gt.Equal(t, info.DisplayName, "Test User (Agent Playground)")
	gt.Equal(t, live.calls, 0)

	info, err = router.GetUser(ctx, testUserID)
	gt.NoError(t, err)
	gt.Equal(t, info.DisplayName, "Real User")
	gt.Equal(t, live.calls, 1)
}

func TestRouterMissingTargets(t *testing.T) {
	ctx := context.Background()

	_, err := graph.NewRouter(nil, graph.NewMock(nil)).GetUser(ctx, testUserID)
	gt.True(t, errors.Is(err, model.ErrIdentity))

	_, err = graph.NewRouter(&countingDirectory{}, nil).GetUser(ctx, "00000000-0000-0000-0000-000000000001")
	gt.True(t, errors.Is(err, model.ErrIdentity))
}

func TestCached(t *testing.T) {
	live := &countingDirectory{}
	var hits, misses int
	cached := graph.NewCached(live, 10, time.Minute, graph.WithCacheHook(func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	}))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info, err := cached.GetUser(ctx, testUserID)
		gt.NoError(t, err)
		gt.Equal(t, info.ID, testUserID)
	}
	gt.Equal(t, live.calls, 1)
	gt.Equal(t, hits, 2)
	gt.Equal(t, misses, 1)
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	live := &countingDirectory{err: model.ErrIdentity}
	cached := graph.NewCached(live, 10, time.Minute)
	ctx := context.Background()

	_, err := cached.GetUser(ctx, testUserID)
	gt.Error(t, err)
	live.err = nil

	info, err := cached.GetUser(ctx, testUserID)
	gt.NoError(t, err)
	gt.Equal(t, info.DisplayName, "Real User")
	gt.Equal(t, live.calls, 2)
}

func TestCachedExpires(t *testing.T) {
	live := &countingDirectory{}
	cached := graph.NewCached(live, 10, 50*time.Millisecond)
	ctx := context.Background()

	_, _ = cached.GetUser(ctx, testUserID)
	time.Sleep(120 * time.Millisecond)
	_, _ = cached.GetUser(ctx, testUserID)
	gt.Equal(t, live.calls, 2)
}
