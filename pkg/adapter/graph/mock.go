package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/knowbot/pkg/model"
	"github.com/m-mizutani/knowbot/pkg/utils/logging"
)

// Mock answers every lookup with a fixed test identity. It serves the fake
// user ids sent by Agent Playground, which do not exist in the directory.
type Mock struct {
	groups []model.GroupRef
}

func NewMock(groupIDs []string) *Mock {
	groups := make([]model.GroupRef, 0, len(groupIDs))
	for i, id := range groupIDs {
		groups = append(groups, model.GroupRef{ID: id, DisplayName: fmt.Sprintf("Test Group %d", i+1)})
	}
	return &Mock{groups: groups}
}

// ParseGroupList splits a comma separated list of group ids.
func ParseGroupList(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (m *Mock) GetUser(ctx context.Context, userID string) (*model.UserInfo, error) {
	logging.From(ctx).Info("mock_user_retrieved", "user_id", userID, "group_count", len(m.groups))

	groups := make([]model.GroupRef, len(m.groups))
	copy(groups, m.groups)
	return &model.UserInfo{
		ID:          userID,
		DisplayName: "Test User (Agent Playground)",
		Email:       "test@playground.local",
		Groups:      groups,
	}, nil
}
