package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/knowbot/pkg/model"
)

func TestUserInfoGroupIDs(t *testing.T) {
	user := &model.UserInfo{
		ID: "u1",
		Groups: []model.GroupRef{
			{ID: "g-2", DisplayName: "Second"},
			{ID: "g-1", DisplayName: "First"},
		},
	}
	gt.Equal(t, user.GroupIDs(), []string{"g-2", "g-1"})

	gt.Equal(t, (&model.UserInfo{}).GroupIDs(), []string{})
}
