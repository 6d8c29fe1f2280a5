package model

import (
	"testing"
	"time"
)

func TestUserIsNew(t *testing.T) {
	u := &User{ID: "u-1"}
	if !u.IsNew() {
		t.Error("user without last auth time should be new")
	}

	now := time.Now().UTC()
	u.LastAuthAt = &now
	if u.IsNew() {
		t.Error("user with last auth time should not be new")
	}
}

func TestServiceErrorFormat(t *testing.T) {
	err := NewNotFoundError("user")
	if got := err.Error(); got != "[NOT_FOUND] user not found" {
		t.Errorf("Error() = %q", got)
	}
}
