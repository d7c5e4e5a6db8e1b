package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleCapabilities(t *testing.T) {
	admin := NewIdentity(&User{ID: 1, Role: RoleAdmin})
	manager := NewIdentity(&User{ID: 2, Role: RoleManager})
	user := NewIdentity(&User{ID: 3, Role: RoleUser})
	viewer := NewIdentity(&User{ID: 4, Role: RoleViewer})
	unknown := NewIdentity(&User{ID: 5, Role: Role("guest")})

	for _, c := range []Capability{CapRead, CapWrite, CapExport, CapManageUsers, CapViewStatistics} {
		assert.True(t, admin.Can(c), c)
	}
	assert.True(t, manager.Can(CapManageUsers))
	assert.True(t, manager.Can(CapExport))
	assert.True(t, user.Can(CapWrite))
	assert.False(t, user.Can(CapManageUsers))
	assert.False(t, user.Can(CapViewStatistics))
	assert.True(t, viewer.Can(CapRead))
	assert.False(t, viewer.Can(CapWrite))
	assert.False(t, unknown.Can(CapRead))
	assert.False(t, Role("guest").Valid())
	assert.Equal(t, "3", user.Key())
	assert.Equal(t, []Capability{CapRead, CapWrite}, user.Capabilities())
	assert.Empty(t, unknown.Capabilities())
}

func TestMessageRoleIsClosed(t *testing.T) {
	assert.True(t, MessageRoleUser.Valid())
	assert.True(t, MessageRoleAssistant.Valid())
	assert.False(t, MessageRole("system").Valid())
}
