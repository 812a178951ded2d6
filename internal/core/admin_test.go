package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/plaza-server/internal/store"
)

func TestPickAdmin(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	members := []*store.Membership{
		{UserID: "zed", Role: store.RoleAdmin, JoinedAt: base},
		{UserID: "amy", Role: store.RoleMember, JoinedAt: base.Add(-time.Hour)},
		{UserID: "bea", Role: store.RoleAdmin, JoinedAt: base},
		{UserID: "cal", Role: store.RoleAdmin, JoinedAt: base.Add(time.Minute)},
	}

	got := pickAdmin(members)
	require.NotNil(t, got)
	assert.Equal(t, "bea", got.UserID)
	assert.Equal(t, 3, countAdmins(members))
	assert.Nil(t, pickAdmin(members[1:2]))
}

func TestPickSuccessor(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	members := []*store.Membership{
		{UserID: "boss", Role: store.RoleAdmin, JoinedAt: base.Add(-time.Hour)},
		{UserID: "old", JoinedAt: base},
		{UserID: "live", JoinedAt: base.Add(time.Hour)},
		{UserID: "alsolive", JoinedAt: base.Add(time.Hour)},
	}

	tests := []struct {
		name   string
		online map[string]bool
		want   string
	}{
		{"nobody online picks earliest", map[string]bool{}, "old"},
		{"online preferred", map[string]bool{"live": true}, "live"},
		{"tie broken by id", map[string]bool{"live": true, "alsolive": true}, "alsolive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pickSuccessor(members, "boss", func(id string) bool { return tt.online[id] })
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.UserID)
		})
	}

	assert.Nil(t, pickSuccessor(members[:1], "boss", func(string) bool { return false }))
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, dedupe([]string{"a", "", "b", "a"}))
	assert.Empty(t, dedupe(nil))
}
