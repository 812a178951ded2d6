package core

import (
	"sort"

	"github.com/vovakirdan/plaza-server/internal/eventbus"
	"github.com/vovakirdan/plaza-server/internal/store"
)

// resolveAdmins keeps exactly one admin when several rows claim the role.
// The earliest joiner wins, ties broken by user id. Returns the roster with
// the demotions applied.
func (h *Hub) resolveAdmins(roomID string, members []*store.Membership) []*store.Membership {
	winner := pickAdmin(members)
	if winner == nil || countAdmins(members) <= 1 {
		return members
	}

	ctx, cancel := h.storeCtx()
	n, err := h.store.DemoteAdminsExcept(ctx, roomID, winner.UserID)
	cancel()
	if err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Str("admin", winner.UserID).Msg("demote extra admins")
		return members
	}

	for _, m := range members {
		if m.Role == store.RoleAdmin && m.UserID != winner.UserID {
			m.Role = store.RoleMember
		}
	}
	h.log.Info().Str("room", roomID).Str("admin", winner.UserID).Int64("demoted", n).Msg("admin conflict resolved")
	h.announceAdmin(roomID, winner.UserID)
	return members
}

// electSuccessor runs after departed's grace expired. When departed was the
// only admin, the best remaining member is promoted and departed demoted.
func (h *Hub) electSuccessor(roomID, departed string, members []*store.Membership) []*store.Membership {
	if len(members) == 0 {
		return members
	}
	gone := findMember(members, departed)
	if gone == nil || gone.Role != store.RoleAdmin {
		return members
	}
	for _, m := range members {
		if m.UserID != departed && m.Role == store.RoleAdmin {
			return h.resolveAdmins(roomID, members)
		}
	}

	next := pickSuccessor(members, departed, func(userID string) bool {
		return h.registry.HasUser(roomID, userID)
	})
	if next == nil {
		return members
	}

	ctx, cancel := h.storeCtx()
	defer cancel()
	if err := h.store.SetMemberRole(ctx, roomID, next.UserID, store.RoleAdmin); err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Str("user", next.UserID).Msg("promote successor")
		return members
	}
	if err := h.store.SetMemberRole(ctx, roomID, departed, store.RoleMember); err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Str("user", departed).Msg("demote departed admin")
	}
	next.Role = store.RoleAdmin
	gone.Role = store.RoleMember

	h.log.Info().Str("room", roomID).Str("admin", next.UserID).Str("previous", departed).Msg("admin handed over")
	h.announceAdmin(roomID, next.UserID)
	return members
}

func (h *Hub) announceAdmin(roomID, userID string) {
	h.broadcast(roomID, &Event{Kind: EventAdminChanged, Room: roomID, AdminUserID: userID})
	h.publish(eventbus.AdminChanged, roomID, userID, nil)
}

func countAdmins(members []*store.Membership) int {
	n := 0
	for _, m := range members {
		if m.Role == store.RoleAdmin {
			n++
		}
	}
	return n
}

// pickAdmin returns the admin with the earliest joinedAt, then lowest user id.
func pickAdmin(members []*store.Membership) *store.Membership {
	var best *store.Membership
	for _, m := range members {
		if m.Role != store.RoleAdmin {
			continue
		}
		if best == nil || joinedBefore(m, best) {
			best = m
		}
	}
	return best
}

// pickSuccessor prefers live members, then the earliest joiner.
func pickSuccessor(members []*store.Membership, departed string, online func(string) bool) *store.Membership {
	candidates := make([]*store.Membership, 0, len(members))
	for _, m := range members {
		if m.UserID != departed {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		oi, oj := online(candidates[i].UserID), online(candidates[j].UserID)
		if oi != oj {
			return oi
		}
		return joinedBefore(candidates[i], candidates[j])
	})
	return candidates[0]
}

func joinedBefore(a, b *store.Membership) bool {
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.UserID < b.UserID
}
