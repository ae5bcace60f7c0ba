package services

import (
	"testing"
	"time"

	"community-points/models"

	"github.com/stretchr/testify/require"
)

func TestAdminStats(t *testing.T) {
	db := newTestDB(t)
	points := NewPointsService(db, DefaultPointsWeights)
	svc := NewAdminService(db, points, nil, true, false)

	alice := createUser(t, db, "alice", 0, time.Now())
	createUser(t, db, "bob", 0, time.Now())
	createPost(t, db, alice, "1", models.PostStatusVerified)
	createPost(t, db, alice, "2", models.PostStatusFlagged)
	_, err := points.AwardPoints(alice.ID, nil, 12, "manual:seed")
	require.NoError(t, err)

	stats, err := svc.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.Users)
	require.EqualValues(t, 12, stats.TotalPoints)
	require.EqualValues(t, 1, stats.HistoryEntries)
	require.Equal(t, map[string]int64{"verified": 1, "flagged": 1}, stats.PostsByStatus)
	require.Equal(t, "disabled", stats.BreakerState)
	require.True(t, stats.ManualOnly)
}

func TestBanDropsUserFromRanking(t *testing.T) {
	db := newTestDB(t)
	svc := NewAdminService(db, NewPointsService(db, DefaultPointsWeights), nil, false, false)
	lb := NewLeaderboardService(db)
	alice := createUser(t, db, "alice", 100, time.Now())
	createUser(t, db, "bob", 10, time.Now())

	_, err := lb.Standings()
	require.NoError(t, err)

	u, err := svc.SetBanned(alice.ID, true)
	require.NoError(t, err)
	require.True(t, u.IsBanned)
	require.Zero(t, u.Rank)

	page, err := lb.Leaderboard(10, 0)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	require.Equal(t, "bob", page.Entries[0].Username)
	require.Equal(t, 1, page.Entries[0].Rank)

	_, err = svc.SetBanned(alice.ID, false)
	require.NoError(t, err)
	page, err = lb.Leaderboard(10, 0)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)

	_, err = svc.SetBanned("missing", true)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestAdminAdjustPointsCapsAtZero(t *testing.T) {
	db := newTestDB(t)
	points := NewPointsService(db, DefaultPointsWeights)
	svc := NewAdminService(db, points, nil, false, false)
	alice := createUser(t, db, "alice", 0, time.Now())
	_, err := points.AwardPoints(alice.ID, nil, 20, "manual:seed")
	require.NoError(t, err)

	u, applied, err := svc.AdjustPoints(AdjustPointsRequest{UserID: alice.ID, Delta: -50, Note: "spam"}, "admin-1")
	require.NoError(t, err)
	require.Equal(t, int64(-20), applied)
	require.Zero(t, u.TotalPoints)
	require.Zero(t, ledgerSum(t, db, alice.ID))

	drifts, err := svc.Reconcile()
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestSearchUsers(t *testing.T) {
	db := newTestDB(t)
	svc := NewAdminService(db, NewPointsService(db, DefaultPointsWeights), nil, false, false)
	createUser(t, db, "alice", 5, time.Now())
	createUser(t, db, "alicia", 9, time.Now())
	createUser(t, db, "bob", 1, time.Now())

	users, err := svc.SearchUsers("ALI", 10)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "alicia", users[0].Username)
}
