package services

import (
	"testing"
	"time"

	"community-points/models"

	"github.com/stretchr/testify/require"
)

func TestRankUsersOrdering(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	users := []models.User{
		{ID: "c", Username: "late-tie", TotalPoints: 50, JoinedAt: base.Add(2 * time.Hour)},
		{ID: "a", Username: "top", TotalPoints: 90, JoinedAt: base.Add(5 * time.Hour)},
		{ID: "b", Username: "early-tie", TotalPoints: 50, JoinedAt: base.Add(time.Hour)},
		{ID: "e", Username: "same-join-e", TotalPoints: 10, JoinedAt: base},
		{ID: "d", Username: "same-join-d", TotalPoints: 10, JoinedAt: base},
	}

	ranked := RankUsers(users)

	var order []string
	for i, u := range ranked {
		require.Equal(t, i+1, u.Rank)
		order = append(order, u.ID)
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, order)

	// input is untouched
	require.Equal(t, "c", users[0].ID)
	require.Zero(t, users[0].Rank)
}

func TestRankUsersIsIdempotent(t *testing.T) {
	base := time.Now()
	users := []models.User{
		{ID: "1", TotalPoints: 3, JoinedAt: base},
		{ID: "2", TotalPoints: 7, JoinedAt: base.Add(time.Minute)},
		{ID: "3", TotalPoints: 7, JoinedAt: base.Add(-time.Minute)},
		{ID: "4", TotalPoints: 0, JoinedAt: base},
	}
	once := RankUsers(users)
	twice := RankUsers(once)
	require.Equal(t, once, twice)

	// reversed input gives the same ranking
	reversed := make([]models.User, len(users))
	for i := range users {
		reversed[len(users)-1-i] = users[i]
	}
	require.Equal(t, once, RankUsers(reversed))
}

func TestRankUsersConsistentWithPoints(t *testing.T) {
	base := time.Now()
	var users []models.User
	for i := 0; i < 30; i++ {
		users = append(users, models.User{
			ID:          string(rune('A' + i)),
			TotalPoints: int64((i * 37) % 11),
			JoinedAt:    base.Add(time.Duration(i%4) * time.Minute),
		})
	}
	ranked := RankUsers(users)
	for i := 1; i < len(ranked); i++ {
		prev, cur := ranked[i-1], ranked[i]
		require.GreaterOrEqual(t, prev.TotalPoints, cur.TotalPoints)
		if prev.TotalPoints == cur.TotalPoints {
			require.False(t, cur.JoinedAt.Before(prev.JoinedAt))
		}
	}
}

func TestLeaderboardPersistsRanksAndSkipsBanned(t *testing.T) {
	db := newTestDB(t)
	svc := NewLeaderboardService(db)
	base := time.Now().Add(-time.Hour)

	alice := createUser(t, db, "alice", 40, base)
	bob := createUser(t, db, "bob", 40, base.Add(time.Minute))
	carol := createUser(t, db, "carol", 100, base.Add(2*time.Minute))
	banned := createUser(t, db, "mallory", 1000, base)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", banned.ID).Updates(map[string]any{"is_banned": true, "rank": 1}).Error)

	page, err := svc.Leaderboard(10, 0)
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Len(t, page.Entries, 3)
	require.Equal(t, carol.ID, page.Entries[0].UserID)
	require.Equal(t, "gold", page.Entries[0].Podium)
	require.Equal(t, alice.ID, page.Entries[1].UserID)
	require.Equal(t, bob.ID, page.Entries[2].UserID)
	require.Equal(t, "bronze", page.Entries[2].Podium)

	require.Equal(t, 1, reloadUser(t, db, carol.ID).Rank)
	require.Equal(t, 3, reloadUser(t, db, bob.ID).Rank)
	require.Zero(t, reloadUser(t, db, banned.ID).Rank)

	// a second read on unchanged data gives the same page
	again, err := svc.Leaderboard(10, 0)
	require.NoError(t, err)
	require.Equal(t, page.Entries, again.Entries)

	// paging past the end is empty, not an error
	empty, err := svc.Leaderboard(10, 10)
	require.NoError(t, err)
	require.Empty(t, empty.Entries)
}

func TestUserRankNearby(t *testing.T) {
	db := newTestDB(t)
	svc := NewLeaderboardService(db)
	base := time.Now().Add(-time.Hour)

	var ids []string
	for i := 0; i < 7; i++ {
		u := createUser(t, db, string(rune('a'+i))+"user", int64(70-i*10), base)
		ids = append(ids, u.ID)
	}

	view, err := svc.UserRank(ids[3], 2)
	require.NoError(t, err)
	require.Equal(t, 4, view.Rank)
	require.Equal(t, 7, view.Total)
	require.Len(t, view.Nearby, 5)
	require.Equal(t, ids[1], view.Nearby[0].UserID)
	require.True(t, view.Nearby[2].IsCurrentUser)
	require.InDelta(t, 57.1, view.Percentile, 0.01)

	top, err := svc.UserRank(ids[0], 2)
	require.NoError(t, err)
	require.Len(t, top.Nearby, 3)

	_, err = svc.UserRank("missing", 2)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestTopPerformers(t *testing.T) {
	db := newTestDB(t)
	svc := NewLeaderboardService(db)
	for i, pts := range []int64{5, 50, 20, 10} {
		createUser(t, db, string(rune('p'+i)), pts, time.Now())
	}
	top, err := svc.TopPerformers(3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	require.Equal(t, int64(50), top[0].TotalPoints)
	require.Equal(t, []string{"gold", "silver", "bronze"}, []string{top[0].Podium, top[1].Podium, top[2].Podium})
}
