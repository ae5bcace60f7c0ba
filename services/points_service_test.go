package services

import (
	"errors"
	"testing"
	"time"

	"community-points/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEnsureUserIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewPointsService(db, DefaultPointsWeights)

	first, err := svc.EnsureUser(Identity{ExternalID: "42", Username: "alice"})
	require.NoError(t, err)
	second, err := svc.EnsureUser(Identity{ExternalID: "42", Username: "alice_renamed"})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "alice_renamed", second.Username)
	require.False(t, first.JoinedAt.IsZero())

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestEnsureUserRequiresExternalID(t *testing.T) {
	svc := NewPointsService(newTestDB(t), DefaultPointsWeights)
	_, err := svc.EnsureUser(Identity{Username: "ghost"})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestApplyEngagementCreditsDeltaWithLedger(t *testing.T) {
	db := newTestDB(t)
	svc := NewPointsService(db, DefaultPointsWeights)
	alice := createUser(t, db, "alice", 0, time.Now())
	post := createPost(t, db, alice, "1001", models.PostStatusVerified)

	updated, delta, err := svc.ApplyEngagement(post.ID, &EngagementCounts{Likes: 10, Retweets: 5, Replies: 3})
	require.NoError(t, err)
	require.Equal(t, int64(36), delta)
	require.Equal(t, int64(36), updated.TotalPoints)
	require.Equal(t, int64(36), updated.AwardedPoints)
	require.NotNil(t, updated.LastCheckedAt)

	// lower counts from a stale read change nothing
	_, delta, err = svc.ApplyEngagement(post.ID, &EngagementCounts{Likes: 2})
	require.NoError(t, err)
	require.Zero(t, delta)

	// more likes credit only the difference
	updated, delta, err = svc.ApplyEngagement(post.ID, &EngagementCounts{Likes: 14, Retweets: 5, Replies: 3})
	require.NoError(t, err)
	require.Equal(t, int64(4), delta)
	require.Equal(t, int64(14), updated.Likes)

	// embed fallback without counts keeps the stored ones
	updated, delta, err = svc.ApplyEngagement(post.ID, nil)
	require.NoError(t, err)
	require.Zero(t, delta)
	require.Equal(t, int64(14), updated.Likes)

	u := reloadUser(t, db, alice.ID)
	require.Equal(t, int64(40), u.TotalPoints)
	require.Equal(t, u.TotalPoints, ledgerSum(t, db, alice.ID))

	var entries []models.PointsHistory
	require.NoError(t, db.Where("user_id = ?", alice.ID).Order("created_at ASC").Find(&entries).Error)
	require.Len(t, entries, 2)
	require.Equal(t, "post_verified:1001", entries[0].Reason)
	require.Equal(t, "engagement:1001", entries[1].Reason)
}

func TestApplyEngagementDoesNotCreditFlaggedPosts(t *testing.T) {
	db := newTestDB(t)
	svc := NewPointsService(db, DefaultPointsWeights)
	bob := createUser(t, db, "bob", 0, time.Now())
	post := createPost(t, db, bob, "2002", models.PostStatusFlagged)

	updated, delta, err := svc.ApplyEngagement(post.ID, &EngagementCounts{Likes: 10})
	require.NoError(t, err)
	require.Zero(t, delta)
	require.Equal(t, int64(15), updated.TotalPoints)
	require.Zero(t, updated.AwardedPoints)
	require.Zero(t, reloadUser(t, db, bob.ID).TotalPoints)
}

func TestApplyEngagementUnknownPost(t *testing.T) {
	svc := NewPointsService(newTestDB(t), DefaultPointsWeights)
	_, _, err := svc.ApplyEngagement("00000000-0000-0000-0000-000000000000", nil)
	require.ErrorIs(t, err, ErrPostMissing)
}

func TestAwardRollsBackOnFailure(t *testing.T) {
	db := newTestDB(t)
	svc := NewPointsService(db, DefaultPointsWeights)
	carol := createUser(t, db, "carol", 0, time.Now())

	boom := errors.New("boom")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.AwardTx(tx, carol.ID, nil, 50, "quest:test"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.Zero(t, reloadUser(t, db, carol.ID).TotalPoints)
	require.Zero(t, ledgerSum(t, db, carol.ID))
}

func TestAwardUnknownUser(t *testing.T) {
	svc := NewPointsService(newTestDB(t), DefaultPointsWeights)
	_, err := svc.AwardPoints("missing", nil, 10, "quest:x")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.AwardPoints("missing", nil, -10, "manual:x")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestAwardDebitBelowZeroIsRefused(t *testing.T) {
	db := newTestDB(t)
	svc := NewPointsService(db, DefaultPointsWeights)
	alice := createUser(t, db, "alice", 0, time.Now())
	_, err := svc.AwardPoints(alice.ID, nil, 20, "manual:seed")
	require.NoError(t, err)

	_, err = svc.AwardPoints(alice.ID, nil, -50, "manual:too much")
	require.ErrorIs(t, err, ErrInsufficientPoints)
	require.NotErrorIs(t, err, ErrUserNotFound)

	require.EqualValues(t, 20, reloadUser(t, db, alice.ID).TotalPoints)
	require.EqualValues(t, 20, ledgerSum(t, db, alice.ID))
}

func TestAdjustPointsNeverBelowZero(t *testing.T) {
	db := newTestDB(t)
	svc := NewPointsService(db, DefaultPointsWeights)
	dave := createUser(t, db, "dave", 0, time.Now())
	_, err := svc.AwardPoints(dave.ID, nil, 30, "quest:seed")
	require.NoError(t, err)

	user, applied, err := svc.AdjustPoints(dave.ID, -100, "spam cleanup")
	require.NoError(t, err)
	require.Equal(t, int64(-30), applied)
	require.Zero(t, user.TotalPoints)
	require.Equal(t, user.TotalPoints, ledgerSum(t, db, dave.ID))

	var last models.PointsHistory
	require.NoError(t, db.Where("user_id = ?", dave.ID).Order("created_at DESC").First(&last).Error)
	require.Equal(t, "manual:spam cleanup", last.Reason)

	_, _, err = svc.AdjustPoints("missing", 5, "x")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestHistoryPaginates(t *testing.T) {
	db := newTestDB(t)
	svc := NewPointsService(db, DefaultPointsWeights)
	erin := createUser(t, db, "erin", 0, time.Now())
	for i := 0; i < 5; i++ {
		_, err := svc.AwardPoints(erin.ID, nil, 1, "quest:tick")
		require.NoError(t, err)
	}

	page, total, err := svc.History(erin.ID, 2, 2)
	require.NoError(t, err)
	require.Equal(t, int64(5), total)
	require.Len(t, page, 2)
}

func TestReconcileFindsDrift(t *testing.T) {
	db := newTestDB(t)
	svc := NewPointsService(db, DefaultPointsWeights)
	ok := createUser(t, db, "ok", 0, time.Now())
	drifted := createUser(t, db, "drifted", 0, time.Now())

	_, err := svc.AwardPoints(ok.ID, nil, 10, "quest:a")
	require.NoError(t, err)
	_, err = svc.AwardPoints(drifted.ID, nil, 10, "quest:a")
	require.NoError(t, err)
	// a direct write that bypasses the ledger
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", drifted.ID).UpdateColumn("total_points", 25).Error)

	drifts, err := svc.Reconcile()
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.Equal(t, drifted.ID, drifts[0].UserID)
	require.Equal(t, int64(15), drifts[0].Difference)
}
