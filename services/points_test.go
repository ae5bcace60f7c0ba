package services

import (
	"testing"

	"community-points/config"

	"github.com/stretchr/testify/require"
)

func TestCalculateExample(t *testing.T) {
	got := DefaultPointsWeights.Calculate(EngagementCounts{Likes: 10, Retweets: 5, Replies: 3})
	require.Equal(t, int64(36), got) // 5 + 10 + 15 + 6
}

func TestCalculateBaseOnly(t *testing.T) {
	require.Equal(t, int64(5), DefaultPointsWeights.Calculate(EngagementCounts{}))
}

func TestCalculateClampsNegatives(t *testing.T) {
	got := DefaultPointsWeights.Calculate(EngagementCounts{Likes: -10, Retweets: 2, Replies: -1})
	require.Equal(t, int64(5+6), got)
}

func TestCalculateMonotonic(t *testing.T) {
	w := DefaultPointsWeights
	for likes := int64(0); likes < 20; likes += 3 {
		for retweets := int64(0); retweets < 20; retweets += 4 {
			for replies := int64(0); replies < 20; replies += 5 {
				base := EngagementCounts{Likes: likes, Retweets: retweets, Replies: replies}
				p := w.Calculate(base)

				require.GreaterOrEqual(t, w.Calculate(EngagementCounts{Likes: likes + 1, Retweets: retweets, Replies: replies}), p)
				require.GreaterOrEqual(t, w.Calculate(EngagementCounts{Likes: likes, Retweets: retweets + 1, Replies: replies}), p)
				require.GreaterOrEqual(t, w.Calculate(EngagementCounts{Likes: likes, Retweets: retweets, Replies: replies + 1}), p)
			}
		}
	}
}

func TestMergeKeepsHighWaterMarks(t *testing.T) {
	prev := EngagementCounts{Likes: 10, Retweets: 5, Replies: 3}
	merged := prev.Merge(EngagementCounts{Likes: 8, Retweets: 7, Replies: 3})
	require.Equal(t, EngagementCounts{Likes: 10, Retweets: 7, Replies: 3}, merged)
}

func TestWeightsFromConfig(t *testing.T) {
	w := WeightsFromConfig(config.PointsConfig{Base: 10, Like: 2, Retweet: -1, Reply: 4})
	require.Equal(t, PointsWeights{Base: 10, Like: 2, Retweet: 0, Reply: 4}, w)
}
