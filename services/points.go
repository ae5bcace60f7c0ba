package services

import "community-points/config"

// PointsWeights: totalPoints = Base + likes*Like + retweets*Retweet + replies*Reply
type PointsWeights struct {
	Base    int64 `json:"base"`
	Like    int64 `json:"like"`
	Retweet int64 `json:"retweet"`
	Reply   int64 `json:"reply"`
}

var DefaultPointsWeights = PointsWeights{
	Base:    5,
	Like:    1,
	Retweet: 3,
	Reply:   2,
}

func WeightsFromConfig(cfg config.PointsConfig) PointsWeights {
	return PointsWeights{
		Base:    nonNegative(cfg.Base),
		Like:    nonNegative(cfg.Like),
		Retweet: nonNegative(cfg.Retweet),
		Reply:   nonNegative(cfg.Reply),
	}
}

type EngagementCounts struct {
	Likes    int64 `json:"likes"`
	Retweets int64 `json:"retweets"`
	Replies  int64 `json:"replies"`
}

// Calculate is monotonically non-decreasing in every count; negative counts count as zero.
func (w PointsWeights) Calculate(c EngagementCounts) int64 {
	return w.Base +
		nonNegative(c.Likes)*w.Like +
		nonNegative(c.Retweets)*w.Retweet +
		nonNegative(c.Replies)*w.Reply
}

// Merge keeps the higher of each count, so a stale or partial read never lowers a post.
func (c EngagementCounts) Merge(next EngagementCounts) EngagementCounts {
	return EngagementCounts{
		Likes:    max(c.Likes, next.Likes),
		Retweets: max(c.Retweets, next.Retweets),
		Replies:  max(c.Replies, next.Replies),
	}
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
