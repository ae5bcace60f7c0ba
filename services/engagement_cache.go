package services

import (
	"errors"
	"strings"
	"time"

	"community-points/config"
	"community-points/logging"
	"community-points/metrics"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// EngagementCache is an in-memory TTL cache in front of the fetch chain.
type EngagementCache struct {
	db         *badger.DB
	postTTL    time.Duration
	profileTTL time.Duration
}

func OpenEngagementCache(cfg config.CacheConfig) (*EngagementCache, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil).
		WithMemTableSize(16 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &EngagementCache{db: db, postTTL: cfg.EngagementTTL, profileTTL: cfg.ProfileTTL}, nil
}

func (c *EngagementCache) Close() error {
	return c.db.Close()
}

func postKey(id string, countsOnly bool) string {
	if countsOnly {
		return "engagement:" + id
	}
	return "post:" + id
}

// GetPost looks up a full post first; a counts-only lookup also accepts a counts entry.
func (c *EngagementCache) GetPost(id string, countsOnly bool) (*PostData, bool) {
	var data PostData
	if c.get(postKey(id, false), &data) {
		metrics.EngagementCacheHits.WithLabelValues("post").Inc()
		return &data, true
	}
	if countsOnly && c.get(postKey(id, true), &data) {
		metrics.EngagementCacheHits.WithLabelValues("engagement").Inc()
		return &data, true
	}
	metrics.EngagementCacheMisses.WithLabelValues("post").Inc()
	return nil, false
}

func (c *EngagementCache) PutPost(id string, data *PostData, countsOnly bool) {
	c.put(postKey(id, countsOnly), data, c.postTTL)
}

func (c *EngagementCache) GetProfile(username string) (*ProfileData, bool) {
	var p ProfileData
	if c.get("profile:"+strings.ToLower(username), &p) {
		metrics.EngagementCacheHits.WithLabelValues("profile").Inc()
		return &p, true
	}
	metrics.EngagementCacheMisses.WithLabelValues("profile").Inc()
	return nil, false
}

func (c *EngagementCache) PutProfile(username string, p *ProfileData) {
	c.put("profile:"+strings.ToLower(username), p, c.profileTTL)
}

func (c *EngagementCache) get(key string, dst any) bool {
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dst)
		})
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		logging.Warn().Err(err).Str("key", key).Msg("[CACHE] read failed")
	}
	return err == nil
}

func (c *EngagementCache) put(key string, v any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	val, err := json.Marshal(v)
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("[CACHE] encode failed")
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), val).WithTTL(ttl))
	})
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("[CACHE] write failed")
	}
}
