package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"time"

	"community-points/logging"
	"community-points/models"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
)

// PointsStream pushes new ledger rows to a connected client as server-sent events.
type PointsStream struct {
	DB       *gorm.DB
	Interval time.Duration
}

func NewPointsStream(db *gorm.DB) *PointsStream {
	return &PointsStream{DB: db, Interval: 2 * time.Second}
}

// streamCursor is the last sent created_at plus the ids already sent at exactly that
// instant, so a row committed later with the same timestamp is still delivered.
type streamCursor struct {
	at   time.Time
	sent map[string]struct{}
}

func (c *streamCursor) advance(e models.PointsHistory) {
	if !e.CreatedAt.Equal(c.at) || c.sent == nil {
		c.at = e.CreatedAt
		c.sent = map[string]struct{}{}
	}
	c.sent[e.ID] = struct{}{}
}

// startCursor points past everything already in the user's ledger.
func (s *PointsStream) startCursor(userID string) (*streamCursor, error) {
	cur := &streamCursor{}
	var latest models.PointsHistory
	err := s.DB.Where("user_id = ?", userID).Order("created_at DESC").First(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cur, nil
	}
	if err != nil {
		return cur, err
	}
	var ids []string
	if err := s.DB.Model(&models.PointsHistory{}).
		Where("user_id = ? AND created_at = ?", userID, latest.CreatedAt).
		Pluck("id", &ids).Error; err != nil {
		return cur, err
	}
	cur.at = latest.CreatedAt
	cur.sent = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		cur.sent[id] = struct{}{}
	}
	return cur, nil
}

// poll returns the rows after cur in (created_at, id) order and advances cur past them.
func (s *PointsStream) poll(userID string, cur *streamCursor) ([]models.PointsHistory, error) {
	var rows []models.PointsHistory
	q := s.DB.Where("user_id = ?", userID)
	if !cur.at.IsZero() {
		q = q.Where("created_at >= ?", cur.at)
	}
	if err := q.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	fresh := rows[:0]
	for _, e := range rows {
		if _, seen := cur.sent[e.ID]; seen && e.CreatedAt.Equal(cur.at) {
			continue
		}
		fresh = append(fresh, e)
	}
	for _, e := range fresh {
		cur.advance(e)
	}
	return fresh, nil
}

// Run writes "points" events for userID until ctx ends or the client goes away.
func (s *PointsStream) Run(ctx context.Context, userID string, w *bufio.Writer) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	cursor, err := s.startCursor(userID)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("[SSE] init failed")
	}

	// comment line as keepalive
	_, _ = w.WriteString(":\n\n")
	if err := w.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries, err := s.poll(userID, cursor)
			if err != nil {
				logging.Warn().Err(err).Str("user_id", userID).Msg("[SSE] poll failed")
				continue
			}
			if len(entries) == 0 {
				_, _ = w.WriteString(":\n\n")
			}
			for _, e := range entries {
				payload, err := json.Marshal(e)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: points\nid: %s\ndata: %s\n\n", e.ID, payload)
			}
			if err := w.Flush(); err != nil {
				// client disconnected
				return
			}
		}
	}
}
