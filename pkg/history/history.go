// Package history persists chat turns per user and answers the two queries
// the chatbot needs: the most recent turns of a user and the per-day emotion
// distribution of what the user said.
//
// Turns are stored under ordered keys so both queries are prefix scans:
//
//	msg:{userID}:{unix_ns, 20 digits}:{uuid}  → msgpack record
//
// The uuid suffix keeps turns appended within the same nanosecond distinct.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/emochat/pkg/chat"
	"github.com/haivivi/emochat/pkg/emotion"
)

// ErrInvalidUser is returned for an empty user ID or one containing the key
// separator.
var ErrInvalidUser = errors.New("history: invalid user id")

// Store is the chat history used by the chatbot pipeline.
type Store interface {
	// Append stores one turn. A zero CreatedAt is set to the current time.
	Append(ctx context.Context, userID string, turn chat.Turn) error

	// Recent returns up to limit of the newest turns, oldest first.
	Recent(ctx context.Context, userID string, limit int) ([]chat.Turn, error)

	// EmotionStats counts the emotion labels of turns created within the
	// UTC calendar day containing day. Every known label is present in the
	// result, with zero when unseen.
	EmotionStats(ctx context.Context, userID string, day time.Time) (map[string]int, error)

	// Close releases any resources held by the store.
	Close() error
}

const sep = ':'

// record is the stored form of a turn.
type record struct {
	ID         string    `msgpack:"id"`
	Role       string    `msgpack:"role"`
	Content    string    `msgpack:"content"`
	Emotion    string    `msgpack:"emotion,omitempty"`
	Confidence *float64  `msgpack:"confidence,omitempty"`
	CreatedAt  time.Time `msgpack:"created_at"`
}

func (r *record) turn() chat.Turn {
	return chat.Turn{
		Role:       r.Role,
		Content:    r.Content,
		Emotion:    r.Emotion,
		Confidence: r.Confidence,
		CreatedAt:  r.CreatedAt,
	}
}

func checkUser(userID string) error {
	if userID == "" || strings.IndexByte(userID, sep) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidUser, userID)
	}
	return nil
}

// userPrefix returns "msg:{userID}:".
func userPrefix(userID string) []byte {
	return []byte("msg:" + userID + string(sep))
}

// timeKey returns "msg:{userID}:{ns}" without the id suffix. Keys of turns
// created at t sort at or after it.
func timeKey(userID string, t time.Time) []byte {
	ns := t.UnixNano()
	if ns < 0 {
		ns = 0
	}
	return fmt.Appendf(userPrefix(userID), "%020d", ns)
}

// encode builds the key and value for a new turn.
func encode(userID string, turn chat.Turn) (key, value []byte, err error) {
	if err := checkUser(userID); err != nil {
		return nil, nil, err
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	rec := record{
		ID:         uuid.NewString(),
		Role:       turn.Role,
		Content:    turn.Content,
		Emotion:    turn.Emotion,
		Confidence: turn.Confidence,
		CreatedAt:  turn.CreatedAt.UTC(),
	}
	value, err = msgpack.Marshal(&rec)
	if err != nil {
		return nil, nil, fmt.Errorf("history: encode record: %w", err)
	}
	key = append(timeKey(userID, rec.CreatedAt), sep)
	key = append(key, rec.ID...)
	return key, value, nil
}

func decode(value []byte) (chat.Turn, error) {
	var rec record
	if err := msgpack.Unmarshal(value, &rec); err != nil {
		return chat.Turn{}, fmt.Errorf("history: decode record: %w", err)
	}
	return rec.turn(), nil
}

// dayRange returns the [start, end) keys of the UTC day containing day.
func dayRange(userID string, day time.Time) (start, end []byte) {
	d := day.UTC()
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return timeKey(userID, from), timeKey(userID, from.AddDate(0, 0, 1))
}

// newStats returns a zero-filled count for every emotion label.
func newStats() map[string]int {
	stats := make(map[string]int, len(emotion.Labels))
	for _, l := range emotion.Labels {
		stats[string(l)] = 0
	}
	return stats
}

// count adds the emotion of turn to stats. Unknown labels are ignored.
func count(stats map[string]int, turn chat.Turn) {
	if l, ok := emotion.ParseLabel(turn.Emotion); ok {
		stats[string(l)]++
	}
}
