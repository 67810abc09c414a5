package history

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/haivivi/emochat/pkg/chat"
)

// Memory is an in-memory Store. It is safe for concurrent use and intended
// for tests and single-process demos.
type Memory struct {
	mu   sync.RWMutex
	keys [][]byte // sorted
	data map[string][]byte
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Append(_ context.Context, userID string, turn chat.Turn) error {
	key, value, err := encode(userID, turn)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i, found := slices.BinarySearchFunc(m.keys, key, bytes.Compare)
	if !found {
		m.keys = slices.Insert(m.keys, i, key)
	}
	m.data[string(key)] = value
	return nil
}

func (m *Memory) Recent(_ context.Context, userID string, limit int) ([]chat.Turn, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	prefix := userPrefix(userID)

	m.mu.RLock()
	defer m.mu.RUnlock()
	// The last key with the prefix sorts just before prefix+0xff.
	end, _ := slices.BinarySearchFunc(m.keys, append(prefix, 0xff), bytes.Compare)
	var turns []chat.Turn
	for i := end - 1; i >= 0 && len(turns) < limit; i-- {
		k := m.keys[i]
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		t, err := decode(m.data[string(k)])
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	slices.Reverse(turns)
	return turns, nil
}

func (m *Memory) EmotionStats(_ context.Context, userID string, day time.Time) (map[string]int, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	start, end := dayRange(userID, day)
	stats := newStats()

	m.mu.RLock()
	defer m.mu.RUnlock()
	i, _ := slices.BinarySearchFunc(m.keys, start, bytes.Compare)
	for ; i < len(m.keys) && bytes.Compare(m.keys[i], end) < 0; i++ {
		t, err := decode(m.data[string(m.keys[i])])
		if err != nil {
			return nil, err
		}
		count(stats, t)
	}
	return stats, nil
}

// Len returns the number of stored turns across all users.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

func (m *Memory) Close() error { return nil }
