package bot

import (
	"sync"

	"auto_wordpress_article_publisher/pipeline"
)

// runStore tracks, per chat, whether a topic is in flight and the last finished run.
type runStore struct {
	mu   sync.Mutex
	busy map[int64]bool
	last map[int64]*pipeline.Run
}

func newStore() *runStore {
	return &runStore{busy: make(map[int64]bool), last: make(map[int64]*pipeline.Run)}
}

// claim marks chatID busy; false means a run is already in flight.
func (s *runStore) claim(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[chatID] {
		return false
	}
	s.busy[chatID] = true
	return true
}

func (s *runStore) release(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, chatID)
}

func (s *runStore) finish(chatID int64, run *pipeline.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, chatID)
	if run != nil {
		s.last[chatID] = run
	}
}

func (s *runStore) get(chatID int64) (*pipeline.Run, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.last[chatID]
	return run, ok, s.busy[chatID]
}

// snapshot copies the last run of every chat.
func (s *runStore) snapshot() map[int64]*pipeline.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]*pipeline.Run, len(s.last))
	for id, r := range s.last {
		out[id] = r
	}
	return out
}
