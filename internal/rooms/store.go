package rooms

import (
	"sync"
	"time"

	"therapymeet/internal/metrics"
	"therapymeet/pkg/types"
)

// Room is the in-memory coordination state for one session code. All methods
// take the room's own lock, so handlers touching the same room execute with
// mutual exclusion while different rooms proceed in parallel.
type Room struct {
	Code string

	mu           sync.Mutex
	participants []*types.Participant
	questionIdx  int
	analysis     *types.AnalysisData
}

// Join adds or replaces the participant for a username and returns the new
// participant count. Rejoining with the same username removes the prior entry
// first, so a reconnecting client's second role and connection win.
func (r *Room) Join(username, role, connectionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.participants[:0]
	for _, p := range r.participants {
		if p.Username != username {
			kept = append(kept, p)
		}
	}
	r.participants = append(kept, &types.Participant{
		Username:     username,
		Role:         role,
		ConnectionID: connectionID,
	})
	return len(r.participants)
}

// Leave removes the participant for a username.
func (r *Room) Leave(username string) (removed bool, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.participants[:0]
	for _, p := range r.participants {
		if p.Username == username {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	r.participants = kept
	return removed, len(r.participants)
}

// RemoveConnection removes the participant bound to a connection id, if any.
// Used for cleanup when a client disconnects without sending leave_session.
func (r *Room) RemoveConnection(connectionID string) (username string, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.participants[:0]
	for _, p := range r.participants {
		if p.ConnectionID == connectionID {
			username = p.Username
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	r.participants = kept
	return username, removed
}

// Participants returns a snapshot of the current participant list in join
// order.
func (r *Room) Participants() []types.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.Participant, len(r.participants))
	for i, p := range r.participants {
		out[i] = *p
	}
	return out
}

// ConnectionsByRole returns the connection ids of participants with a role.
func (r *Room) ConnectionsByRole(role string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for _, p := range r.participants {
		if p.Role == role {
			ids = append(ids, p.ConnectionID)
		}
	}
	return ids
}

// SetQuestionIndex moves the question cursor.
func (r *Room) SetQuestionIndex(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.questionIdx = index
}

// State reports the snapshot sent to a joining client.
func (r *Room) State() (questionIndex int, analyzing bool, participants int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.questionIdx, r.analysis != nil, len(r.participants)
}

// StartAnalysis opens an analysis window with an empty detection buffer.
// The analysis buffer is non-nil exactly while a window is open.
func (r *Room) StartAnalysis(questionID int64, duration int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.analysis = &types.AnalysisData{
		QuestionID:       questionID,
		Duration:         duration,
		StartTime:        time.Now().UTC(),
		EmotionsDetected: []types.EmotionSample{},
	}
}

// StopAnalysis closes the window and hands back the collected buffer.
func (r *Room) StopAnalysis() *types.AnalysisData {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := r.analysis
	r.analysis = nil
	return data
}

// AddSample appends a detection while a window is open. Samples outside a
// window are dropped.
func (r *Room) AddSample(emotion string, confidence float64, timestamp string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.analysis == nil {
		return ErrNotAnalyzing
	}
	r.analysis.EmotionsDetected = append(r.analysis.EmotionsDetected, types.EmotionSample{
		Emotion:    emotion,
		Confidence: confidence,
		Timestamp:  timestamp,
	})
	return nil
}

// Store is the process-wide table of rooms, keyed by session code. It is
// constructed once at startup and injected into the router; nothing else
// holds ambient room state.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewStore creates an empty room store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*Room)}
}

// GetOrCreate returns the room for a code, creating an empty one if absent.
// First join is the only creation path; there is no separate create call.
func (s *Store) GetOrCreate(code string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, exists := s.rooms[code]; exists {
		return room
	}
	room := &Room{Code: code}
	s.rooms[code] = room
	metrics.RoomsActive.Set(float64(len(s.rooms)))
	return room
}

// Get returns the room for a code or ErrRoomNotFound.
func (s *Store) Get(code string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, exists := s.rooms[code]
	if !exists {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Delete removes a room. Idempotent.
func (s *Store) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms, code)
	metrics.RoomsActive.Set(float64(len(s.rooms)))
}

// Count reports how many rooms are live.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
