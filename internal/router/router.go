package router

import (
	"fmt"
	"log"
	"sync"
	"time"

	"therapymeet/internal/metrics"
	"therapymeet/internal/realtime"
	"therapymeet/internal/rooms"
	"therapymeet/pkg/types"
)

// Router dispatches inbound realtime events to exactly one handler per type.
// Handlers mutate room state under the room's lock and then broadcast; each
// recipient observes broadcasts in the order they were committed because
// every connection drains a single ordered write queue.
//
// Unknown room codes never produce a protocol error: state mutation no-ops
// (surfaced internally as rooms.ErrRoomNotFound) while broadcasts still run
// against the registry's member set, which is empty for unknown codes.
type Router struct {
	registry  *realtime.Registry
	store     *rooms.Store
	lifecycle *rooms.Lifecycle

	// Per-code locks serialize whole handlers for one room while letting
	// different rooms proceed in parallel.
	codeLocks sync.Map // session code -> *sync.Mutex
}

// New creates the event router.
func New(registry *realtime.Registry, store *rooms.Store, lifecycle *rooms.Lifecycle) *Router {
	return &Router{
		registry:  registry,
		store:     store,
		lifecycle: lifecycle,
	}
}

// DispatchEvent implements realtime.EventSink. Malformed payloads fail that
// single event; nothing is reported back to the sender.
func (r *Router) DispatchEvent(conn *realtime.Connection, evt *types.Event) {
	if !types.IsValidEventType(evt.Type) {
		log.Printf("Unknown event type %q from %s", evt.Type, conn.ID())
		return
	}
	metrics.EventsRouted.WithLabelValues(evt.Type).Inc()

	// Serialize per room: two events for the same code never interleave, so
	// no handler observes another's intermediate state. The delayed
	// force_disconnect timer runs outside this lock.
	if code, ok := evt.Data["session_code"].(string); ok && code != "" {
		unlock := r.lockCode(code)
		defer unlock()
	}

	var err error
	switch evt.Type {
	case types.EventJoinSession:
		err = r.handleJoinSession(conn, evt)
	case types.EventLeaveSession:
		err = r.handleLeaveSession(conn, evt)
	case types.EventTherapistQuestion:
		err = r.handleTherapistQuestion(conn, evt)
	case types.EventUpdateQuestionIndex:
		err = r.handleUpdateQuestionIndex(conn, evt)
	case types.EventStartEmotionAnalysis:
		err = r.handleStartAnalysis(conn, evt)
	case types.EventStopEmotionAnalysis:
		err = r.handleStopAnalysis(conn, evt)
	case types.EventRealTimeEmotion:
		err = r.handleRealTimeEmotion(conn, evt)
	case types.EventWebRTCOffer, types.EventWebRTCAnswer, types.EventWebRTCICECandidate:
		err = r.handleSignaling(conn, evt)
	case types.EventSessionCompleted:
		err = r.handleSessionCompleted(conn, evt)
	}
	if err != nil {
		metrics.EventErrors.WithLabelValues(evt.Type).Inc()
		log.Printf("Event %s from %s dropped: %v", evt.Type, conn.ID(), err)
	}
}

func (r *Router) lockCode(code string) func() {
	v, _ := r.codeLocks.LoadOrStore(code, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Disconnected implements realtime.EventSink. A client that closes its tab
// without leave_session is cleaned out of every room it joined, and the
// remaining members are told it left.
func (r *Router) Disconnected(conn *realtime.Connection) {
	codes := r.registry.Deregister(conn.ID())
	for _, code := range codes {
		room, err := r.store.Get(code)
		if err != nil {
			continue
		}
		username, removed := room.RemoveConnection(conn.ID())
		if !removed {
			continue
		}
		r.broadcastRoom(code, &types.Event{
			Type: types.EventUserLeft,
			Data: map[string]any{
				"username": username,
				"message":  fmt.Sprintf("%s left the session", username),
			},
		})
	}
}

func (r *Router) handleJoinSession(conn *realtime.Connection, evt *types.Event) error {
	code, err := evt.SessionCode()
	if err != nil {
		return err
	}
	username, err := evt.StringField("username")
	if err != nil {
		return err
	}
	role, err := evt.StringField("user_role")
	if err != nil {
		return err
	}
	if !types.IsValidUsername(username) {
		return types.ErrInvalidUsername
	}
	if !types.IsValidRole(role) {
		return types.ErrInvalidRole
	}

	r.registry.JoinRoom(code, conn.ID())
	room := r.store.GetOrCreate(code)
	count := room.Join(username, role, conn.ID())
	log.Printf("User %s (%s) joined session %s", username, role, code)

	r.broadcastRoom(code, &types.Event{
		Type: types.EventUserJoined,
		Data: map[string]any{
			"username":           username,
			"role":               role,
			"message":            fmt.Sprintf("%s (%s) joined the session", username, role),
			"participants_count": count,
		},
	})

	questionIndex, analyzing, participants := room.State()
	r.sendTo(conn.ID(), &types.Event{
		Type: types.EventSessionStateUpdate,
		Data: map[string]any{
			"current_question_index": questionIndex,
			"is_analyzing":           analyzing,
			"participants_count":     participants,
		},
	})
	return nil
}

func (r *Router) handleLeaveSession(conn *realtime.Connection, evt *types.Event) error {
	code, err := evt.SessionCode()
	if err != nil {
		return err
	}
	username, err := evt.StringField("username")
	if err != nil {
		return err
	}

	r.registry.LeaveRoom(code, conn.ID())
	if room, err := r.store.Get(code); err == nil {
		room.Leave(username)
	}

	r.broadcastRoom(code, &types.Event{
		Type: types.EventUserLeft,
		Data: map[string]any{
			"username": username,
			"message":  fmt.Sprintf("%s left the session", username),
		},
	})
	return nil
}

func (r *Router) handleTherapistQuestion(conn *realtime.Connection, evt *types.Event) error {
	code, err := evt.SessionCode()
	if err != nil {
		return err
	}
	questionText, err := evt.StringField("question_text")
	if err != nil {
		return err
	}
	questionID, err := evt.IntField("question_id")
	if err != nil {
		return err
	}

	// Transient: nothing recorded on the room, the question is already
	// persisted through the HTTP layer.
	r.broadcastRoom(code, &types.Event{
		Type: types.EventNewQuestion,
		Data: map[string]any{
			"question_text": questionText,
			"question_id":   questionID,
			"timestamp":     evt.Data["timestamp"],
		},
	})
	return nil
}

func (r *Router) handleUpdateQuestionIndex(conn *realtime.Connection, evt *types.Event) error {
	code, err := evt.SessionCode()
	if err != nil {
		return err
	}
	index, err := evt.IntField("question_index")
	if err != nil {
		return err
	}

	if room, err := r.store.Get(code); err == nil {
		room.SetQuestionIndex(int(index))
	}

	r.broadcastRoom(code, &types.Event{
		Type: types.EventQuestionIndexUpdated,
		Data: map[string]any{
			"question_index": index,
		},
	})
	return nil
}

func (r *Router) handleStartAnalysis(conn *realtime.Connection, evt *types.Event) error {
	code, err := evt.SessionCode()
	if err != nil {
		return err
	}
	questionID, err := evt.IntField("question_id")
	if err != nil {
		return err
	}
	duration, err := evt.IntField("duration")
	if err != nil {
		return err
	}

	if err := r.lifecycle.StartAnalysis(code, questionID, int(duration)); err != nil && err != rooms.ErrRoomNotFound {
		return err
	}

	r.broadcastRoom(code, &types.Event{
		Type: types.EventAnalysisStarted,
		Data: map[string]any{
			"question_id": questionID,
			"duration":    duration,
			"message":     "Starting emotion analysis...",
		},
	})
	return nil
}

func (r *Router) handleStopAnalysis(conn *realtime.Connection, evt *types.Event) error {
	code, err := evt.SessionCode()
	if err != nil {
		return err
	}
	questionID, err := evt.IntField("question_id")
	if err != nil {
		return err
	}

	summary, ok := evt.Data["emotion_summary"]
	if !ok {
		summary = map[string]any{}
	}

	if _, err := r.lifecycle.StopAnalysis(code); err != nil && err != rooms.ErrRoomNotFound {
		return err
	}

	// The summary is relayed as the caller supplied it; the durable,
	// server-computed summary is produced by the continuous-emotion HTTP
	// endpoint from the raw samples.
	r.broadcastRoom(code, &types.Event{
		Type: types.EventAnalysisCompleted,
		Data: map[string]any{
			"question_id":     questionID,
			"emotion_summary": summary,
			"message":         "Emotion analysis completed",
		},
	})
	return nil
}

func (r *Router) handleRealTimeEmotion(conn *realtime.Connection, evt *types.Event) error {
	code, err := evt.SessionCode()
	if err != nil {
		return err
	}
	emotion, err := evt.StringField("emotion")
	if err != nil {
		return err
	}
	confidence, err := evt.FloatField("confidence")
	if err != nil {
		return err
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	if err := r.lifecycle.RecordEmotion(code, emotion, confidence, timestamp); err != nil {
		// Samples outside an analysis window, or for an unknown room, are
		// dropped without error to the sender and without any relay.
		return nil
	}

	room, err := r.store.Get(code)
	if err != nil {
		return nil
	}
	relay := &types.Event{
		Type: types.EventRealTimeEmotion,
		Data: map[string]any{
			"emotion":    emotion,
			"confidence": confidence,
			"timestamp":  timestamp,
		},
	}
	for _, connID := range room.ConnectionsByRole(types.RoleTherapist) {
		r.sendTo(connID, relay)
	}
	return nil
}

// handleSignaling relays the three webrtc_* events to everyone else in the
// room. The payload is opaque: it is forwarded verbatim, never inspected.
func (r *Router) handleSignaling(conn *realtime.Connection, evt *types.Event) error {
	code, err := evt.SessionCode()
	if err != nil {
		return err
	}

	r.broadcastExcept(code, conn.ID(), &types.Event{
		Type: evt.Type,
		Data: evt.Data,
	})
	return nil
}

func (r *Router) handleSessionCompleted(conn *realtime.Connection, evt *types.Event) error {
	code, err := evt.SessionCode()
	if err != nil {
		return err
	}

	r.lifecycle.Complete(code, func() {
		r.broadcastRoom(code, &types.Event{
			Type: types.EventForceDisconnect,
			Data: map[string]any{
				"message": "Session ended. You will be redirected automatically.",
			},
		})
	})

	r.broadcastRoom(code, &types.Event{
		Type: types.EventSessionCompleted,
		Data: map[string]any{
			"message": "The session has been completed by the therapist",
		},
	})
	log.Printf("Session %s completed, room torn down", code)
	return nil
}

// broadcastRoom delivers an event to every connection that joined a code.
// Delivery failure to one recipient deregisters that connection and never
// aborts delivery to the rest.
func (r *Router) broadcastRoom(code string, evt *types.Event) {
	for _, conn := range r.registry.RoomConnections(code) {
		r.deliver(conn, evt)
	}
}

// broadcastExcept is broadcastRoom minus the sender.
func (r *Router) broadcastExcept(code, senderID string, evt *types.Event) {
	for _, conn := range r.registry.RoomConnections(code) {
		if conn.ID() == senderID {
			continue
		}
		r.deliver(conn, evt)
	}
}

// sendTo delivers to a single connection id, if still registered.
func (r *Router) sendTo(connID string, evt *types.Event) {
	if conn, ok := r.registry.Get(connID); ok {
		r.deliver(conn, evt)
	}
}

func (r *Router) deliver(conn *realtime.Connection, evt *types.Event) {
	if err := conn.WriteEvent(evt); err != nil {
		log.Printf("Failed to deliver %s to %s, dropping connection: %v", evt.Type, conn.ID(), err)
		_ = conn.Close()
		r.Disconnected(conn)
		return
	}
	metrics.BroadcastsDelivered.Inc()
}
