package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"therapymeet/internal/realtime"
	"therapymeet/internal/rooms"
	"therapymeet/pkg/types"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type testEnv struct {
	registry  *realtime.Registry
	store     *rooms.Store
	lifecycle *rooms.Lifecycle
	router    *Router
	server    *httptest.Server
	connCh    chan *realtime.Connection
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry := realtime.NewRegistry()
	store := rooms.NewStore()
	lifecycle := rooms.NewLifecycle(store, 30*time.Millisecond)
	env := &testEnv{
		registry:  registry,
		store:     store,
		lifecycle: lifecycle,
		router:    New(registry, store, lifecycle),
		connCh:    make(chan *realtime.Connection, 16),
	}

	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		conn := realtime.NewConnection(ws, 100, time.Second)
		if err := registry.Register(conn); err != nil {
			t.Errorf("Register failed: %v", err)
			return
		}
		env.connCh <- conn
	}))
	t.Cleanup(func() {
		env.lifecycle.Shutdown()
		env.server.Close()
	})
	return env
}

// testClient pairs the server-side connection with the browser side of the
// socket so tests can both inject events and observe broadcasts.
type testClient struct {
	ws     *websocket.Conn
	conn   *realtime.Connection
	events chan types.Event
}

func (env *testEnv) dial(t *testing.T) *testClient {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	var conn *realtime.Connection
	select {
	case conn = <-env.connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Server never saw the connection")
	}

	client := &testClient{ws: ws, conn: conn, events: make(chan types.Event, 64)}
	go func() {
		for {
			var evt types.Event
			if err := ws.ReadJSON(&evt); err != nil {
				close(client.events)
				return
			}
			client.events <- evt
		}
	}()
	t.Cleanup(func() { _ = ws.Close() })
	return client
}

func (c *testClient) expect(t *testing.T, eventType string) types.Event {
	t.Helper()
	for {
		select {
		case evt, ok := <-c.events:
			if !ok {
				t.Fatalf("Connection closed while waiting for %s", eventType)
			}
			if evt.Type == eventType {
				return evt
			}
			t.Fatalf("Expected %s, got %s", eventType, evt.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for %s", eventType)
		}
	}
}

func (c *testClient) expectNone(t *testing.T) {
	t.Helper()
	select {
	case evt, ok := <-c.events:
		if ok {
			t.Fatalf("Expected no event, got %s", evt.Type)
		}
	case <-time.After(150 * time.Millisecond):
	}
}

func (env *testEnv) join(t *testing.T, client *testClient, code, username, role string) {
	t.Helper()
	env.router.DispatchEvent(client.conn, &types.Event{
		Type: types.EventJoinSession,
		Data: map[string]any{
			"session_code": code,
			"username":     username,
			"user_role":    role,
		},
	})
	client.expect(t, types.EventUserJoined)
	client.expect(t, types.EventSessionStateUpdate)
}

func TestRouter_JoinBroadcastsAndSnapshot(t *testing.T) {
	env := newTestEnv(t)
	therapist := env.dial(t)

	env.router.DispatchEvent(therapist.conn, &types.Event{
		Type: types.EventJoinSession,
		Data: map[string]any{
			"session_code": "ABC12345",
			"username":     "dr-lopez",
			"user_role":    types.RoleTherapist,
		},
	})

	joined := therapist.expect(t, types.EventUserJoined)
	if joined.Data["username"] != "dr-lopez" || joined.Data["role"] != types.RoleTherapist {
		t.Errorf("Unexpected user_joined payload: %+v", joined.Data)
	}
	if joined.Data["participants_count"] != float64(1) {
		t.Errorf("Expected participants_count 1, got %v", joined.Data["participants_count"])
	}

	state := therapist.expect(t, types.EventSessionStateUpdate)
	if state.Data["current_question_index"] != float64(0) {
		t.Errorf("Expected question index 0, got %v", state.Data["current_question_index"])
	}
	if state.Data["is_analyzing"] != false {
		t.Errorf("Expected is_analyzing false, got %v", state.Data["is_analyzing"])
	}

	// Second participant: both see user_joined, only the joiner sees state.
	patient := env.dial(t)
	env.router.DispatchEvent(patient.conn, &types.Event{
		Type: types.EventJoinSession,
		Data: map[string]any{
			"session_code": "ABC12345",
			"username":     "ana",
			"user_role":    types.RolePatient,
		},
	})
	second := therapist.expect(t, types.EventUserJoined)
	if second.Data["participants_count"] != float64(2) {
		t.Errorf("Expected participants_count 2, got %v", second.Data["participants_count"])
	}
	patient.expect(t, types.EventUserJoined)
	patientState := patient.expect(t, types.EventSessionStateUpdate)
	if patientState.Data["participants_count"] != float64(2) {
		t.Errorf("Expected snapshot with 2 participants, got %v", patientState.Data["participants_count"])
	}
	therapist.expectNone(t)
}

func TestRouter_RejoinReplacesParticipant(t *testing.T) {
	env := newTestEnv(t)

	first := env.dial(t)
	env.join(t, first, "ABC12345", "ana", types.RolePatient)

	second := env.dial(t)
	env.router.DispatchEvent(second.conn, &types.Event{
		Type: types.EventJoinSession,
		Data: map[string]any{
			"session_code": "ABC12345",
			"username":     "ana",
			"user_role":    types.RoleTherapist,
		},
	})
	joined := second.expect(t, types.EventUserJoined)
	if joined.Data["participants_count"] != float64(1) {
		t.Errorf("Expected rejoin to keep 1 participant, got %v", joined.Data["participants_count"])
	}
	second.expect(t, types.EventSessionStateUpdate)

	room, err := env.store.Get("ABC12345")
	if err != nil {
		t.Fatalf("Room missing: %v", err)
	}
	participants := room.Participants()
	if len(participants) != 1 {
		t.Fatalf("Expected exactly one participant, got %d", len(participants))
	}
	if participants[0].Role != types.RoleTherapist || participants[0].ConnectionID != second.conn.ID() {
		t.Errorf("Second join should win: %+v", participants[0])
	}
}

func TestRouter_SignalingExcludesSender(t *testing.T) {
	env := newTestEnv(t)

	therapist := env.dial(t)
	env.join(t, therapist, "ABC12345", "dr-lopez", types.RoleTherapist)
	patient := env.dial(t)
	env.join(t, patient, "ABC12345", "ana", types.RolePatient)
	therapist.expect(t, types.EventUserJoined) // ana joining

	offer := map[string]any{
		"session_code": "ABC12345",
		"sdp":          map[string]any{"type": "offer", "sdp": "v=0\r\no=- 46117 2 IN IP4 127.0.0.1"},
	}
	env.router.DispatchEvent(therapist.conn, &types.Event{Type: types.EventWebRTCOffer, Data: offer})

	relayed := patient.expect(t, types.EventWebRTCOffer)
	sdp, ok := relayed.Data["sdp"].(map[string]any)
	if !ok || sdp["type"] != "offer" {
		t.Errorf("Payload not relayed verbatim: %+v", relayed.Data)
	}
	therapist.expectNone(t)
}

func TestRouter_AnalysisGating(t *testing.T) {
	env := newTestEnv(t)

	therapist := env.dial(t)
	env.join(t, therapist, "ABC12345", "dr-lopez", types.RoleTherapist)
	patient := env.dial(t)
	env.join(t, patient, "ABC12345", "ana", types.RolePatient)
	therapist.expect(t, types.EventUserJoined)

	// No window open: sample produces no mutation and no relay.
	env.router.DispatchEvent(patient.conn, &types.Event{
		Type: types.EventRealTimeEmotion,
		Data: map[string]any{"session_code": "ABC12345", "emotion": "happy", "confidence": 0.9},
	})
	therapist.expectNone(t)

	env.router.DispatchEvent(therapist.conn, &types.Event{
		Type: types.EventStartEmotionAnalysis,
		Data: map[string]any{"session_code": "ABC12345", "question_id": 7, "duration": 30},
	})
	therapist.expect(t, types.EventAnalysisStarted)
	patient.expect(t, types.EventAnalysisStarted)

	env.router.DispatchEvent(patient.conn, &types.Event{
		Type: types.EventRealTimeEmotion,
		Data: map[string]any{"session_code": "ABC12345", "emotion": "happy", "confidence": 0.9},
	})
	relay := therapist.expect(t, types.EventRealTimeEmotion)
	if relay.Data["emotion"] != "happy" || relay.Data["confidence"] != float64(0.9) {
		t.Errorf("Unexpected relay payload: %+v", relay.Data)
	}
	// Patients never receive emotion relays.
	patient.expectNone(t)

	room, _ := env.store.Get("ABC12345")
	if _, analyzing, _ := room.State(); !analyzing {
		t.Error("Expected analysis window open")
	}
}

func TestRouter_TeardownFinality(t *testing.T) {
	env := newTestEnv(t)

	therapist := env.dial(t)
	env.join(t, therapist, "ABC12345", "dr-lopez", types.RoleTherapist)
	patient := env.dial(t)
	env.join(t, patient, "ABC12345", "ana", types.RolePatient)
	therapist.expect(t, types.EventUserJoined)

	env.router.DispatchEvent(therapist.conn, &types.Event{
		Type: types.EventSessionCompleted,
		Data: map[string]any{"session_code": "ABC12345"},
	})

	therapist.expect(t, types.EventSessionCompleted)
	patient.expect(t, types.EventSessionCompleted)

	// Room gone immediately after the completion broadcast.
	if _, err := env.store.Get("ABC12345"); err != rooms.ErrRoomNotFound {
		t.Errorf("Expected room deleted, got %v", err)
	}

	// Delayed force_disconnect still reaches both members.
	therapist.expect(t, types.EventForceDisconnect)
	patient.expect(t, types.EventForceDisconnect)

	if _, err := env.store.Get("ABC12345"); err != rooms.ErrRoomNotFound {
		t.Error("force_disconnect must not resurrect the room")
	}
}

func TestRouter_QuestionIndexSequence(t *testing.T) {
	env := newTestEnv(t)

	therapist := env.dial(t)
	env.join(t, therapist, "ABC12345", "dr-lopez", types.RoleTherapist)

	for _, index := range []int{0, 1, 1, 2} {
		env.router.DispatchEvent(therapist.conn, &types.Event{
			Type: types.EventUpdateQuestionIndex,
			Data: map[string]any{"session_code": "ABC12345", "question_index": index},
		})
	}

	for _, want := range []float64{0, 1, 1, 2} {
		evt := therapist.expect(t, types.EventQuestionIndexUpdated)
		if evt.Data["question_index"] != want {
			t.Errorf("Expected index %v, got %v", want, evt.Data["question_index"])
		}
	}

	room, _ := env.store.Get("ABC12345")
	index, _, _ := room.State()
	if index != 2 {
		t.Errorf("Expected cursor at 2, got %d", index)
	}
}

func TestRouter_TherapistQuestionRelay(t *testing.T) {
	env := newTestEnv(t)

	therapist := env.dial(t)
	env.join(t, therapist, "ABC12345", "dr-lopez", types.RoleTherapist)
	patient := env.dial(t)
	env.join(t, patient, "ABC12345", "ana", types.RolePatient)
	therapist.expect(t, types.EventUserJoined)

	env.router.DispatchEvent(therapist.conn, &types.Event{
		Type: types.EventTherapistQuestion,
		Data: map[string]any{
			"session_code":  "ABC12345",
			"question_text": "How did that make you feel?",
			"question_id":   3,
			"timestamp":     "2026-08-31T10:00:00Z",
		},
	})

	q := patient.expect(t, types.EventNewQuestion)
	if q.Data["question_text"] != "How did that make you feel?" {
		t.Errorf("Unexpected question text: %v", q.Data["question_text"])
	}
	if q.Data["question_id"] != float64(3) {
		t.Errorf("Unexpected question id: %v", q.Data["question_id"])
	}
	therapist.expect(t, types.EventNewQuestion)
}

func TestRouter_LeaveSession(t *testing.T) {
	env := newTestEnv(t)

	therapist := env.dial(t)
	env.join(t, therapist, "ABC12345", "dr-lopez", types.RoleTherapist)
	patient := env.dial(t)
	env.join(t, patient, "ABC12345", "ana", types.RolePatient)
	therapist.expect(t, types.EventUserJoined)

	env.router.DispatchEvent(patient.conn, &types.Event{
		Type: types.EventLeaveSession,
		Data: map[string]any{"session_code": "ABC12345", "username": "ana"},
	})

	left := therapist.expect(t, types.EventUserLeft)
	if left.Data["username"] != "ana" {
		t.Errorf("Unexpected user_left payload: %+v", left.Data)
	}
	// The leaver is out of the member set before the broadcast.
	patient.expectNone(t)

	room, _ := env.store.Get("ABC12345")
	if len(room.Participants()) != 1 {
		t.Errorf("Expected 1 participant after leave, got %d", len(room.Participants()))
	}
}

func TestRouter_DisconnectCleansEveryRoom(t *testing.T) {
	env := newTestEnv(t)

	therapist := env.dial(t)
	env.join(t, therapist, "ABC12345", "dr-lopez", types.RoleTherapist)
	patient := env.dial(t)
	env.join(t, patient, "ABC12345", "ana", types.RolePatient)
	therapist.expect(t, types.EventUserJoined)

	// Tab closed without leave_session.
	env.router.Disconnected(patient.conn)

	left := therapist.expect(t, types.EventUserLeft)
	if left.Data["username"] != "ana" {
		t.Errorf("Expected ana cleaned up, got %+v", left.Data)
	}
	room, _ := env.store.Get("ABC12345")
	if len(room.Participants()) != 1 {
		t.Errorf("Expected stale participant removed, got %d", len(room.Participants()))
	}

	// Deregistration is idempotent.
	env.router.Disconnected(patient.conn)
	therapist.expectNone(t)
}

func TestRouter_UnknownRoomIsSilentNoOp(t *testing.T) {
	env := newTestEnv(t)
	client := env.dial(t)

	env.router.DispatchEvent(client.conn, &types.Event{
		Type: types.EventUpdateQuestionIndex,
		Data: map[string]any{"session_code": "GHOST123", "question_index": 5},
	})
	env.router.DispatchEvent(client.conn, &types.Event{
		Type: types.EventStartEmotionAnalysis,
		Data: map[string]any{"session_code": "GHOST123", "question_id": 1, "duration": 10},
	})

	// No room created, no error back to the sender.
	if env.store.Count() != 0 {
		t.Errorf("Expected no rooms, got %d", env.store.Count())
	}
	client.expectNone(t)
}

func TestRouter_MalformedPayloadFailsAlone(t *testing.T) {
	env := newTestEnv(t)
	client := env.dial(t)

	// join without username: dropped.
	env.router.DispatchEvent(client.conn, &types.Event{
		Type: types.EventJoinSession,
		Data: map[string]any{"session_code": "ABC12345", "user_role": types.RolePatient},
	})
	client.expectNone(t)
	if env.store.Count() != 0 {
		t.Error("Malformed join must not create a room")
	}

	// The connection keeps working afterwards.
	env.join(t, client, "ABC12345", "ana", types.RolePatient)
}

func TestRouter_EndToEndScenario(t *testing.T) {
	env := newTestEnv(t)

	therapist := env.dial(t)
	env.join(t, therapist, "ABC12345", "dr-lopez", types.RoleTherapist)
	patient := env.dial(t)
	env.join(t, patient, "ABC12345", "ana", types.RolePatient)
	therapist.expect(t, types.EventUserJoined)

	env.router.DispatchEvent(therapist.conn, &types.Event{
		Type: types.EventStartEmotionAnalysis,
		Data: map[string]any{"session_code": "ABC12345", "question_id": 1, "duration": 30},
	})
	therapist.expect(t, types.EventAnalysisStarted)
	patient.expect(t, types.EventAnalysisStarted)

	emotions := []string{"happy", "neutral", "happy", "surprised", "happy"}
	for _, emotion := range emotions {
		env.router.DispatchEvent(patient.conn, &types.Event{
			Type: types.EventRealTimeEmotion,
			Data: map[string]any{"session_code": "ABC12345", "emotion": emotion, "confidence": 0.8},
		})
	}
	for i, want := range emotions {
		relay := therapist.expect(t, types.EventRealTimeEmotion)
		if relay.Data["emotion"] != want {
			t.Errorf("Relay %d: expected %s, got %v", i, want, relay.Data["emotion"])
		}
	}

	env.router.DispatchEvent(therapist.conn, &types.Event{
		Type: types.EventStopEmotionAnalysis,
		Data: map[string]any{
			"session_code":    "ABC12345",
			"question_id":     1,
			"emotion_summary": map[string]any{"dominant_emotion": "happy"},
		},
	})

	completed := therapist.expect(t, types.EventAnalysisCompleted)
	summary, ok := completed.Data["emotion_summary"].(map[string]any)
	if !ok || summary["dominant_emotion"] != "happy" {
		t.Errorf("Summary not relayed verbatim: %+v", completed.Data)
	}
	patient.expect(t, types.EventAnalysisCompleted)

	// Exactly 5 relays and 1 completion: nothing further pending.
	therapist.expectNone(t)
}
