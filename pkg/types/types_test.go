package types

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestIsValidRole(t *testing.T) {
	if !IsValidRole(RoleTherapist) {
		t.Error("therapist should be a valid role")
	}
	if !IsValidRole(RolePatient) {
		t.Error("patient should be a valid role")
	}
	for _, role := range []string{"", "admin", "Therapist"} {
		if IsValidRole(role) {
			t.Errorf("Expected role %q to be invalid", role)
		}
	}
}

func TestIsValidUsername(t *testing.T) {
	if !IsValidUsername("maria") {
		t.Error("Expected 'maria' to be valid")
	}
	if IsValidUsername("") {
		t.Error("Expected empty username to be invalid")
	}
	long := make([]byte, 81)
	for i := range long {
		long[i] = 'a'
	}
	if IsValidUsername(string(long)) {
		t.Error("Expected 81-character username to be invalid")
	}
}

func TestIsValidEventType(t *testing.T) {
	valid := []string{
		EventJoinSession, EventLeaveSession, EventTherapistQuestion,
		EventUpdateQuestionIndex, EventStartEmotionAnalysis,
		EventStopEmotionAnalysis, EventRealTimeEmotion,
		EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCICECandidate,
		EventSessionCompleted,
	}
	for _, eventType := range valid {
		if !IsValidEventType(eventType) {
			t.Errorf("Expected %q to be valid", eventType)
		}
	}
	if IsValidEventType("user_joined") {
		t.Error("Outbound event names should not validate as inbound")
	}
	if IsValidEventType("") {
		t.Error("Empty event type should be invalid")
	}
}

func TestEvent_FieldExtraction(t *testing.T) {
	raw := `{"type":"start_emotion_analysis","data":{"session_code":"ABC12345","question_id":7,"duration":30,"confidence":0.92}}`
	var evt Event
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}

	code, err := evt.SessionCode()
	if err != nil {
		t.Fatalf("Expected session code, got error: %v", err)
	}
	if code != "ABC12345" {
		t.Errorf("Expected session code ABC12345, got %s", code)
	}

	id, err := evt.IntField("question_id")
	if err != nil || id != 7 {
		t.Errorf("Expected question_id 7, got %d (err=%v)", id, err)
	}

	conf, err := evt.FloatField("confidence")
	if err != nil || conf != 0.92 {
		t.Errorf("Expected confidence 0.92, got %f (err=%v)", conf, err)
	}

	_, err = evt.StringField("username")
	if err == nil {
		t.Fatal("Expected error for missing field")
	}
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) {
		t.Errorf("Expected FieldError, got %T", err)
	}
	if fieldErr.Field != "username" {
		t.Errorf("Expected field name in error, got %q", fieldErr.Field)
	}
}
