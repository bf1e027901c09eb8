package types

// IsValidRole checks a client-supplied role claim.
func IsValidRole(role string) bool {
	return role == RoleTherapist || role == RolePatient
}

// IsValidUsername bounds the display name carried in join payloads.
func IsValidUsername(username string) bool {
	return len(username) >= 1 && len(username) <= 80
}

// IsValidEventType reports whether the name is a known inbound event.
func IsValidEventType(eventType string) bool {
	switch eventType {
	case EventJoinSession,
		EventLeaveSession,
		EventTherapistQuestion,
		EventUpdateQuestionIndex,
		EventStartEmotionAnalysis,
		EventStopEmotionAnalysis,
		EventRealTimeEmotion,
		EventWebRTCOffer,
		EventWebRTCAnswer,
		EventWebRTCICECandidate,
		EventSessionCompleted:
		return true
	default:
		return false
	}
}

// StringField extracts a required string from an event payload.
func (e *Event) StringField(field string) (string, error) {
	v, ok := e.Data[field].(string)
	if !ok || v == "" {
		return "", &FieldError{Field: field}
	}
	return v, nil
}

// IntField extracts a required integer from an event payload. JSON numbers
// decode as float64, so both forms are accepted.
func (e *Event) IntField(field string) (int64, error) {
	switch v := e.Data[field].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, &FieldError{Field: field}
	}
}

// FloatField extracts a required number from an event payload.
func (e *Event) FloatField(field string) (float64, error) {
	switch v := e.Data[field].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, &FieldError{Field: field}
	}
}

// SessionCode extracts the room code every routed event must carry.
func (e *Event) SessionCode() (string, error) {
	return e.StringField("session_code")
}
