package types

import (
	"time"
)

// Roles carried in join payloads and persisted on users.
const (
	RoleTherapist = "therapist"
	RolePatient   = "patient"
)

// Inbound event names. These names and their payload field casing are a
// public contract consumed by browser clients and must not change.
const (
	EventJoinSession          = "join_session"
	EventLeaveSession         = "leave_session"
	EventTherapistQuestion    = "therapist_question"
	EventUpdateQuestionIndex  = "update_question_index"
	EventStartEmotionAnalysis = "start_emotion_analysis"
	EventStopEmotionAnalysis  = "stop_emotion_analysis"
	EventRealTimeEmotion      = "real_time_emotion"
	EventWebRTCOffer          = "webrtc_offer"
	EventWebRTCAnswer         = "webrtc_answer"
	EventWebRTCICECandidate   = "webrtc_ice_candidate"
	EventSessionCompleted     = "session_completed"
)

// Outbound event names.
const (
	EventConnected            = "connected"
	EventUserJoined           = "user_joined"
	EventSessionStateUpdate   = "session_state_update"
	EventUserLeft             = "user_left"
	EventNewQuestion          = "new_question"
	EventQuestionIndexUpdated = "question_index_updated"
	EventAnalysisStarted      = "emotion_analysis_started"
	EventAnalysisCompleted    = "emotion_analysis_completed"
	EventForceDisconnect      = "force_disconnect"
)

// Session status values, mirrored in the sessions table.
const (
	SessionStatusWaiting   = "waiting"
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
)

// Event is one frame on the realtime channel: a name plus a JSON object
// payload. Data stays a map so the WebRTC signaling events can be relayed
// verbatim without the router interpreting their contents.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Participant is one joined identity inside a room. ConnectionID refers to a
// currently live connection; stale entries are removed on disconnect.
type Participant struct {
	Username     string `json:"username"`
	Role         string `json:"role"`
	ConnectionID string `json:"-"`
}

// EmotionSample is one detection appended while an analysis window is open.
type EmotionSample struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
}

// AnalysisData is the transient per-question buffer collected between
// start_emotion_analysis and stop_emotion_analysis. It is handed to the
// client on stop; durable summaries are written through the HTTP layer.
type AnalysisData struct {
	QuestionID       int64           `json:"question_id"`
	Duration         int             `json:"duration"`
	StartTime        time.Time       `json:"start_time"`
	EmotionsDetected []EmotionSample `json:"emotions_detected"`
}

// User is a registered account.
type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Session is the persisted record of one therapy session. Therapist and
// Patient carry usernames resolved by join queries for API responses.
type Session struct {
	ID            string     `json:"id" db:"id"`
	TherapistID   string     `json:"therapist_id" db:"therapist_id"`
	PatientID     *string    `json:"patient_id" db:"patient_id"`
	SessionCode   string     `json:"session_code" db:"session_code"`
	Status        string     `json:"status" db:"status"`
	DateCreated   time.Time  `json:"date_created" db:"date_created"`
	DateStarted   *time.Time `json:"date_started" db:"date_started"`
	DateCompleted *time.Time `json:"date_completed" db:"date_completed"`
	Notes         string     `json:"notes" db:"notes"`
	Therapist     string     `json:"therapist,omitempty"`
	Patient       string     `json:"patient,omitempty"`
}

// Question is one therapist question within a session.
type Question struct {
	ID              string           `json:"id" db:"id"`
	SessionID       string           `json:"session_id" db:"session_id"`
	Text            string           `json:"text" db:"text"`
	OrderNum        int              `json:"order_num" db:"order_num"`
	Timestamp       time.Time        `json:"timestamp" db:"timestamp"`
	EmotionAnalysis *EmotionAnalysis `json:"emotion_analysis,omitempty"`
}

// EmotionAnalysis is the durable per-question summary computed from the raw
// samples a client submits after an analysis window closes.
type EmotionAnalysis struct {
	ID                 string          `json:"id" db:"id"`
	QuestionID         string          `json:"question_id" db:"question_id"`
	DominantEmotion    string          `json:"dominant_emotion" db:"dominant_emotion"`
	DominantPercentage float64         `json:"dominant_percentage" db:"dominant_percentage"`
	AvgConfidence      float64         `json:"avg_confidence" db:"avg_confidence"`
	TotalDetections    int             `json:"total_detections" db:"total_detections"`
	EmotionCounts      map[string]int  `json:"emotion_counts" db:"emotion_counts"`
	RawData            []EmotionSample `json:"raw_data,omitempty" db:"raw_data"`
	AnalysisDuration   int             `json:"analysis_duration" db:"analysis_duration"`
	PatientResponse    string          `json:"patient_response" db:"patient_response"`
	Timestamp          time.Time       `json:"timestamp" db:"timestamp"`
}
