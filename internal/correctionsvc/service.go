// Package correctionsvc is the Correction Service (C6): orchestrates
// correction, answer-handling and re-transcription. Built from spec.md
// §4.6 — the teacher has no analogous workflow, so this follows the
// teacher's general style of a small struct with constructor-injected
// dependencies (the same shape as internal/webhook.Service).
package correctionsvc

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"meetcorrect/internal/config"
	"meetcorrect/internal/correction"
	"meetcorrect/internal/heartbeat"
	"meetcorrect/internal/models"
	"meetcorrect/internal/notify"
	"meetcorrect/internal/store"
	"meetcorrect/internal/transcribe"
	"meetcorrect/pkg/logger"
)

// Service orchestrates the correction workflow described in spec.md §4.6.
type Service struct {
	store          *store.Store
	backend        transcribe.Backend
	correction     *correction.Client
	emitter        *notify.Emitter
	heartbeats     *heartbeat.Tracker
	workspaceRoot  string
	deploymentMode string
}

// New builds a Service. workspaceRoot (taken from cfg) is the directory
// under which each meeting's scratch workspace (progress/result files) is
// created.
func New(st *store.Store, backend transcribe.Backend, correctionClient *correction.Client, emitter *notify.Emitter, heartbeats *heartbeat.Tracker, cfg *config.Config) *Service {
	return &Service{
		store:          st,
		backend:        backend,
		correction:     correctionClient,
		emitter:        emitter,
		heartbeats:     heartbeats,
		workspaceRoot:  cfg.WorkspaceRoot,
		deploymentMode: string(cfg.DeploymentMode),
	}
}

func (s *Service) workspaceFor(meetingID string) string {
	return filepath.Join(s.workspaceRoot, meetingID)
}

// onRetranscribeProgress is the one backend call site that runs while a
// meeting sits in CORRECTING: per spec.md §4, heartbeat entries are created
// on the first progress callback while CORRECTING, which is what lets
// stuckdetect's checkCorrecting exempt a genuinely running retranscription
// from being reverted mid-flight.
func (s *Service) onRetranscribeProgress(meetingID, clientID string, ev transcribe.ProgressEvent) {
	s.heartbeats.Touch(meetingID)
	s.emitter.MeetingTranscriptionProgress(notify.TranscriptionProgressPayload{
		MeetingID:       meetingID,
		ClientID:        clientID,
		Percent:         ev.Percent,
		SegmentsDone:    ev.SegmentsDone,
		ElapsedSeconds:  ev.ElapsedSeconds,
		LastSegmentText: ev.LastSegmentText,
	})
}

func (s *Service) finishAttempt(ctx context.Context, attemptID uint, cause error) {
	if err := s.store.FinishTranscriptionAttempt(ctx, attemptID, cause); err != nil {
		logger.Error("could not finish transcription attempt", "attempt_id", attemptID, "error", err)
	}
}

// Answer is a user response to one correction question, as received from
// the API layer.
type Answer struct {
	QuestionID   string
	SegmentIndex int
	Original     string
	Corrected    string
	Category     string
}

func (a Answer) isKnown() bool { return a.Corrected != "" }

// Correct runs the correct(meeting) operation of spec.md §4.6.
func (s *Service) Correct(ctx context.Context, meetingID string) error {
	meeting, err := s.store.FindByID(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("correct: load meeting %s: %w", meetingID, err)
	}
	if meeting.State != models.StateTranscribed && meeting.State != models.StateCorrectionReview {
		return fmt.Errorf("correct: meeting %s is in state %s, expected TRANSCRIBED or CORRECTION_REVIEW", meetingID, meeting.State)
	}

	from := meeting.State
	if err := s.store.CompareAndSwapState(ctx, meetingID, from, models.StateCorrecting, time.Now()); err != nil {
		return fmt.Errorf("correct: %w", err)
	}
	s.emitter.MeetingStateChanged(meetingID, string(from), string(models.StateCorrecting))

	// Re-load after the CAS to work with a fresh, consistent row.
	meeting, err = s.store.FindByID(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("correct: reload meeting %s: %w", meetingID, err)
	}

	if len(meeting.TranscriptSegments) == 0 && meeting.TranscriptText == "" {
		return s.finishAsCorrected(ctx, meeting, nil, nil)
	}

	segments := toCorrectionSegments(meeting.TranscriptSegments)
	corrected, questions, err := s.correction.CorrectTranscript(ctx, correction.CorrectTranscriptRequest{
		ClientID:  meeting.ClientID,
		ProjectID: meeting.ProjectID,
		MeetingID: meetingID,
		Segments:  segments,
	})
	if err != nil {
		return s.handleCorrectionFailure(ctx, meeting, models.StateTranscribed, err)
	}

	merged := overlaySegments(meeting.TranscriptSegments, corrected)
	return s.persistCorrectionOutcome(ctx, meeting, merged, toModelQuestions(questions))
}

// finishAsCorrected writes through to CORRECTED with empty corrections,
// per spec.md §4.6 step 2's short-circuit for an empty transcript.
func (s *Service) finishAsCorrected(ctx context.Context, meeting *models.Meeting, segments models.TranscriptSegments, questions models.CorrectionQuestions) error {
	meeting.CorrectedTranscriptSegments = segments
	meeting.CorrectedTranscriptText = joinSegmentText(segments)
	meeting.CorrectionQuestions = questions
	meeting.State = models.StateCorrected
	meeting.StateChangedAt = time.Now()
	meeting.ErrorMessage = nil

	if err := s.store.Save(ctx, meeting); err != nil {
		return fmt.Errorf("persist corrected meeting %s: %w", meeting.ID, err)
	}
	s.emitter.MeetingStateChanged(meeting.ID, string(models.StateCorrecting), string(models.StateCorrected))
	return nil
}

func (s *Service) persistCorrectionOutcome(ctx context.Context, meeting *models.Meeting, merged models.TranscriptSegments, questions models.CorrectionQuestions) error {
	meeting.CorrectedTranscriptSegments = merged
	meeting.CorrectedTranscriptText = joinSegmentText(merged)
	meeting.CorrectionQuestions = questions
	meeting.ErrorMessage = nil

	from := meeting.State
	if len(questions) > 0 {
		meeting.State = models.StateCorrectionReview
	} else {
		meeting.State = models.StateCorrected
	}
	meeting.StateChangedAt = time.Now()

	if err := s.store.Save(ctx, meeting); err != nil {
		return fmt.Errorf("persist correction outcome for meeting %s: %w", meeting.ID, err)
	}
	s.emitter.MeetingStateChanged(meeting.ID, string(from), string(meeting.State))
	return nil
}

// handleCorrectionFailure applies spec.md §7's failure policy: a
// connection error reverts to the predecessor state with no error
// message (so the pipeline retries); any other error is a hard FAILED.
func (s *Service) handleCorrectionFailure(ctx context.Context, meeting *models.Meeting, revertTo models.MeetingState, cause error) error {
	from := meeting.State
	isConnErr := correction.IsConnectionError(cause)
	if isConnErr {
		meeting.State = revertTo
		meeting.ErrorMessage = nil
		logger.Warn("correction connection error, reverting for retry", "meeting_id", meeting.ID, "error", cause)
	} else {
		meeting.State = models.StateFailed
		msg := fmt.Sprintf("Correction error: %v", cause)
		meeting.ErrorMessage = &msg
	}
	meeting.StateChangedAt = time.Now()

	if err := s.store.Save(ctx, meeting); err != nil {
		return fmt.Errorf("persist correction failure for meeting %s: %w", meeting.ID, err)
	}
	s.emitter.MeetingStateChanged(meeting.ID, string(from), string(meeting.State))
	if isConnErr {
		// Already reverted for retry; the caller (pipeline.runWorker) must
		// not also treat this as a hard pipeline bug and re-fail the meeting.
		return nil
	}
	return cause
}

// AnswerQuestions runs the answerQuestions(meetingId, answers[])
// operation of spec.md §4.6.
func (s *Service) AnswerQuestions(ctx context.Context, meetingID string, answers []Answer) error {
	meeting, err := s.store.FindByID(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("answerQuestions: load meeting %s: %w", meetingID, err)
	}
	if meeting.State != models.StateCorrectionReview {
		return fmt.Errorf("answerQuestions: meeting %s is in state %s, expected CORRECTION_REVIEW", meetingID, meeting.State)
	}

	var known, unknown []Answer
	for _, a := range answers {
		if a.isKnown() {
			known = append(known, a)
		} else {
			unknown = append(unknown, a)
		}
	}

	if len(known) > 0 {
		req := correction.AnswerCorrectionQuestionsRequest{
			ClientID:  meeting.ClientID,
			ProjectID: meeting.ProjectID,
			Answers:   toCorrectionAnswers(known),
		}
		if err := s.correction.AnswerCorrectionQuestions(ctx, req); err != nil {
			return fmt.Errorf("submit known answers for meeting %s: %w", meetingID, err)
		}
	}

	if len(unknown) == 0 {
		from := meeting.State
		meeting.State = models.StateTranscribed
		meeting.StateChangedAt = time.Now()
		if err := s.store.Save(ctx, meeting); err != nil {
			return fmt.Errorf("revert meeting %s to TRANSCRIBED: %w", meetingID, err)
		}
		s.emitter.MeetingStateChanged(meetingID, string(from), string(models.StateTranscribed))
		return nil
	}

	return s.retranscribeAndCorrect(ctx, meeting, unknown, known)
}

// retranscribeAndCorrect implements spec.md §4.6's retranscribeAndCorrect.
func (s *Service) retranscribeAndCorrect(ctx context.Context, meeting *models.Meeting, unknown, known []Answer) error {
	from := meeting.State
	if err := s.store.CompareAndSwapState(ctx, meeting.ID, from, models.StateCorrecting, time.Now()); err != nil {
		return fmt.Errorf("retranscribeAndCorrect: %w", err)
	}
	s.emitter.MeetingStateChanged(meeting.ID, string(from), string(models.StateCorrecting))

	ranges := buildExtractionRanges(meeting.TranscriptSegments, unknown)

	attemptID, attemptErr := s.store.BeginTranscriptionAttempt(ctx, meeting.ID, s.deploymentMode, "retranscribe")
	if attemptErr != nil {
		logger.Error("retranscribeAndCorrect: could not record transcription attempt", "meeting_id", meeting.ID, "error", attemptErr)
	}

	result, err := s.backend.Retranscribe(ctx, transcribe.Request{
		AudioPath:     meeting.AudioFilePath,
		WorkspacePath: s.workspaceFor(meeting.ID),
		MeetingID:     meeting.ID,
		ClientID:      meeting.ClientID,
		ProjectID:     meeting.ProjectID,
		Ranges:        ranges,
	}, s.onRetranscribeProgress)
	if err != nil {
		if attemptErr == nil {
			s.finishAttempt(ctx, attemptID, err)
		}
		return s.handleCorrectionFailure(ctx, meeting, models.StateCorrectionReview, err)
	}
	if result.Err != "" {
		cause := fmt.Errorf(result.Err)
		if attemptErr == nil {
			s.finishAttempt(ctx, attemptID, cause)
		}
		return s.handleCorrectionFailure(ctx, meeting, models.StateCorrectionReview, cause)
	}
	if attemptErr == nil {
		s.finishAttempt(ctx, attemptID, nil)
	}

	merged := mergeRetranscribedSegments(meeting.TranscriptSegments, result.TextBySegment, known)

	retranscribedIdx := make([]int, 0, len(unknown))
	for _, a := range unknown {
		retranscribedIdx = append(retranscribedIdx, a.SegmentIndex)
	}
	userCorrectedIdx := make(map[string]string, len(known))
	for _, a := range known {
		userCorrectedIdx[fmt.Sprintf("%d", a.SegmentIndex)] = a.Corrected
	}

	corrected, questions, err := s.correction.CorrectTargeted(ctx, correction.CorrectTargetedRequest{
		ClientID:             meeting.ClientID,
		ProjectID:            meeting.ProjectID,
		MeetingID:            meeting.ID,
		Segments:             toCorrectionSegments(merged),
		RetranscribedIndices: retranscribedIdx,
		UserCorrectedIndices: userCorrectedIdx,
	})
	if err != nil {
		return s.handleCorrectionFailure(ctx, meeting, models.StateCorrectionReview, err)
	}

	final := overlaySegments(merged, corrected)
	return s.persistCorrectionOutcome(ctx, meeting, final, toModelQuestions(questions))
}

// ResumeRetranscription finishes a re-attached retranscription exactly as
// retranscribeAndCorrect would have on completion: merge the returned
// per-segment text into the transcript, run correctTargeted, and persist
// through persistCorrectionOutcome (which may land in CORRECTION_REVIEW).
// The re-attach controller (C9) has no record of which answers were
// "known" versus "unknown" across a process restart, so every
// retranscribed index is treated as unknown here, per spec.md §4.9's
// requirement that a re-attached job "proceed exactly as the original
// pipeline would have on completion".
func (s *Service) ResumeRetranscription(ctx context.Context, meetingID string, result transcribe.Result) error {
	meeting, err := s.store.FindByID(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("resumeRetranscription: load meeting %s: %w", meetingID, err)
	}

	merged := mergeRetranscribedSegments(meeting.TranscriptSegments, result.TextBySegment, nil)

	retranscribedIdx := make([]int, 0, len(result.TextBySegment))
	for idx := range result.TextBySegment {
		retranscribedIdx = append(retranscribedIdx, idx)
	}

	corrected, questions, err := s.correction.CorrectTargeted(ctx, correction.CorrectTargetedRequest{
		ClientID:             meeting.ClientID,
		ProjectID:            meeting.ProjectID,
		MeetingID:            meeting.ID,
		Segments:             toCorrectionSegments(merged),
		RetranscribedIndices: retranscribedIdx,
		UserCorrectedIndices: map[string]string{},
	})
	if err != nil {
		return s.handleCorrectionFailure(ctx, meeting, models.StateCorrectionReview, err)
	}

	final := overlaySegments(merged, corrected)
	return s.persistCorrectionOutcome(ctx, meeting, final, toModelQuestions(questions))
}

// RetranscribeSelectedSegments is spec.md §4.6's user-initiated
// re-transcription of arbitrary segments — same body as
// retranscribeAndCorrect minus the known/unknown partitioning.
func (s *Service) RetranscribeSelectedSegments(ctx context.Context, meetingID string, indices []int) error {
	meeting, err := s.store.FindByID(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("retranscribeSelectedSegments: load meeting %s: %w", meetingID, err)
	}

	unknown := make([]Answer, 0, len(indices))
	for _, idx := range indices {
		unknown = append(unknown, Answer{SegmentIndex: idx})
	}
	return s.retranscribeAndCorrect(ctx, meeting, unknown, nil)
}
