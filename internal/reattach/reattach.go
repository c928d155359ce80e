// Package reattach is the Re-attach Controller (C9): runs once at process
// start, before the pipeline workers begin polling, to reconcile meetings
// left in a transient state by a prior process (crash, deploy, OOM kill).
// Grounded on spec.md §4.9 directly; golang.org/x/sync/singleflight
// dedupes concurrent FindActiveJobForMeeting lookups the way the teacher's
// internal/transcription package would dedupe concurrent status polls for
// the same job, had it needed to.
package reattach

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"meetcorrect/internal/correction"
	"meetcorrect/internal/correctionsvc"
	"meetcorrect/internal/models"
	"meetcorrect/internal/notify"
	"meetcorrect/internal/store"
	"meetcorrect/internal/transcribe"
	"meetcorrect/pkg/logger"
)

// Controller reconciles TRANSCRIBING/CORRECTING meetings at startup.
type Controller struct {
	store         *store.Store
	backend       transcribe.Backend
	correctionSvc *correctionsvc.Service
	emitter       *notify.Emitter
	workspaceRoot string

	group singleflight.Group
}

// New builds a Controller.
func New(st *store.Store, backend transcribe.Backend, correctionSvc *correctionsvc.Service, emitter *notify.Emitter, workspaceRoot string) *Controller {
	return &Controller{store: st, backend: backend, correctionSvc: correctionSvc, emitter: emitter, workspaceRoot: workspaceRoot}
}

// Reconcile runs once, synchronously, before pipeline workers start.
func (c *Controller) Reconcile(ctx context.Context) error {
	transcribing, err := c.store.StreamByState(ctx, models.StateTranscribing)
	if err != nil {
		return fmt.Errorf("reattach: scan TRANSCRIBING failed: %w", err)
	}
	for _, meeting := range transcribing {
		c.reconcileOne(ctx, meeting, models.StateTranscribing, models.StateUploaded)
	}

	correcting, err := c.store.StreamByState(ctx, models.StateCorrecting)
	if err != nil {
		return fmt.Errorf("reattach: scan CORRECTING failed: %w", err)
	}
	for _, meeting := range correcting {
		c.reconcileOne(ctx, meeting, models.StateCorrecting, models.StateTranscribed)
	}

	return nil
}

// reconcileOne implements spec.md §4.9: look for an externally
// discoverable job for the meeting; if found, re-attach and wait for it
// in the background; if not found, revert the meeting to the state it
// entered this transient phase from.
func (c *Controller) reconcileOne(ctx context.Context, meeting models.Meeting, transientState, revertTo models.MeetingState) {
	jobName, found, err := c.findActiveJob(ctx, meeting.ID)
	if err != nil {
		logger.Error("reattach: lookup failed", "meeting_id", meeting.ID, "error", err)
		return
	}

	if !found {
		c.revert(ctx, meeting, transientState, revertTo)
		return
	}

	logger.Info("reattach: found active job, re-attaching", "meeting_id", meeting.ID, "job", jobName, "state", transientState)
	go c.waitAndResume(meeting, jobName, transientState)
}

// findActiveJob dedupes concurrent lookups for the same meeting ID via
// singleflight, in case reconciliation is ever invoked more than once
// concurrently (e.g. a future HTTP-triggered re-scan alongside startup).
func (c *Controller) findActiveJob(ctx context.Context, meetingID string) (string, bool, error) {
	type result struct {
		jobName string
		found   bool
	}
	v, err, _ := c.group.Do(meetingID, func() (interface{}, error) {
		jobName, found, err := c.backend.FindActiveJobForMeeting(ctx, meetingID)
		return result{jobName: jobName, found: found}, err
	})
	if err != nil {
		return "", false, err
	}
	r := v.(result)
	return r.jobName, r.found, nil
}

func (c *Controller) revert(ctx context.Context, meeting models.Meeting, from, to models.MeetingState) {
	meeting.State = to
	meeting.ErrorMessage = nil
	meeting.StateChangedAt = time.Now()
	if err := c.store.Save(ctx, &meeting); err != nil {
		logger.Error("reattach: revert persist failed", "meeting_id", meeting.ID, "error", err)
		return
	}
	c.emitter.MeetingStateChanged(meeting.ID, string(from), string(to))
	logger.Info("reattach: reverted orphaned meeting", "meeting_id", meeting.ID, "from", from, "to", to)
}

// waitAndResume blocks on the re-attached job and persists its outcome the
// same way the pipeline worker that originally started it would have.
// Runs detached from the startup path so Reconcile can return promptly.
func (c *Controller) waitAndResume(meeting models.Meeting, jobName string, transientState models.MeetingState) {
	ctx := context.Background()
	result, err := c.backend.WaitForExistingJob(ctx, jobName, meeting.AudioFilePath, meeting.ID, meeting.ClientID, nil)
	if err != nil {
		c.fail(ctx, meeting.ID, fmt.Errorf("re-attached job failed: %w", err))
		return
	}
	if result.Err != "" {
		c.fail(ctx, meeting.ID, fmt.Errorf("re-attached job failed: %s", result.Err))
		return
	}

	switch transientState {
	case models.StateTranscribing:
		fresh, err := c.store.FindByID(ctx, meeting.ID)
		if err != nil {
			logger.Error("reattach: reload after wait failed", "meeting_id", meeting.ID, "error", err)
			return
		}
		fresh.TranscriptText = result.Text
		fresh.TranscriptSegments = toModelSegments(result.Segments)
		fresh.State = models.StateTranscribed
		fresh.ErrorMessage = nil
		fresh.StateChangedAt = time.Now()

		if err := c.store.Save(ctx, fresh); err != nil {
			logger.Error("reattach: persist resumed outcome failed", "meeting_id", meeting.ID, "error", err)
			return
		}
		c.emitter.MeetingStateChanged(meeting.ID, string(transientState), string(fresh.State))
	case models.StateCorrecting:
		// A re-attached retranscription must proceed exactly as
		// retranscribeAndCorrect would have on completion: merge the
		// per-segment text, run correctTargeted, and persist through
		// whichever outcome state that yields (CORRECTED or
		// CORRECTION_REVIEW if new questions come back).
		if err := c.correctionSvc.ResumeRetranscription(ctx, meeting.ID, *result); err != nil {
			logger.Error("reattach: resume retranscription failed", "meeting_id", meeting.ID, "error", err)
		}
	default:
		logger.Error("reattach: unexpected transient state", "meeting_id", meeting.ID, "state", transientState)
	}
}

func (c *Controller) fail(ctx context.Context, meetingID string, cause error) {
	meeting, err := c.store.FindByID(ctx, meetingID)
	if err != nil {
		logger.Error("reattach: reload for failure failed", "meeting_id", meetingID, "error", err)
		return
	}
	from := meeting.State
	msg := cause.Error()
	meeting.State = models.StateFailed
	meeting.ErrorMessage = &msg
	meeting.StateChangedAt = time.Now()
	if err := c.store.Save(ctx, meeting); err != nil {
		logger.Error("reattach: persist failure failed", "meeting_id", meetingID, "error", err)
		return
	}
	c.emitter.MeetingStateChanged(meetingID, string(from), string(models.StateFailed))
}

func toModelSegments(segments []correction.Segment) models.TranscriptSegments {
	if len(segments) == 0 {
		return nil
	}
	out := make(models.TranscriptSegments, len(segments))
	for i, s := range segments {
		out[i] = models.TranscriptSegment{
			StartSec: s.StartSec,
			EndSec:   s.EndSec,
			Text:     s.Text,
			Speaker:  s.Speaker,
		}
	}
	return out
}
