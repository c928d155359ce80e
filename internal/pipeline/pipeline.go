// Package pipeline is the Pipeline Runner (C7): three independent
// cooperative workers moving meetings between states. The
// continuous-poll-then-drain loop is grounded on the teacher's
// internal/queue/queue.go jobScanner pattern (ticker-driven scan, enqueue,
// sleep-if-empty); supervision uses golang.org/x/sync/errgroup instead of
// bare goroutines so one worker's error can't silently kill its siblings.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"meetcorrect/internal/config"
	"meetcorrect/internal/correction"
	"meetcorrect/internal/correctionsvc"
	"meetcorrect/internal/heartbeat"
	"meetcorrect/internal/indexrender"
	"meetcorrect/internal/models"
	"meetcorrect/internal/notify"
	"meetcorrect/internal/store"
	"meetcorrect/internal/transcribe"
	"meetcorrect/pkg/logger"
)

// IndexQueue is the external indexing queue Pipeline-3 hands its content
// blob to. Implemented by whatever concrete indexing transport is
// configured; kept as a narrow interface so pipeline doesn't depend on
// transport details.
type IndexQueue interface {
	Enqueue(ctx context.Context, meetingID string, blob string) error
}

// Runner owns the three pipeline workers.
type Runner struct {
	store       *store.Store
	backend     transcribe.Backend
	correction  *correctionsvc.Service
	emitter     *notify.Emitter
	heartbeats  *heartbeat.Tracker
	indexQueue  IndexQueue
	pollInterval time.Duration
	workspaceRoot string
	deploymentMode string
}

// New builds a Runner.
func New(st *store.Store, backend transcribe.Backend, correctionSvc *correctionsvc.Service, emitter *notify.Emitter, heartbeats *heartbeat.Tracker, indexQueue IndexQueue, cfg *config.Config) *Runner {
	return &Runner{
		store:          st,
		backend:        backend,
		correction:     correctionSvc,
		emitter:        emitter,
		heartbeats:     heartbeats,
		indexQueue:     indexQueue,
		pollInterval:   cfg.PollInterval,
		workspaceRoot:  cfg.WorkspaceRoot,
		deploymentMode: string(cfg.DeploymentMode),
	}
}

// Run starts all three workers and blocks until ctx is cancelled or one
// worker returns a non-nil error that its own per-meeting error handling
// couldn't absorb (i.e. a bug, not a meeting-level failure).
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.runWorker(ctx, "pipeline-1", models.StateUploaded, r.handleUploaded) })
	g.Go(func() error { return r.runWorker(ctx, "pipeline-2", models.StateTranscribed, r.handleTranscribed) })
	g.Go(func() error { return r.runWorker(ctx, "pipeline-3", models.StateCorrected, r.handleCorrected) })

	return g.Wait()
}

// runWorker implements the continuous-poll-then-drain pattern shared by
// all three workers.
func (r *Runner) runWorker(ctx context.Context, name string, watchState models.MeetingState, handle func(ctx context.Context, meeting models.Meeting) error) error {
	logger.Info("pipeline worker started", "worker", name, "watch_state", watchState)
	for {
		select {
		case <-ctx.Done():
			logger.Info("pipeline worker stopped", "worker", name)
			return nil
		default:
		}

		meetings, err := r.store.StreamByState(ctx, watchState)
		if err != nil {
			logger.Error("pipeline worker scan failed", "worker", name, "error", err)
			if !sleepOrDone(ctx, r.pollInterval) {
				return nil
			}
			continue
		}

		emittedAny := len(meetings) > 0
		for _, meeting := range meetings {
			logger.WorkerOperation(name, meeting.ID, "handle")
			if err := handle(ctx, meeting); err != nil {
				r.failMeeting(ctx, meeting.ID, err)
			}
		}

		if !emittedAny {
			if !sleepOrDone(ctx, r.pollInterval) {
				return nil
			}
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// failMeeting persists FAILED with the given cause, per spec.md §4.7:
// "if handle throws, persist state FAILED ... and continue the loop".
func (r *Runner) failMeeting(ctx context.Context, meetingID string, cause error) {
	meeting, err := r.store.FindByID(ctx, meetingID)
	if err != nil {
		logger.Error("failMeeting: could not reload meeting", "meeting_id", meetingID, "error", err)
		return
	}
	from := meeting.State
	msg := fmt.Sprintf("Pipeline error: %v", cause)
	meeting.State = models.StateFailed
	meeting.ErrorMessage = &msg
	meeting.StateChangedAt = time.Now()
	if err := r.store.Save(ctx, meeting); err != nil {
		logger.Error("failMeeting: could not persist", "meeting_id", meetingID, "error", err)
		return
	}
	r.emitter.MeetingStateChanged(meetingID, string(from), string(models.StateFailed))
}

// handleUploaded is Pipeline-1: UPLOADED -> TRANSCRIBED.
func (r *Runner) handleUploaded(ctx context.Context, meeting models.Meeting) error {
	if err := r.store.CompareAndSwapState(ctx, meeting.ID, models.StateUploaded, models.StateTranscribing, time.Now()); err != nil {
		if err == store.ErrCASConflict {
			return nil // another worker already picked this meeting up
		}
		return err
	}
	r.emitter.MeetingStateChanged(meeting.ID, string(models.StateUploaded), string(models.StateTranscribing))

	attemptID, attemptErr := r.store.BeginTranscriptionAttempt(ctx, meeting.ID, r.deploymentMode, "transcribe")
	if attemptErr != nil {
		logger.Error("handleUploaded: could not record transcription attempt", "meeting_id", meeting.ID, "error", attemptErr)
	}

	workspace := r.workspaceFor(meeting.ID)
	result, err := r.backend.Transcribe(ctx, transcribe.Request{
		AudioPath:     meeting.AudioFilePath,
		WorkspacePath: workspace,
		MeetingID:     meeting.ID,
		ClientID:      meeting.ClientID,
		ProjectID:     meeting.ProjectID,
	}, func(meetingID, clientID string, ev transcribe.ProgressEvent) {
		r.emitter.MeetingTranscriptionProgress(notify.TranscriptionProgressPayload{
			MeetingID:       meetingID,
			ClientID:        clientID,
			Percent:         ev.Percent,
			SegmentsDone:    ev.SegmentsDone,
			ElapsedSeconds:  ev.ElapsedSeconds,
			LastSegmentText: ev.LastSegmentText,
		})
	})
	if err != nil {
		if attemptErr == nil {
			r.finishAttempt(ctx, attemptID, err)
		}
		return r.revertTranscriptionFailure(ctx, meeting.ID, err)
	}
	if result.Err != "" {
		cause := fmt.Errorf(result.Err)
		if attemptErr == nil {
			r.finishAttempt(ctx, attemptID, cause)
		}
		return r.revertTranscriptionFailure(ctx, meeting.ID, cause)
	}
	if attemptErr == nil {
		r.finishAttempt(ctx, attemptID, nil)
	}

	fresh, err := r.store.FindByID(ctx, meeting.ID)
	if err != nil {
		return err
	}
	fresh.TranscriptText = result.Text
	fresh.TranscriptSegments = toModelSegments(result.Segments)
	fresh.State = models.StateTranscribed
	fresh.StateChangedAt = time.Now()
	if err := r.store.Save(ctx, fresh); err != nil {
		return err
	}
	r.emitter.MeetingStateChanged(meeting.ID, string(models.StateTranscribing), string(models.StateTranscribed))
	return nil
}

// revertTranscriptionFailure applies spec.md §7's policy for external job
// failure/timeout: hard FAILED with an explanatory message.
func (r *Runner) revertTranscriptionFailure(ctx context.Context, meetingID string, cause error) error {
	return fmt.Errorf("transcription error: %w", cause)
}

func (r *Runner) finishAttempt(ctx context.Context, attemptID uint, cause error) {
	if err := r.store.FinishTranscriptionAttempt(ctx, attemptID, cause); err != nil {
		logger.Error("could not finish transcription attempt", "attempt_id", attemptID, "error", err)
	}
}

func (r *Runner) workspaceFor(meetingID string) string {
	return r.workspaceRoot + "/" + meetingID
}

// handleTranscribed is Pipeline-2: delegates to C6.correct.
func (r *Runner) handleTranscribed(ctx context.Context, meeting models.Meeting) error {
	return r.correction.Correct(ctx, meeting.ID)
}

// handleCorrected is Pipeline-3: build the indexing content blob and hand
// it to the external indexing queue, then flip state to INDEXED.
func (r *Runner) handleCorrected(ctx context.Context, meeting models.Meeting) error {
	blob := indexrender.Render(meeting)
	if err := r.indexQueue.Enqueue(ctx, meeting.ID, blob); err != nil {
		return fmt.Errorf("enqueue index blob: %w", err)
	}

	fresh, err := r.store.FindByID(ctx, meeting.ID)
	if err != nil {
		return err
	}
	from := fresh.State
	fresh.State = models.StateIndexed
	fresh.StateChangedAt = time.Now()
	if err := r.store.Save(ctx, fresh); err != nil {
		return err
	}
	r.emitter.MeetingStateChanged(meeting.ID, string(from), string(models.StateIndexed))
	return nil
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
