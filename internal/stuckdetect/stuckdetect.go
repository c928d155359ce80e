// Package stuckdetect is the Stuck Detector (C8): a periodic sweep that
// reverts meetings whose transient-state heartbeat has gone stale. Built
// from spec.md §4.8/§9 directly — no teacher analogue exists, but the
// sweep-on-a-ticker shape mirrors the continuous-poll pattern used
// throughout internal/pipeline and the teacher's internal/queue.jobScanner.
package stuckdetect

import (
	"context"
	"time"

	"meetcorrect/internal/config"
	"meetcorrect/internal/heartbeat"
	"meetcorrect/internal/models"
	"meetcorrect/internal/notify"
	"meetcorrect/internal/store"
	"meetcorrect/internal/transcribe"
	"meetcorrect/pkg/logger"
)

const sweepInterval = 60 * time.Second

// Detector periodically reverts stale CORRECTING/TRANSCRIBING meetings.
type Detector struct {
	store      *store.Store
	heartbeats *heartbeat.Tracker
	emitter    *notify.Emitter
	backend    transcribe.Backend

	stuckThreshold     time.Duration
	heartbeatThreshold time.Duration
	startupGrace       time.Duration
	startedAt          time.Time
}

// New builds a Detector. startedAt should be the process start time, used
// to honor the startup grace period noted in spec.md §9: a fresh process
// has no heartbeats yet, so sweep reverts nothing until startupGrace
// (cfg.StartupGracePeriod, 10 minutes by default) has elapsed since startup.
func New(st *store.Store, heartbeats *heartbeat.Tracker, emitter *notify.Emitter, backend transcribe.Backend, cfg *config.Config, startedAt time.Time) *Detector {
	return &Detector{
		store:              st,
		heartbeats:         heartbeats,
		emitter:            emitter,
		backend:            backend,
		stuckThreshold:     cfg.StuckThreshold,
		heartbeatThreshold: cfg.HeartbeatThreshold,
		startupGrace:       cfg.StartupGracePeriod,
		startedAt:          startedAt,
	}
}

// Run sweeps on a fixed ticker until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

func (d *Detector) sweep(ctx context.Context) {
	if time.Since(d.startedAt) < d.startupGrace {
		return
	}

	correcting, err := d.store.StreamByState(ctx, models.StateCorrecting)
	if err != nil {
		logger.Error("stuck detector: scan CORRECTING failed", "error", err)
		return
	}
	for _, meeting := range correcting {
		d.checkCorrecting(ctx, meeting)
	}

	transcribing, err := d.store.StreamByState(ctx, models.StateTranscribing)
	if err != nil {
		logger.Error("stuck detector: scan TRANSCRIBING failed", "error", err)
		return
	}
	for _, meeting := range transcribing {
		d.checkTranscribing(ctx, meeting)
	}
}

// checkCorrecting implements spec.md §4.8's primary rule.
func (d *Detector) checkCorrecting(ctx context.Context, meeting models.Meeting) {
	if time.Since(meeting.StateChangedAt) < d.stuckThreshold {
		return
	}
	if last, ok := d.heartbeats.Last(meeting.ID); ok && time.Since(last) < d.heartbeatThreshold {
		return // heartbeat is fresh, leave alone
	}

	stuckFor := time.Since(meeting.StateChangedAt)
	msg := "Stuck in CORRECTING"
	meeting.State = models.StateTranscribed
	meeting.ErrorMessage = &msg
	meeting.StateChangedAt = time.Now()

	if err := d.store.Save(ctx, &meeting); err != nil {
		logger.Error("stuck detector: persist revert failed", "meeting_id", meeting.ID, "error", err)
		return
	}
	d.heartbeats.Clear(meeting.ID)
	d.emitter.MeetingStateChanged(meeting.ID, string(models.StateCorrecting), string(models.StateTranscribed))
	logger.StuckReverted(meeting.ID, string(models.StateCorrecting), string(models.StateTranscribed), stuckFor)
}

// checkTranscribing is the transcription-side analogue noted in spec.md
// §4.8: a meeting stuck in TRANSCRIBING past stuckThreshold with no
// active job (C2's FindActiveJobForMeeting finds none) is reverted to
// UPLOADED. Heartbeats are never touched while TRANSCRIBING (only
// CORRECTING does that, per spec.md §4), so staleness here has to be
// decided by asking C2 directly rather than consulting the heartbeat
// tracker.
func (d *Detector) checkTranscribing(ctx context.Context, meeting models.Meeting) {
	if time.Since(meeting.StateChangedAt) < d.stuckThreshold {
		return
	}
	if _, found, err := d.backend.FindActiveJobForMeeting(ctx, meeting.ID); err != nil {
		logger.Error("stuck detector: active job lookup failed", "meeting_id", meeting.ID, "error", err)
		return
	} else if found {
		return // job is still running, leave it to C9 to reattach on restart
	}

	stuckFor := time.Since(meeting.StateChangedAt)
	meeting.State = models.StateUploaded
	meeting.ErrorMessage = nil
	meeting.StateChangedAt = time.Now()

	if err := d.store.Save(ctx, &meeting); err != nil {
		logger.Error("stuck detector: persist revert failed", "meeting_id", meeting.ID, "error", err)
		return
	}
	d.heartbeats.Clear(meeting.ID)
	d.emitter.MeetingStateChanged(meeting.ID, string(models.StateTranscribing), string(models.StateUploaded))
	logger.StuckReverted(meeting.ID, string(models.StateTranscribing), string(models.StateUploaded), stuckFor)
}
