// Package store is the Meeting Store: the single place Meeting documents
// are read from and written to. Built on the generic repository pattern
// from the teacher's internal/repository, narrowed to the operations the
// pipeline actually needs plus the CAS primitive the state machine invariant
// requires.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meetcorrect/internal/models"
	"meetcorrect/internal/repository"

	"gorm.io/gorm"
)

// ErrCASConflict is returned by CompareAndSwapState when another worker
// already moved the meeting out of the expected state.
var ErrCASConflict = errors.New("store: state changed concurrently")

// ErrNotFound mirrors gorm.ErrRecordNotFound so callers don't need to
// import gorm directly.
var ErrNotFound = gorm.ErrRecordNotFound

// Store is the Meeting Store (C5).
type Store struct {
	db   *gorm.DB
	repo *repository.BaseRepository[models.Meeting]
}

// New builds a Store over an already-initialized gorm connection (see
// internal/database.Initialize).
func New(db *gorm.DB) *Store {
	return &Store{
		db:   db,
		repo: repository.NewBaseRepository[models.Meeting](db),
	}
}

// FindByID loads a meeting by its opaque ID.
func (s *Store) FindByID(ctx context.Context, id string) (*models.Meeting, error) {
	return s.repo.FindByID(ctx, id)
}

// Save persists a full replacement of the meeting document — every mutable
// field is written, matching spec.md's "save (full replacement of the
// document)" contract rather than a partial-column update.
func (s *Store) Save(ctx context.Context, meeting *models.Meeting) error {
	return s.db.WithContext(ctx).Save(meeting).Error
}

// Create inserts a brand-new meeting.
func (s *Store) Create(ctx context.Context, meeting *models.Meeting) error {
	return s.repo.Create(ctx, meeting)
}

// StreamByState returns every meeting currently in the given state, ordered
// oldest-stoppedAt-first, matching spec.md §4.5's streamByState contract.
// There is no long-lived cursor: each poller call re-queries fresh, which
// is what makes the query "restartable each poll" per the spec.
func (s *Store) StreamByState(ctx context.Context, state models.MeetingState) ([]models.Meeting, error) {
	var meetings []models.Meeting
	err := s.db.WithContext(ctx).
		Where("state = ?", state).
		Order("stopped_at ASC NULLS FIRST, created_at ASC").
		Find(&meetings).Error
	if err != nil {
		return nil, fmt.Errorf("stream by state %s: %w", state, err)
	}
	return meetings, nil
}

// CompareAndSwapState enforces the "at most one worker owns a transient
// state" invariant (spec.md §3): the UPDATE only takes effect if the row is
// still in `from` at the moment of the write, so two workers racing to pick
// up the same meeting can only have one succeed.
func (s *Store) CompareAndSwapState(ctx context.Context, meetingID string, from, to models.MeetingState, stateChangedAt interface{}) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("store: illegal transition %s -> %s", from, to)
	}

	result := s.db.WithContext(ctx).
		Model(&models.Meeting{}).
		Where("id = ? AND state = ?", meetingID, from).
		Updates(map[string]interface{}{
			"state":            to,
			"state_changed_at": stateChangedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("cas %s -> %s: %w", from, to, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCASConflict
	}
	return nil
}

// CountByState returns the number of meetings currently in each lifecycle
// state, for the operator-facing pipeline stats endpoint.
func (s *Store) CountByState(ctx context.Context) (map[models.MeetingState]int64, error) {
	type row struct {
		State models.MeetingState
		Count int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&models.Meeting{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}

	counts := make(map[models.MeetingState]int64, len(rows))
	for _, r := range rows {
		counts[r.State] = r.Count
	}
	return counts, nil
}

// BeginTranscriptionAttempt records the start of one C2 invocation (a
// transcribe or retranscribe call), returning the attempt's ID so the
// caller can close it out with FinishTranscriptionAttempt once the backend
// call returns. This is the audit trail spec.md doesn't forbid and the
// teacher's TranscriptionJobExecution table demonstrates the value of.
func (s *Store) BeginTranscriptionAttempt(ctx context.Context, meetingID, mode, kind string) (uint, error) {
	attempt := &models.MeetingTranscriptionAttempt{
		MeetingID: meetingID,
		Mode:      mode,
		Kind:      kind,
		StartedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return 0, fmt.Errorf("begin transcription attempt for meeting %s: %w", meetingID, err)
	}
	return attempt.ID, nil
}

// FinishTranscriptionAttempt closes out an attempt opened by
// BeginTranscriptionAttempt with its outcome.
func (s *Store) FinishTranscriptionAttempt(ctx context.Context, attemptID uint, cause error) error {
	now := time.Now()
	updates := map[string]interface{}{
		"finished_at": now,
		"succeeded":   cause == nil,
	}
	if cause != nil {
		msg := cause.Error()
		updates["error"] = msg
	}
	if err := s.db.WithContext(ctx).Model(&models.MeetingTranscriptionAttempt{}).
		Where("id = ?", attemptID).Updates(updates).Error; err != nil {
		return fmt.Errorf("finish transcription attempt %d: %w", attemptID, err)
	}
	return nil
}

// ListPage returns a page of meetings for the operator API, newest first.
func (s *Store) ListPage(ctx context.Context, offset, limit int) ([]models.Meeting, int64, error) {
	var meetings []models.Meeting
	var count int64

	db := s.db.WithContext(ctx).Model(&models.Meeting{})
	if err := db.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&meetings).Error
	return meetings, count, err
}
