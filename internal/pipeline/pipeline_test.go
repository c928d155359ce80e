package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"meetcorrect/internal/config"
	"meetcorrect/internal/correction"
	"meetcorrect/internal/database"
	"meetcorrect/internal/models"
	"meetcorrect/internal/notify"
	"meetcorrect/internal/store"
	"meetcorrect/internal/transcribe"

	"github.com/stretchr/testify/suite"
)

type fakeBackend struct {
	result *transcribe.Result
	err    error
}

func (f *fakeBackend) Transcribe(ctx context.Context, req transcribe.Request, onProgress transcribe.ProgressSink) (*transcribe.Result, error) {
	return f.result, f.err
}
func (f *fakeBackend) Retranscribe(ctx context.Context, req transcribe.Request, onProgress transcribe.ProgressSink) (*transcribe.Result, error) {
	return f.result, f.err
}
func (f *fakeBackend) IsAvailable(ctx context.Context) bool { return true }
func (f *fakeBackend) DeleteJobsForMeeting(ctx context.Context, meetingID string) (bool, error) {
	return false, nil
}
func (f *fakeBackend) FindActiveJobForMeeting(ctx context.Context, meetingID string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeBackend) WaitForExistingJob(ctx context.Context, jobName, audioPath string, meetingID, clientID string, onProgress transcribe.ProgressSink) (*transcribe.Result, error) {
	return nil, nil
}

type fakeIndexQueue struct {
	enqueued []string
	err      error
}

func (f *fakeIndexQueue) Enqueue(ctx context.Context, meetingID string, blob string) error {
	f.enqueued = append(f.enqueued, meetingID)
	return f.err
}

type PipelineTestSuite struct {
	suite.Suite
	store   *store.Store
	emitter *notify.Emitter
}

func (s *PipelineTestSuite) SetupTest() {
	dbPath := filepath.Join(s.T().TempDir(), "pipeline_test.db")
	s.Require().NoError(database.Initialize(dbPath))
	s.store = store.New(database.DB)
	s.emitter = notify.New()
}

func (s *PipelineTestSuite) TearDownTest() {
	s.emitter.Shutdown()
	database.Close()
}

// chains walks the legal path from UPLOADED to each requested state, since
// CompareAndSwapState enforces the state graph and rejects any shortcut.
var chains = map[models.MeetingState][]models.MeetingState{
	models.StateUploaded:     {},
	models.StateTranscribing: {models.StateTranscribing},
	models.StateTranscribed:  {models.StateTranscribing, models.StateTranscribed},
	models.StateCorrecting:   {models.StateTranscribing, models.StateTranscribed, models.StateCorrecting},
	models.StateCorrected:    {models.StateTranscribing, models.StateTranscribed, models.StateCorrecting, models.StateCorrected},
}

func (s *PipelineTestSuite) newMeetingIn(state models.MeetingState) *models.Meeting {
	m := &models.Meeting{AudioFilePath: "/audio/in.wav"}
	s.Require().NoError(s.store.Create(context.Background(), m))
	from := models.StateUploaded
	for _, to := range chains[state] {
		s.Require().NoError(s.store.CompareAndSwapState(context.Background(), m.ID, from, to, time.Now()))
		from = to
	}
	return m
}

func (s *PipelineTestSuite) runner(backend transcribe.Backend, indexQueue IndexQueue) *Runner {
	cfg := &config.Config{PollInterval: time.Millisecond, WorkspaceRoot: s.T().TempDir()}
	return New(s.store, backend, nil, s.emitter, nil, indexQueue, cfg)
}

func (s *PipelineTestSuite) TestHandleUploaded_PersistsTranscribedOnSuccess() {
	m := s.newMeetingIn(models.StateUploaded)
	backend := &fakeBackend{result: &transcribe.Result{
		Text:     "hi there",
		Segments: []correction.Segment{{StartSec: 0, EndSec: 1, Text: "hi there"}},
	}}
	r := s.runner(backend, nil)

	s.Require().NoError(r.handleUploaded(context.Background(), *m))

	reloaded, err := s.store.FindByID(context.Background(), m.ID)
	s.NoError(err)
	s.Equal(models.StateTranscribed, reloaded.State)
	s.Equal("hi there", reloaded.TranscriptText)
}

func (s *PipelineTestSuite) TestHandleUploaded_PropagatesBackendError() {
	m := s.newMeetingIn(models.StateUploaded)
	backend := &fakeBackend{err: errors.New("job launch failed")}
	r := s.runner(backend, nil)

	err := r.handleUploaded(context.Background(), *m)
	s.Error(err)
}

func (s *PipelineTestSuite) TestFailMeeting_TransitionsToFailedWithMessage() {
	m := s.newMeetingIn(models.StateUploaded)
	r := s.runner(&fakeBackend{}, nil)

	r.failMeeting(context.Background(), m.ID, errors.New("boom"))

	reloaded, err := s.store.FindByID(context.Background(), m.ID)
	s.NoError(err)
	s.Equal(models.StateFailed, reloaded.State)
	s.Require().NotNil(reloaded.ErrorMessage)
	s.Contains(*reloaded.ErrorMessage, "boom")
}

func (s *PipelineTestSuite) TestHandleCorrected_EnqueuesAndMarksIndexed() {
	m := s.newMeetingIn(models.StateCorrected)
	queue := &fakeIndexQueue{}
	r := s.runner(&fakeBackend{}, queue)

	s.Require().NoError(r.handleCorrected(context.Background(), *m))

	s.Equal([]string{m.ID}, queue.enqueued)
	reloaded, err := s.store.FindByID(context.Background(), m.ID)
	s.NoError(err)
	s.Equal(models.StateIndexed, reloaded.State)
}

func (s *PipelineTestSuite) TestHandleCorrected_QueueFailureLeavesStateUnchanged() {
	m := s.newMeetingIn(models.StateCorrected)
	queue := &fakeIndexQueue{err: errors.New("queue unavailable")}
	r := s.runner(&fakeBackend{}, queue)

	err := r.handleCorrected(context.Background(), *m)
	s.Error(err)

	reloaded, err := s.store.FindByID(context.Background(), m.ID)
	s.NoError(err)
	s.Equal(models.StateCorrected, reloaded.State)
}

func (s *PipelineTestSuite) TestRun_StopsPromptlyOnCancel() {
	r := s.runner(&fakeBackend{}, &fakeIndexQueue{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("Run did not stop after context cancellation")
	}
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}

func TestSleepOrDone_ReturnsFalseImmediatelyWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := sleepOrDone(ctx, time.Hour)
	if got {
		t.Fatal("expected sleepOrDone to return false for a cancelled context")
	}
}

func TestSleepOrDone_ReturnsTrueAfterDurationElapses(t *testing.T) {
	got := sleepOrDone(context.Background(), time.Millisecond)
	if !got {
		t.Fatal("expected sleepOrDone to return true once the timer fires")
	}
}
