package stuckdetect

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"meetcorrect/internal/config"
	"meetcorrect/internal/database"
	"meetcorrect/internal/heartbeat"
	"meetcorrect/internal/models"
	"meetcorrect/internal/notify"
	"meetcorrect/internal/store"
	"meetcorrect/internal/transcribe"

	"github.com/stretchr/testify/suite"
)

// fakeBackend stubs transcribe.Backend, reporting whichever meetings are
// listed in activeJobs as having a live job.
type fakeBackend struct {
	activeJobs map[string]string
}

func (f *fakeBackend) Transcribe(ctx context.Context, req transcribe.Request, onProgress transcribe.ProgressSink) (*transcribe.Result, error) {
	return nil, nil
}
func (f *fakeBackend) Retranscribe(ctx context.Context, req transcribe.Request, onProgress transcribe.ProgressSink) (*transcribe.Result, error) {
	return nil, nil
}
func (f *fakeBackend) IsAvailable(ctx context.Context) bool { return true }
func (f *fakeBackend) DeleteJobsForMeeting(ctx context.Context, meetingID string) (bool, error) {
	return false, nil
}
func (f *fakeBackend) FindActiveJobForMeeting(ctx context.Context, meetingID string) (string, bool, error) {
	job, ok := f.activeJobs[meetingID]
	return job, ok, nil
}
func (f *fakeBackend) WaitForExistingJob(ctx context.Context, jobName, audioPath string, meetingID, clientID string, onProgress transcribe.ProgressSink) (*transcribe.Result, error) {
	return nil, nil
}

type DetectorTestSuite struct {
	suite.Suite
	store   *store.Store
	hb      *heartbeat.Tracker
	emitter *notify.Emitter
	backend *fakeBackend
	cfg     *config.Config
}

func (s *DetectorTestSuite) SetupTest() {
	dbPath := filepath.Join(s.T().TempDir(), "stuckdetect_test.db")
	s.Require().NoError(database.Initialize(dbPath))
	s.store = store.New(database.DB)
	s.hb = heartbeat.New()
	s.emitter = notify.New()
	s.backend = &fakeBackend{}
	s.cfg = &config.Config{
		StuckThreshold:     1 * time.Millisecond,
		HeartbeatThreshold: 1 * time.Millisecond,
		StartupGracePeriod: 0,
	}
}

func (s *DetectorTestSuite) TearDownTest() {
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
}

func (s *DetectorTestSuite) newMeetingIn(state models.MeetingState) *models.Meeting {
	m := &models.Meeting{AudioFilePath: "/audio/in.wav"}
	s.Require().NoError(s.store.Create(context.Background(), m))
	from := models.StateUploaded
	for _, to := range chains[state] {
		s.Require().NoError(s.store.CompareAndSwapState(context.Background(), m.ID, from, to, time.Now().Add(-time.Hour)))
		from = to
	}
	return m
}

// TestSweep_RevertsStaleCorrecting is the primary rule from the detector's
// own doc comment: a CORRECTING meeting with no fresh heartbeat and a
// stale StateChangedAt reverts to TRANSCRIBED.
func (s *DetectorTestSuite) TestSweep_RevertsStaleCorrecting() {
	m := s.newMeetingIn(models.StateCorrecting)
	d := New(s.store, s.hb, s.emitter, s.backend, s.cfg, time.Now().Add(-time.Hour))

	time.Sleep(2 * time.Millisecond)
	d.sweep(context.Background())

	reloaded, err := s.store.FindByID(context.Background(), m.ID)
	s.NoError(err)
	s.Equal(models.StateTranscribed, reloaded.State)
	s.NotNil(reloaded.ErrorMessage)
}

func (s *DetectorTestSuite) TestSweep_LeavesFreshHeartbeatAlone() {
	m := s.newMeetingIn(models.StateCorrecting)
	s.hb.Touch(m.ID)
	d := New(s.store, s.hb, s.emitter, s.backend, s.cfg, time.Now().Add(-time.Hour))

	d.sweep(context.Background())

	reloaded, err := s.store.FindByID(context.Background(), m.ID)
	s.NoError(err)
	s.Equal(models.StateCorrecting, reloaded.State)
}

func (s *DetectorTestSuite) TestSweep_RevertsStaleTranscribingToUploaded() {
	m := s.newMeetingIn(models.StateTranscribing)
	d := New(s.store, s.hb, s.emitter, s.backend, s.cfg, time.Now().Add(-time.Hour))

	time.Sleep(2 * time.Millisecond)
	d.sweep(context.Background())

	reloaded, err := s.store.FindByID(context.Background(), m.ID)
	s.NoError(err)
	s.Equal(models.StateUploaded, reloaded.State)
}

// TestSweep_LeavesTranscribingAloneWhenJobStillActive guards the fix for a
// long-running healthy transcription job past stuckThreshold: as long as
// C9's active-job lookup still finds it, the sweep must not revert it.
func (s *DetectorTestSuite) TestSweep_LeavesTranscribingAloneWhenJobStillActive() {
	m := s.newMeetingIn(models.StateTranscribing)
	s.backend.activeJobs = map[string]string{m.ID: "job-1"}
	d := New(s.store, s.hb, s.emitter, s.backend, s.cfg, time.Now().Add(-time.Hour))

	time.Sleep(2 * time.Millisecond)
	d.sweep(context.Background())

	reloaded, err := s.store.FindByID(context.Background(), m.ID)
	s.NoError(err)
	s.Equal(models.StateTranscribing, reloaded.State)
}

// TestSweep_HonorsStartupGrace guards the boot-time rule: a freshly started
// process must not revert anything until startupGrace has elapsed, since it
// has not yet observed any heartbeats.
func (s *DetectorTestSuite) TestSweep_HonorsStartupGrace() {
	m := s.newMeetingIn(models.StateCorrecting)
	cfg := &config.Config{
		StuckThreshold:     1 * time.Millisecond,
		HeartbeatThreshold: 1 * time.Millisecond,
		StartupGracePeriod: 1 * time.Hour,
	}
	d := New(s.store, s.hb, s.emitter, s.backend, cfg, time.Now())

	d.sweep(context.Background())

	reloaded, err := s.store.FindByID(context.Background(), m.ID)
	s.NoError(err)
	s.Equal(models.StateCorrecting, reloaded.State)
}

func TestDetectorSuite(t *testing.T) {
	suite.Run(t, new(DetectorTestSuite))
}
