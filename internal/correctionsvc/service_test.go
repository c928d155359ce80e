package correctionsvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"meetcorrect/internal/config"
	"meetcorrect/internal/correction"
	"meetcorrect/internal/database"
	"meetcorrect/internal/heartbeat"
	"meetcorrect/internal/models"
	"meetcorrect/internal/notify"
	"meetcorrect/internal/store"
	"meetcorrect/internal/transcribe"

	"github.com/stretchr/testify/suite"
)

type ServiceTestSuite struct {
	suite.Suite
	store   *store.Store
	emitter *notify.Emitter
	hb      *heartbeat.Tracker
}

func (s *ServiceTestSuite) SetupTest() {
	dbPath := filepath.Join(s.T().TempDir(), "correctionsvc_test.db")
	s.Require().NoError(database.Initialize(dbPath))
	s.store = store.New(database.DB)
	s.emitter = notify.New()
	s.hb = heartbeat.New()
}

func (s *ServiceTestSuite) TearDownTest() {
	s.emitter.Shutdown()
	database.Close()
}

func (s *ServiceTestSuite) service(backend transcribe.Backend, correctionClient *correction.Client) *Service {
	cfg := &config.Config{WorkspaceRoot: s.T().TempDir(), DeploymentMode: "local_subprocess"}
	return New(s.store, backend, correctionClient, s.emitter, s.hb, cfg)
}

var chains = map[models.MeetingState][]models.MeetingState{
	models.StateUploaded:     {},
	models.StateTranscribing: {models.StateTranscribing},
	models.StateTranscribed:  {models.StateTranscribing, models.StateTranscribed},
	models.StateCorrecting:   {models.StateTranscribing, models.StateTranscribed, models.StateCorrecting},
}

func (s *ServiceTestSuite) newMeetingIn(state models.MeetingState) *models.Meeting {
	m := &models.Meeting{AudioFilePath: "/audio/in.wav"}
	s.Require().NoError(s.store.Create(context.Background(), m))
	from := models.StateUploaded
	for _, to := range chains[state] {
		s.Require().NoError(s.store.CompareAndSwapState(context.Background(), m.ID, from, to, time.Now()))
		from = to
	}
	return m
}

// TestHandleCorrectionFailure_ConnectionErrorReturnsNil guards the fix for
// the bug where a reverted-for-retry meeting still propagated its cause,
// causing the pipeline worker to stomp the revert with a hard FAILED.
func (s *ServiceTestSuite) TestHandleCorrectionFailure_ConnectionErrorReturnsNil() {
	m := s.newMeetingIn(models.StateCorrecting)
	m.ErrorMessage = nil
	svc := s.service(nil, nil)

	cause := &url.Error{Op: "Post", URL: "http://agent", Err: errors.New("dial refused")}
	err := svc.handleCorrectionFailure(context.Background(), m, models.StateTranscribed, cause)
	s.NoError(err)

	reloaded, loadErr := s.store.FindByID(context.Background(), m.ID)
	s.NoError(loadErr)
	s.Equal(models.StateTranscribed, reloaded.State)
	s.Nil(reloaded.ErrorMessage)
}

func (s *ServiceTestSuite) TestHandleCorrectionFailure_HardErrorReturnsCause() {
	m := s.newMeetingIn(models.StateCorrecting)
	svc := s.service(nil, nil)

	cause := errors.New("agent rejected the request")
	err := svc.handleCorrectionFailure(context.Background(), m, models.StateTranscribed, cause)
	s.Equal(cause, err)

	reloaded, loadErr := s.store.FindByID(context.Background(), m.ID)
	s.NoError(loadErr)
	s.Equal(models.StateFailed, reloaded.State)
	s.Require().NotNil(reloaded.ErrorMessage)
}

// TestResumeRetranscription_MergesAndPersistsViaCorrectTargeted guards the
// re-attach fix: a found retranscription job must merge TextBySegment, run
// correctTargeted and persist through persistCorrectionOutcome, same as a
// direct retranscribeAndCorrect call.
func (s *ServiceTestSuite) TestResumeRetranscription_MergesAndPersistsViaCorrectTargeted() {
	var gotReq correction.CorrectTargetedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"segments":  []correction.Segment{{Text: "fixed zero"}, {Text: "orig one"}},
			"questions": []correction.Question{},
		})
	}))
	defer srv.Close()

	m := s.newMeetingIn(models.StateCorrecting)
	m.TranscriptSegments = models.TranscriptSegments{
		{StartSec: 0, EndSec: 1, Text: "orig zero"},
		{StartSec: 1, EndSec: 2, Text: "orig one"},
	}
	s.Require().NoError(s.store.Save(context.Background(), m))

	client := correction.New(srv.URL, "")
	svc := s.service(nil, client)

	result := transcribe.Result{TextBySegment: map[int]string{0: "retranscribed zero"}}
	err := svc.ResumeRetranscription(context.Background(), m.ID, result)
	s.Require().NoError(err)

	s.Equal([]int{0}, gotReq.RetranscribedIndices)
	s.Empty(gotReq.UserCorrectedIndices)

	reloaded, loadErr := s.store.FindByID(context.Background(), m.ID)
	s.NoError(loadErr)
	s.Equal(models.StateCorrected, reloaded.State)
	s.Equal("fixed zero", reloaded.CorrectedTranscriptSegments[0].Text)
	s.Equal("orig one", reloaded.CorrectedTranscriptSegments[1].Text)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}
