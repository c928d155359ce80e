package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"meetcorrect/internal/database"
	"meetcorrect/internal/models"

	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite
	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	dbPath := filepath.Join(s.T().TempDir(), "store_test.db")
	s.Require().NoError(database.Initialize(dbPath))
	s.store = New(database.DB)
}

func (s *StoreTestSuite) TearDownTest() {
	database.Close()
}

func (s *StoreTestSuite) newMeeting() *models.Meeting {
	m := &models.Meeting{AudioFilePath: "/audio/in.wav"}
	s.Require().NoError(s.store.Create(context.Background(), m))
	return m
}

func (s *StoreTestSuite) TestCompareAndSwapState_SucceedsOnMatchingFrom() {
	m := s.newMeeting()
	err := s.store.CompareAndSwapState(context.Background(), m.ID, models.StateUploaded, models.StateTranscribing, time.Now())
	s.NoError(err)

	reloaded, err := s.store.FindByID(context.Background(), m.ID)
	s.NoError(err)
	s.Equal(models.StateTranscribing, reloaded.State)
}

// TestCompareAndSwapState_MutualExclusion is the CAS invariant: once one
// caller wins the race, a second CAS attempting the same from-state loses.
func (s *StoreTestSuite) TestCompareAndSwapState_MutualExclusion() {
	m := s.newMeeting()
	ctx := context.Background()

	err1 := s.store.CompareAndSwapState(ctx, m.ID, models.StateUploaded, models.StateTranscribing, time.Now())
	s.NoError(err1)

	err2 := s.store.CompareAndSwapState(ctx, m.ID, models.StateUploaded, models.StateTranscribing, time.Now())
	s.ErrorIs(err2, ErrCASConflict)
}

func (s *StoreTestSuite) TestCompareAndSwapState_RejectsIllegalTransition() {
	m := s.newMeeting()
	err := s.store.CompareAndSwapState(context.Background(), m.ID, models.StateUploaded, models.StateCorrected, time.Now())
	s.Error(err)
	s.NotErrorIs(err, ErrCASConflict)
}

func (s *StoreTestSuite) TestStreamByState_RestartableEachPoll() {
	ctx := context.Background()
	a := s.newMeeting()
	b := s.newMeeting()
	s.Require().NoError(s.store.CompareAndSwapState(ctx, a.ID, models.StateUploaded, models.StateTranscribing, time.Now()))

	first, err := s.store.StreamByState(ctx, models.StateUploaded)
	s.NoError(err)
	s.Len(first, 1)
	s.Equal(b.ID, first[0].ID)

	// A second call against unchanged state returns the same set — there is
	// no cursor consumed between calls.
	second, err := s.store.StreamByState(ctx, models.StateUploaded)
	s.NoError(err)
	s.Equal(first, second)
}

func (s *StoreTestSuite) TestCountByState() {
	ctx := context.Background()
	a := s.newMeeting()
	s.newMeeting()
	s.Require().NoError(s.store.CompareAndSwapState(ctx, a.ID, models.StateUploaded, models.StateTranscribing, time.Now()))

	counts, err := s.store.CountByState(ctx)
	s.NoError(err)
	s.Equal(int64(1), counts[models.StateUploaded])
	s.Equal(int64(1), counts[models.StateTranscribing])
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
