package repository

import (
	"context"
	"path/filepath"
	"testing"

	"meetcorrect/internal/database"
	"meetcorrect/internal/models"

	"github.com/stretchr/testify/suite"
)

type BaseRepositoryTestSuite struct {
	suite.Suite
	repo *BaseRepository[models.User]
}

func (s *BaseRepositoryTestSuite) SetupTest() {
	dbPath := filepath.Join(s.T().TempDir(), "repo_test.db")
	s.Require().NoError(database.Initialize(dbPath))
	s.repo = NewBaseRepository[models.User](database.DB)
}

func (s *BaseRepositoryTestSuite) TearDownTest() {
	database.Close()
}

func (s *BaseRepositoryTestSuite) TestCreateAndFindByID() {
	ctx := context.Background()
	u := &models.User{Username: "alice", Password: "hash"}
	s.Require().NoError(s.repo.Create(ctx, u))
	s.NotZero(u.ID)

	found, err := s.repo.FindByID(ctx, u.ID)
	s.NoError(err)
	s.Equal("alice", found.Username)
}

func (s *BaseRepositoryTestSuite) TestUpdate() {
	ctx := context.Background()
	u := &models.User{Username: "bob", Password: "hash"}
	s.Require().NoError(s.repo.Create(ctx, u))

	u.Username = "bobby"
	s.Require().NoError(s.repo.Update(ctx, u))

	found, err := s.repo.FindByID(ctx, u.ID)
	s.NoError(err)
	s.Equal("bobby", found.Username)
}

func (s *BaseRepositoryTestSuite) TestDelete() {
	ctx := context.Background()
	u := &models.User{Username: "carol", Password: "hash"}
	s.Require().NoError(s.repo.Create(ctx, u))
	s.Require().NoError(s.repo.Delete(ctx, u.ID))

	_, err := s.repo.FindByID(ctx, u.ID)
	s.Error(err)
}

func (s *BaseRepositoryTestSuite) TestList_ReturnsTotalCountAndPage() {
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		s.Require().NoError(s.repo.Create(ctx, &models.User{Username: name, Password: "hash"}))
	}

	page, total, err := s.repo.List(ctx, 0, 2)
	s.NoError(err)
	s.Equal(int64(3), total)
	s.Len(page, 2)
}

func TestBaseRepositorySuite(t *testing.T) {
	suite.Run(t, new(BaseRepositoryTestSuite))
}
