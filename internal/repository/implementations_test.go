package repository

import (
	"context"
	"path/filepath"
	"testing"

	"meetcorrect/internal/database"
	"meetcorrect/internal/models"

	"github.com/stretchr/testify/suite"
)

type ImplementationsTestSuite struct {
	suite.Suite
	users UserRepository
	keys  APIKeyRepository
}

func (s *ImplementationsTestSuite) SetupTest() {
	dbPath := filepath.Join(s.T().TempDir(), "impl_test.db")
	s.Require().NoError(database.Initialize(dbPath))
	s.users = NewUserRepository(database.DB)
	s.keys = NewAPIKeyRepository(database.DB)
}

func (s *ImplementationsTestSuite) TearDownTest() {
	database.Close()
}

func (s *ImplementationsTestSuite) TestFindByUsername() {
	ctx := context.Background()
	s.Require().NoError(s.users.Create(ctx, &models.User{Username: "dave", Password: "hash"}))

	found, err := s.users.FindByUsername(ctx, "dave")
	s.NoError(err)
	s.Equal("dave", found.Username)

	_, err = s.users.FindByUsername(ctx, "nobody")
	s.Error(err)
}

func (s *ImplementationsTestSuite) TestAPIKeyLifecycle() {
	ctx := context.Background()
	key := &models.APIKey{Name: "ci-bot"}
	s.Require().NoError(s.keys.Create(ctx, key))
	s.NotEmpty(key.Key) // generated by BeforeCreate

	found, err := s.keys.FindByKey(ctx, key.Key)
	s.NoError(err)
	s.Equal("ci-bot", found.Name)

	active, err := s.keys.ListActive(ctx)
	s.NoError(err)
	s.Len(active, 1)

	s.Require().NoError(s.keys.Revoke(ctx, key.ID))

	active, err = s.keys.ListActive(ctx)
	s.NoError(err)
	s.Empty(active)
}

func TestImplementationsSuite(t *testing.T) {
	suite.Run(t, new(ImplementationsTestSuite))
}
