package auth

import (
	"testing"

	"meetcorrect/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestGenerateToken_RoundTrip(t *testing.T) {
	svc := New("test-secret")
	user := &models.User{Username: "alice"}
	user.ID = 7

	token, err := svc.GenerateToken(user)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	assert.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestValidateToken_RejectsWrongSecret(t *testing.T) {
	issuer := New("secret-a")
	verifier := New("secret-b")
	user := &models.User{Username: "alice"}

	token, err := issuer.GenerateToken(user)
	assert.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_RejectsGarbage(t *testing.T) {
	svc := New("test-secret")
	_, err := svc.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	assert.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.NoError(t, CheckPassword(hash, "hunter2"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrInvalidCredentials)
}
