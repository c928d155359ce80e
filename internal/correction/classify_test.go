package correction

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConnectionError_Nil(t *testing.T) {
	assert.False(t, IsConnectionError(nil))
}

func TestIsConnectionError_DeadlineExceeded(t *testing.T) {
	assert.True(t, IsConnectionError(context.DeadlineExceeded))
}

func TestIsConnectionError_URLError(t *testing.T) {
	err := &url.Error{Op: "Post", URL: "http://x", Err: errors.New("boom")}
	assert.True(t, IsConnectionError(err))
}

func TestIsConnectionError_NetOpError(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: errors.New("refused")}
	assert.True(t, IsConnectionError(err))
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type nonTimeoutNetError struct{}

func (nonTimeoutNetError) Error() string   { return "not a timeout" }
func (nonTimeoutNetError) Timeout() bool   { return false }
func (nonTimeoutNetError) Temporary() bool { return false }

func TestIsConnectionError_TimeoutNetError(t *testing.T) {
	assert.True(t, IsConnectionError(timeoutError{}))
}

func TestIsConnectionError_NonTimeoutNetErrorIsNotClassified(t *testing.T) {
	assert.False(t, IsConnectionError(nonTimeoutNetError{}))
}

func TestIsConnectionError_UnrelatedErrorIsNotClassified(t *testing.T) {
	assert.False(t, IsConnectionError(errors.New("agent rejected the request")))
}
