// internal/notify/notify_test.go
package notify

import (
	"fmt"
	"testing"

	"flowcoach/internal/common/errors"
	"flowcoach/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	notices []Notice
}

func (r *recordingSink) Notify(n Notice) {
	r.notices = append(r.notices, n)
}

func TestHandler_HandleError_StandardError(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler(sink, logger.NewTestLogger(t))

	h.HandleError(errors.NewMandateExecuteFailedError("m-1", fmt.Errorf("timeout")))

	require.Len(t, sink.notices, 1)
	n := sink.notices[0]
	assert.Equal(t, LevelError, n.Level)
	assert.Equal(t, string(errors.ErrCodeMandateExecuteFailed), n.Code)
	assert.Equal(t, "Approved, but the action could not be completed", n.Message)
	assert.True(t, n.Retryable)
}

func TestHandler_HandleError_PlainErrorGetsGenericNotice(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler(sink, logger.NewTestLogger(t))

	h.HandleError(fmt.Errorf("something low level"))

	require.Len(t, sink.notices, 1)
	assert.Empty(t, sink.notices[0].Code)
	assert.Equal(t, "Something went wrong. Please try again.", sink.notices[0].Message)
}

func TestHandler_HandleError_NilIsIgnored(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler(sink, logger.NewTestLogger(t))

	h.HandleError(nil)

	assert.Empty(t, sink.notices)
}

func TestHandler_Info(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler(sink, logger.NewTestLogger(t))

	h.Info("application submitted")

	require.Len(t, sink.notices, 1)
	assert.Equal(t, LevelInfo, sink.notices[0].Level)
	assert.Equal(t, "application submitted", sink.notices[0].Message)
}

func TestHandler_NilSinkOnlyLogs(t *testing.T) {
	h := NewHandler(nil, logger.NewTestLogger(t))

	h.HandleError(fmt.Errorf("boom"))
	h.Info("no sink installed")
}
