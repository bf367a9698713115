// internal/notify/notify.go

// Package notify converts workflow failures into user-visible,
// non-blocking notifications. Nothing in the mandate workflow is fatal;
// every failure degrades to a notice the user can act on.
package notify

import (
	"time"

	"flowcoach/internal/common/errors"
	"flowcoach/internal/common/logger"
)

// Level indicates notice severity.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is the toast-equivalent payload shown to the user.
type Notice struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives notices. UI surfaces install their own sink; the
// runtime installs a logging sink.
type Notifier interface {
	Notify(n Notice)
}

// Handler converts errors into notices and hands them to a sink.
type Handler struct {
	sink   Notifier
	logger logger.Logger
}

func NewHandler(sink Notifier, log logger.Logger) *Handler {
	return &Handler{sink: sink, logger: log}
}

// HandleError normalizes err into a Notice. Standard errors keep their code
// and retryability; anything else becomes a generic non-retryable notice.
func (h *Handler) HandleError(err error) {
	if err == nil {
		return
	}

	n := Notice{
		Level:     LevelError,
		Message:   "Something went wrong. Please try again.",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}

	if stdErr, ok := err.(*errors.StandardError); ok {
		n.Message = stdErr.Message
		n.Code = string(stdErr.Code)
		n.Retryable = stdErr.Retryable
		h.logger.Error("workflow error", map[string]interface{}{
			"code":      string(stdErr.Code),
			"category":  errors.GetErrorCategory(stdErr.Code),
			"details":   stdErr.Details,
			"retryable": stdErr.Retryable,
		})
	} else {
		h.logger.Error("workflow error", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if h.sink != nil {
		h.sink.Notify(n)
	}
}

// Info sends an informational notice.
func (h *Handler) Info(message string) {
	if h.sink == nil {
		return
	}
	h.sink.Notify(Notice{
		Level:     LevelInfo,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// LogSink is a Notifier that only logs. Used by the headless runtime.
type LogSink struct {
	Logger logger.Logger
}

func (s *LogSink) Notify(n Notice) {
	fields := map[string]interface{}{
		"level":     string(n.Level),
		"code":      n.Code,
		"retryable": n.Retryable,
	}
	if n.Level == LevelError {
		s.Logger.Warn("notice: "+n.Message, fields)
		return
	}
	s.Logger.Info("notice: "+n.Message, fields)
}
