// internal/chat/conversation.go

// Package chat holds the Flow Coach conversation: an ordered transcript of
// user/assistant messages, some of which carry a live mandate attachment.
package chat

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"flowcoach/internal/common/errors"
	"flowcoach/internal/common/logger"
	"flowcoach/internal/common/metrics"
	"flowcoach/internal/events"
	"flowcoach/internal/mandate"
	"flowcoach/internal/notify"

	"github.com/google/uuid"
)

// Author identifies who produced a message.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

var ErrMandateNotFound = stderrors.New("MANDATE_NOT_FOUND")

// Message is one transcript entry. Messages are never edited after creation
// except that an attachment's nested status is updated in place as its
// mandate resolves.
type Message struct {
	ID        string              `json:"id"`
	Author    Author              `json:"author"`
	Content   string              `json:"content"`
	Timestamp time.Time           `json:"timestamp"`
	Mandate   *mandate.Attachment `json:"mandate,omitempty"`
}

// MandateAPI is the slice of the mandate client the conversation drives.
type MandateAPI interface {
	Approve(ctx context.Context, id string) (*mandate.Mandate, error)
	Decline(ctx context.Context, id string) (*mandate.Mandate, error)
	Execute(ctx context.Context, id string) (*mandate.Result, error)
}

// TransitionJournal records observed mandate transitions. May be nil.
type TransitionJournal interface {
	Record(ctx context.Context, mandateID, productSlug, status, detail string) error
}

// Conversation is the mandate-carrying chat transcript. It subscribes to
// proposal events on construction and publishes resolution events when the
// user approves or declines an attached mandate.
type Conversation struct {
	mu       sync.Mutex
	messages []Message

	api      MandateAPI
	bus      *events.Bus
	journal  TransitionJournal
	notices  *notify.Handler
	logger   logger.Logger
	proposal string

	unsubProposed func()
}

func NewConversation(api MandateAPI, bus *events.Bus, journal TransitionJournal, notices *notify.Handler, proposalMessage string, log logger.Logger) *Conversation {
	c := &Conversation{
		api:      api,
		bus:      bus,
		journal:  journal,
		notices:  notices,
		logger:   log.WithFields(map[string]interface{}{"component": "conversation"}),
		proposal: proposalMessage,
	}
	c.unsubProposed = bus.SubscribeProposed(c.onProposed)
	return c
}

// Close unregisters the conversation from the bus.
func (c *Conversation) Close() {
	if c.unsubProposed != nil {
		c.unsubProposed()
		c.unsubProposed = nil
	}
}

// SendUser appends a user message to the transcript.
func (c *Conversation) SendUser(content string) Message {
	return c.append(Message{
		ID:        uuid.NewString(),
		Author:    AuthorUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// AppendAssistant appends an assistant reply to the transcript.
func (c *Conversation) AppendAssistant(content string) Message {
	return c.append(Message{
		ID:        uuid.NewString(),
		Author:    AuthorAssistant,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// Messages returns a snapshot of the transcript in insertion order.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// onProposed injects an externally originated mandate into the transcript.
func (c *Conversation) onProposed(ev events.ProposedEvent) {
	if ev.Attachment == nil || ev.Attachment.Mandate == nil {
		return
	}

	content := ev.Message
	if content == "" {
		content = c.proposal
	}

	c.append(Message{
		ID:        uuid.NewString(),
		Author:    AuthorAssistant,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Mandate:   ev.Attachment,
	})

	c.recordTransition(ev.Attachment, string(ev.Attachment.Mandate.Status), "proposed")

	c.logger.Info("mandate attached to conversation", map[string]interface{}{
		"mandateId": ev.Attachment.Mandate.ID,
		"slug":      ev.Attachment.Context.Slug,
	})
}

// Approve runs the approve-then-execute sequence for one attached mandate as
// a single user action. If approve succeeds but execute fails, the mandate
// is left approved and no resolution event is published; the optimistic UI
// state stays at awaiting, never claiming success ahead of a confirmed
// execute.
func (c *Conversation) Approve(ctx context.Context, mandateID string) error {
	att := c.findAttachment(mandateID)
	if att == nil {
		return ErrMandateNotFound
	}

	c.mu.Lock()
	status := att.Mandate.Status
	c.mu.Unlock()

	if status.Terminal() {
		c.logger.Debug("approve on terminal mandate ignored", map[string]interface{}{
			"mandateId": mandateID,
			"status":    string(status),
		})
		return nil
	}

	// A retry after an execute failure skips the approve call; the mandate
	// is already approved server-side.
	if status == mandate.StatusPendingApproval {
		approved, err := c.api.Approve(ctx, mandateID)
		if err != nil {
			stdErr := errors.NewMandateApproveFailedError(mandateID, err)
			c.notices.HandleError(stdErr)
			return stdErr
		}
		c.mergeAttachment(att, approved)
		c.recordTransition(att, string(mandate.StatusApproved), "user approved")
	}

	result, err := c.api.Execute(ctx, mandateID)
	if err != nil {
		stdErr := errors.NewMandateExecuteFailedError(mandateID, err)
		c.notices.HandleError(stdErr)
		return stdErr
	}

	c.mergeAttachment(att, &mandate.Mandate{
		ID:        result.ID,
		Status:    mandate.StatusExecuted,
		UpdatedAt: result.UpdatedAt,
	})
	c.recordTransition(att, string(mandate.StatusExecuted), result.Detail)
	metrics.MandatesResolved.WithLabelValues(string(mandate.StatusExecuted)).Inc()

	c.bus.PublishResolved(events.ResolvedEvent{
		ID:     mandateID,
		Status: mandate.StatusExecuted,
	})
	return nil
}

// Decline rejects a pending mandate.
func (c *Conversation) Decline(ctx context.Context, mandateID string) error {
	att := c.findAttachment(mandateID)
	if att == nil {
		return ErrMandateNotFound
	}

	c.mu.Lock()
	status := att.Mandate.Status
	c.mu.Unlock()

	if status.Terminal() {
		c.logger.Debug("decline on terminal mandate ignored", map[string]interface{}{
			"mandateId": mandateID,
			"status":    string(status),
		})
		return nil
	}

	declined, err := c.api.Decline(ctx, mandateID)
	if err != nil {
		stdErr := errors.NewMandateDeclineFailedError(mandateID, err)
		c.notices.HandleError(stdErr)
		return stdErr
	}

	c.mergeAttachment(att, declined)
	c.recordTransition(att, string(mandate.StatusDeclined), "user declined")
	metrics.MandatesResolved.WithLabelValues(string(mandate.StatusDeclined)).Inc()

	c.bus.PublishResolved(events.ResolvedEvent{
		ID:     mandateID,
		Status: mandate.StatusDeclined,
	})
	return nil
}

func (c *Conversation) append(m Message) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	return m
}

// findAttachment locates the attachment carrying the given mandate id.
func (c *Conversation) findAttachment(mandateID string) *mandate.Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		att := c.messages[i].Mandate
		if att != nil && att.Mandate != nil && att.Mandate.ID == mandateID {
			return att
		}
	}
	return nil
}

// mergeAttachment folds a server response into the attachment in place, so
// the transcript message reflects the new status without being replaced.
func (c *Conversation) mergeAttachment(att *mandate.Attachment, next *mandate.Mandate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	att.Mandate = mandate.Merge(att.Mandate, next)
}

func (c *Conversation) recordTransition(att *mandate.Attachment, status, detail string) {
	if c.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Journal failures are non-fatal; the journal logs them itself.
	_ = c.journal.Record(ctx, att.Mandate.ID, att.Context.Slug, status, detail)
}
