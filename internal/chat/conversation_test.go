// internal/chat/conversation_test.go
package chat

import (
	"context"
	"fmt"
	"testing"

	"flowcoach/internal/common/errors"
	"flowcoach/internal/common/logger"
	"flowcoach/internal/events"
	"flowcoach/internal/mandate"
	"flowcoach/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeMandateAPI struct {
	approveCalls int
	declineCalls int
	executeCalls int
	approveErr   error
	declineErr   error
	executeErr   error
}

func (f *fakeMandateAPI) Approve(ctx context.Context, id string) (*mandate.Mandate, error) {
	f.approveCalls++
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	return &mandate.Mandate{ID: id, Status: mandate.StatusApproved, UpdatedAt: "2026-08-01T10:00:05Z"}, nil
}

func (f *fakeMandateAPI) Decline(ctx context.Context, id string) (*mandate.Mandate, error) {
	f.declineCalls++
	if f.declineErr != nil {
		return nil, f.declineErr
	}
	return &mandate.Mandate{ID: id, Status: mandate.StatusDeclined}, nil
}

func (f *fakeMandateAPI) Execute(ctx context.Context, id string) (*mandate.Result, error) {
	f.executeCalls++
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	return &mandate.Result{ID: id, Status: mandate.StatusExecuted, Detail: "application submitted"}, nil
}

type captureSink struct {
	notices []notify.Notice
}

func (c *captureSink) Notify(n notify.Notice) {
	c.notices = append(c.notices, n)
}

func newTestConversation(t *testing.T, api MandateAPI) (*Conversation, *events.Bus, *captureSink) {
	bus := events.NewBus()
	sink := &captureSink{}
	log := logger.NewTestLogger(t)
	conv := NewConversation(api, bus, nil, notify.NewHandler(sink, log), "Here's what I can do for you.", log)
	t.Cleanup(conv.Close)
	return conv, bus, sink
}

func proposeTestMandate(bus *events.Bus, id string) *mandate.Attachment {
	att := &mandate.Attachment{
		Mandate: &mandate.Mandate{
			ID:     id,
			Type:   mandate.TypeIntent,
			Status: mandate.StatusPendingApproval,
			Data: map[string]interface{}{
				"intent":       mandate.IntentApplyCard,
				"product_slug": "acme-gold",
			},
		},
		Context: mandate.Context{ProductName: "Acme Gold", Issuer: "Acme Bank", Slug: "acme-gold"},
	}
	bus.PublishProposed(events.ProposedEvent{Attachment: att})
	return att
}

// ==========================
// Transcript Tests
// ==========================

func TestConversation_TranscriptOrdering(t *testing.T) {
	conv, bus, _ := newTestConversation(t, &fakeMandateAPI{})

	conv.SendUser("which card should I get?")
	conv.AppendAssistant("The Acme Gold fits your spending.")
	proposeTestMandate(bus, "m-1")
	conv.SendUser("sounds good")

	msgs := conv.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, AuthorUser, msgs[0].Author)
	assert.Equal(t, AuthorAssistant, msgs[1].Author)
	assert.Equal(t, AuthorAssistant, msgs[2].Author)
	assert.NotNil(t, msgs[2].Mandate)
	assert.Equal(t, AuthorUser, msgs[3].Author)

	for _, m := range msgs {
		assert.NotEmpty(t, m.ID)
		assert.False(t, m.Timestamp.IsZero())
	}
}

func TestConversation_ProposalUsesDefaultMessage(t *testing.T) {
	conv, bus, _ := newTestConversation(t, &fakeMandateAPI{})

	proposeTestMandate(bus, "m-1")

	msgs := conv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Here's what I can do for you.", msgs[0].Content)
}

func TestConversation_ProposalWithExplicitMessage(t *testing.T) {
	conv, bus, _ := newTestConversation(t, &fakeMandateAPI{})

	bus.PublishProposed(events.ProposedEvent{
		Message: "Ready to apply for the Acme Gold?",
		Attachment: &mandate.Attachment{
			Mandate: &mandate.Mandate{ID: "m-1", Status: mandate.StatusPendingApproval},
		},
	})

	msgs := conv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Ready to apply for the Acme Gold?", msgs[0].Content)
}

func TestConversation_ClosedConversationIgnoresProposals(t *testing.T) {
	conv, bus, _ := newTestConversation(t, &fakeMandateAPI{})

	conv.Close()
	proposeTestMandate(bus, "m-1")

	assert.Empty(t, conv.Messages())
}

// ==========================
// Approve Flow Tests
// ==========================

func TestConversation_Approve_RunsApproveThenExecute(t *testing.T) {
	api := &fakeMandateAPI{}
	conv, bus, _ := newTestConversation(t, api)

	var resolved []events.ResolvedEvent
	bus.SubscribeResolved(func(ev events.ResolvedEvent) { resolved = append(resolved, ev) })

	att := proposeTestMandate(bus, "m-1")

	err := conv.Approve(context.Background(), "m-1")

	require.NoError(t, err)
	assert.Equal(t, 1, api.approveCalls)
	assert.Equal(t, 1, api.executeCalls)
	assert.Equal(t, mandate.StatusExecuted, att.Mandate.Status)
	// The terse execute response must not erase the original data payload.
	assert.Equal(t, "acme-gold", att.Mandate.ProductSlug())

	require.Len(t, resolved, 1)
	assert.Equal(t, events.ResolvedEvent{ID: "m-1", Status: mandate.StatusExecuted}, resolved[0])
}

func TestConversation_Approve_ApproveFailureLeavesPending(t *testing.T) {
	api := &fakeMandateAPI{approveErr: fmt.Errorf("boom")}
	conv, bus, sink := newTestConversation(t, api)

	var resolved int
	bus.SubscribeResolved(func(events.ResolvedEvent) { resolved++ })
	att := proposeTestMandate(bus, "m-1")

	err := conv.Approve(context.Background(), "m-1")

	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodeMandateApproveFailed, stdErr.Code)
	assert.Equal(t, mandate.StatusPendingApproval, att.Mandate.Status)
	assert.Zero(t, api.executeCalls, "execute must not run after a failed approve")
	assert.Zero(t, resolved)
	require.Len(t, sink.notices, 1)
	assert.Equal(t, notify.LevelError, sink.notices[0].Level)
}

func TestConversation_Approve_ExecuteFailureLeavesApproved(t *testing.T) {
	api := &fakeMandateAPI{executeErr: fmt.Errorf("downstream timeout")}
	conv, bus, sink := newTestConversation(t, api)

	var resolved int
	bus.SubscribeResolved(func(events.ResolvedEvent) { resolved++ })
	att := proposeTestMandate(bus, "m-1")

	err := conv.Approve(context.Background(), "m-1")

	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodeMandateExecuteFailed, stdErr.Code)
	// Approved server-side but never executed; no resolution event may fire.
	assert.Equal(t, mandate.StatusApproved, att.Mandate.Status)
	assert.Zero(t, resolved, "success must never be claimed ahead of a confirmed execute")
	assert.Len(t, sink.notices, 1)
}

func TestConversation_Approve_RetryAfterExecuteFailureSkipsApprove(t *testing.T) {
	api := &fakeMandateAPI{executeErr: fmt.Errorf("downstream timeout")}
	conv, bus, _ := newTestConversation(t, api)
	att := proposeTestMandate(bus, "m-1")

	require.Error(t, conv.Approve(context.Background(), "m-1"))
	require.Equal(t, mandate.StatusApproved, att.Mandate.Status)

	api.executeErr = nil
	require.NoError(t, conv.Approve(context.Background(), "m-1"))

	assert.Equal(t, 1, api.approveCalls, "an already-approved mandate is not re-approved")
	assert.Equal(t, 2, api.executeCalls)
	assert.Equal(t, mandate.StatusExecuted, att.Mandate.Status)
}

func TestConversation_Approve_TerminalMandateIsNoOp(t *testing.T) {
	api := &fakeMandateAPI{}
	conv, bus, _ := newTestConversation(t, api)
	proposeTestMandate(bus, "m-1")

	require.NoError(t, conv.Approve(context.Background(), "m-1"))
	require.NoError(t, conv.Approve(context.Background(), "m-1"))

	assert.Equal(t, 1, api.approveCalls)
	assert.Equal(t, 1, api.executeCalls)
}

func TestConversation_Approve_UnknownMandate(t *testing.T) {
	conv, _, _ := newTestConversation(t, &fakeMandateAPI{})

	err := conv.Approve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrMandateNotFound)
}

// ==========================
// Decline Flow Tests
// ==========================

func TestConversation_Decline(t *testing.T) {
	api := &fakeMandateAPI{}
	conv, bus, _ := newTestConversation(t, api)

	var resolved []events.ResolvedEvent
	bus.SubscribeResolved(func(ev events.ResolvedEvent) { resolved = append(resolved, ev) })
	att := proposeTestMandate(bus, "m-1")

	err := conv.Decline(context.Background(), "m-1")

	require.NoError(t, err)
	assert.Equal(t, 1, api.declineCalls)
	assert.Equal(t, mandate.StatusDeclined, att.Mandate.Status)
	require.Len(t, resolved, 1)
	assert.Equal(t, events.ResolvedEvent{ID: "m-1", Status: mandate.StatusDeclined}, resolved[0])
}

func TestConversation_Decline_FailureLeavesPending(t *testing.T) {
	api := &fakeMandateAPI{declineErr: fmt.Errorf("boom")}
	conv, bus, sink := newTestConversation(t, api)
	att := proposeTestMandate(bus, "m-1")

	err := conv.Decline(context.Background(), "m-1")

	require.Error(t, err)
	assert.Equal(t, mandate.StatusPendingApproval, att.Mandate.Status)
	assert.Len(t, sink.notices, 1)
}

func TestConversation_Decline_TerminalMandateIsNoOp(t *testing.T) {
	api := &fakeMandateAPI{}
	conv, bus, _ := newTestConversation(t, api)
	proposeTestMandate(bus, "m-1")

	require.NoError(t, conv.Decline(context.Background(), "m-1"))
	require.NoError(t, conv.Decline(context.Background(), "m-1"))

	assert.Equal(t, 1, api.declineCalls)
}
