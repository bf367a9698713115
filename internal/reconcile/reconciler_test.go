// internal/reconcile/reconciler_test.go
package reconcile

import (
	"context"
	"fmt"
	"testing"

	"flowcoach/internal/cards"
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

type fakeCreator struct {
	createCalls int
	createErr   error
	nextID      int
	lastData    map[string]interface{}
}

func (f *fakeCreator) Create(ctx context.Context, mandateType mandate.Type, data map[string]interface{}) (*mandate.Mandate, error) {
	f.createCalls++
	f.lastData = data
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	return &mandate.Mandate{
		ID:     fmt.Sprintf("m-%d", f.nextID),
		Type:   mandateType,
		Status: mandate.StatusPendingApproval,
		Data:   data,
	}, nil
}

type fakeCardsAPI struct {
	linked         []cards.LinkedCard
	linkedErr      error
	catalog        []cards.CatalogProduct
	catalogErr     error
	invalidations  int
	linkedFetches  int
	catalogFetches int
}

func (f *fakeCardsAPI) Linked(ctx context.Context) ([]cards.LinkedCard, error) {
	f.linkedFetches++
	return f.linked, f.linkedErr
}

func (f *fakeCardsAPI) Catalog(ctx context.Context) ([]cards.CatalogProduct, error) {
	f.catalogFetches++
	return f.catalog, f.catalogErr
}

func (f *fakeCardsAPI) InvalidateLinked(ctx context.Context) {
	f.invalidations++
}

func newTestReconciler(t *testing.T, creator *fakeCreator, api *fakeCardsAPI) (*Reconciler, *events.Bus) {
	bus := events.NewBus()
	log := logger.NewTestLogger(t)
	r := NewReconciler(creator, api, bus, notify.NewHandler(&notify.LogSink{Logger: log}, log), log)
	t.Cleanup(r.Close)
	return r, bus
}

func testProduct(slug, name, issuer string) cards.CatalogProduct {
	return cards.CatalogProduct{Slug: slug, ProductName: name, Issuer: issuer}
}

// ==========================
// Status Classification Tests
// ==========================

func TestReconciler_Status_PristineProductIsAvailable(t *testing.T) {
	r, _ := newTestReconciler(t, &fakeCreator{}, &fakeCardsAPI{})
	r.SetLinked(nil)

	assert.Equal(t, StatusAvailable, r.Status(testProduct("acme-gold", "Acme Gold", "Acme Bank")))
}

func TestReconciler_Status_ConfirmedLinkIsApplied(t *testing.T) {
	r, _ := newTestReconciler(t, &fakeCreator{}, &fakeCardsAPI{})
	r.SetLinked([]cards.LinkedCard{
		{Issuer: "Chase", Nickname: "Sapphire Preferred Card"},
	})

	assert.Equal(t, StatusApplied, r.Status(testProduct("chase-sapphire-preferred", "Sapphire Preferred", "Chase")))
}

func TestReconciler_Apply_TransitionsToAwaiting(t *testing.T) {
	creator := &fakeCreator{}
	r, _ := newTestReconciler(t, creator, &fakeCardsAPI{})
	p := testProduct("acme-gold", "Acme Gold", "Acme Bank")

	require.NoError(t, r.Apply(context.Background(), p))

	assert.Equal(t, 1, creator.createCalls)
	assert.Equal(t, StatusAwaiting, r.Status(p), "an in-flight mandate reads awaiting, not applied")
	assert.Equal(t, mandate.IntentApplyCard, creator.lastData["intent"])
	assert.Equal(t, "acme-gold", creator.lastData["product_slug"])
}

// ==========================
// Apply Interaction Tests
// ==========================

func TestReconciler_Apply_PublishesProposalAndOpensChat(t *testing.T) {
	creator := &fakeCreator{}
	r, bus := newTestReconciler(t, creator, &fakeCardsAPI{})

	var proposals []events.ProposedEvent
	opens := 0
	bus.SubscribeProposed(func(ev events.ProposedEvent) { proposals = append(proposals, ev) })
	bus.SubscribeOpen(func() { opens++ })

	require.NoError(t, r.Apply(context.Background(), testProduct("acme-gold", "Acme Gold", "Acme Bank")))

	require.Len(t, proposals, 1)
	att := proposals[0].Attachment
	require.NotNil(t, att)
	assert.Equal(t, "m-1", att.Mandate.ID)
	assert.Equal(t, mandate.StatusPendingApproval, att.Mandate.Status)
	assert.Equal(t, "acme-gold", att.Context.Slug)
	assert.Equal(t, "Acme Gold", att.Context.ProductName)
	assert.Equal(t, 1, opens)
}

func TestReconciler_Apply_AwaitingProductReopensChatWithoutNewMandate(t *testing.T) {
	creator := &fakeCreator{}
	r, bus := newTestReconciler(t, creator, &fakeCardsAPI{})
	p := testProduct("acme-gold", "Acme Gold", "Acme Bank")

	opens := 0
	bus.SubscribeOpen(func() { opens++ })

	require.NoError(t, r.Apply(context.Background(), p))
	require.NoError(t, r.Apply(context.Background(), p))
	require.NoError(t, r.Apply(context.Background(), p))

	assert.Equal(t, 1, creator.createCalls, "no duplicate in-flight mandates per product")
	assert.Equal(t, 3, opens, "every click still brings the chat into view")
}

func TestReconciler_Apply_AppliedProductIsNoOp(t *testing.T) {
	creator := &fakeCreator{}
	r, _ := newTestReconciler(t, creator, &fakeCardsAPI{})
	r.SetLinked([]cards.LinkedCard{{CardProductSlug: "acme-gold", Nickname: "Acme Gold"}})

	require.NoError(t, r.Apply(context.Background(), testProduct("acme-gold", "Acme Gold", "Acme Bank")))

	assert.Zero(t, creator.createCalls)
}

func TestReconciler_Apply_MissingSlugRefused(t *testing.T) {
	creator := &fakeCreator{}
	r, _ := newTestReconciler(t, creator, &fakeCardsAPI{})

	err := r.Apply(context.Background(), testProduct("", "Mystery Card", "Acme Bank"))

	var stdErr *errors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, errors.ErrCodeMissingProductSlug, stdErr.Code)
	assert.Zero(t, creator.createCalls, "an untrackable mandate must never be created")
}

func TestReconciler_Apply_CreateFailureLeavesProductAvailable(t *testing.T) {
	creator := &fakeCreator{createErr: fmt.Errorf("boom")}
	r, _ := newTestReconciler(t, creator, &fakeCardsAPI{})
	p := testProduct("acme-gold", "Acme Gold", "Acme Bank")

	require.Error(t, r.Apply(context.Background(), p))

	assert.Equal(t, StatusAvailable, r.Status(p))

	// The slug is not stuck in the in-flight guard; a retry goes through.
	creator.createErr = nil
	require.NoError(t, r.Apply(context.Background(), p))
	assert.Equal(t, StatusAwaiting, r.Status(p))
}

// ==========================
// Resolution Tests
// ==========================

func TestReconciler_DeclineRollsBackOptimisticState(t *testing.T) {
	r, bus := newTestReconciler(t, &fakeCreator{}, &fakeCardsAPI{})
	p := testProduct("acme-gold", "Acme Gold", "Acme Bank")

	require.NoError(t, r.Apply(context.Background(), p))
	require.Equal(t, StatusAwaiting, r.Status(p))

	bus.PublishResolved(events.ResolvedEvent{ID: "m-1", Status: mandate.StatusDeclined})

	assert.Equal(t, StatusAvailable, r.Status(p), "a declined mandate fully rolls back")
}

func TestReconciler_ExecuteShowsAppliedBeforeAuthoritativeRefresh(t *testing.T) {
	api := &fakeCardsAPI{}
	r, bus := newTestReconciler(t, &fakeCreator{}, api)
	p := testProduct("acme-gold", "Acme Gold", "Acme Bank")

	require.NoError(t, r.Apply(context.Background(), p))
	bus.PublishResolved(events.ResolvedEvent{ID: "m-1", Status: mandate.StatusExecuted})

	// Applied immediately via the optimistic overlay, before any refetch.
	assert.Equal(t, StatusApplied, r.Status(p))
	assert.Equal(t, 1, api.invalidations, "execute must drop the cached linked list")
}

func TestReconciler_RefreshCommitsOptimisticSlug(t *testing.T) {
	api := &fakeCardsAPI{}
	r, bus := newTestReconciler(t, &fakeCreator{}, api)
	p := testProduct("acme-gold", "Acme Gold", "Acme Bank")

	require.NoError(t, r.Apply(context.Background(), p))
	bus.PublishResolved(events.ResolvedEvent{ID: "m-1", Status: mandate.StatusExecuted})

	// The authoritative list catches up; the overlay entry is retired but
	// the product stays applied through the confirmed match.
	api.linked = []cards.LinkedCard{{CardProductSlug: "acme-gold", Nickname: "Acme Gold"}}
	require.NoError(t, r.Refresh(context.Background()))

	assert.Equal(t, StatusApplied, r.Status(p))
}

func TestReconciler_RefreshWithoutConfirmationKeepsOptimisticSlug(t *testing.T) {
	api := &fakeCardsAPI{}
	r, bus := newTestReconciler(t, &fakeCreator{}, api)
	p := testProduct("acme-gold", "Acme Gold", "Acme Bank")

	require.NoError(t, r.Apply(context.Background(), p))
	bus.PublishResolved(events.ResolvedEvent{ID: "m-1", Status: mandate.StatusExecuted})

	// Authoritative list has not caught up yet; optimistic styling holds.
	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, StatusApplied, r.Status(p))
}

func TestReconciler_ResolutionIsIdempotent(t *testing.T) {
	r, bus := newTestReconciler(t, &fakeCreator{}, &fakeCardsAPI{})
	p := testProduct("acme-gold", "Acme Gold", "Acme Bank")

	require.NoError(t, r.Apply(context.Background(), p))

	ev := events.ResolvedEvent{ID: "m-1", Status: mandate.StatusDeclined}
	bus.PublishResolved(ev)
	bus.PublishResolved(ev)
	r.OnResolved(ev)

	assert.Equal(t, StatusAvailable, r.Status(p))
}

func TestReconciler_ResolutionForUntrackedMandateIsIgnored(t *testing.T) {
	api := &fakeCardsAPI{}
	_, bus := newTestReconciler(t, &fakeCreator{}, api)

	bus.PublishResolved(events.ResolvedEvent{ID: "m-99", Status: mandate.StatusExecuted})

	assert.Zero(t, api.invalidations)
}

// ==========================
// Fetch Tests
// ==========================

func TestReconciler_Products(t *testing.T) {
	api := &fakeCardsAPI{
		linked: []cards.LinkedCard{{Issuer: "Chase", Nickname: "Sapphire Preferred Card"}},
		catalog: []cards.CatalogProduct{
			testProduct("chase-sapphire-preferred", "Sapphire Preferred", "Chase"),
			testProduct("acme-gold", "Acme Gold", "Acme Bank"),
		},
	}
	r, _ := newTestReconciler(t, &fakeCreator{}, api)
	require.NoError(t, r.Refresh(context.Background()))

	views, err := r.Products(context.Background())

	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, StatusApplied, views[0].Status)
	assert.Equal(t, StatusAvailable, views[1].Status)
}

func TestReconciler_RefreshFailureSurfaces(t *testing.T) {
	api := &fakeCardsAPI{linkedErr: fmt.Errorf("backend down")}
	r, _ := newTestReconciler(t, &fakeCreator{}, api)

	assert.Error(t, r.Refresh(context.Background()))
}
