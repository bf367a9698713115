// internal/reconcile/reconciler.go

// Package reconcile derives a per-product application status from three
// inputs: the authoritative linked list, the optimistic overlay of recent
// applies, and the map of mandates still in flight.
package reconcile

import (
	"context"
	"sync"
	"time"

	"flowcoach/internal/cards"
	"flowcoach/internal/common/errors"
	"flowcoach/internal/common/logger"
	"flowcoach/internal/common/metrics"
	"flowcoach/internal/events"
	"flowcoach/internal/mandate"
	"flowcoach/internal/notify"
)

// ProductStatus is the tri-state UI status of a catalog product.
type ProductStatus string

const (
	StatusApplied   ProductStatus = "applied"
	StatusAwaiting  ProductStatus = "awaiting"
	StatusAvailable ProductStatus = "available"
)

// ProductView pairs a catalog product with its derived status.
type ProductView struct {
	Product cards.CatalogProduct `json:"product"`
	Status  ProductStatus        `json:"status"`
}

// MandateCreator is the slice of the mandate client the reconciler needs.
type MandateCreator interface {
	Create(ctx context.Context, mandateType mandate.Type, data map[string]interface{}) (*mandate.Mandate, error)
}

// CardsAPI supplies the authoritative linked list and the candidate catalog.
type CardsAPI interface {
	Linked(ctx context.Context) ([]cards.LinkedCard, error)
	Catalog(ctx context.Context) ([]cards.CatalogProduct, error)
	InvalidateLinked(ctx context.Context)
}

// Reconciler tracks optimistic apply state and resolves it against the
// authoritative linked list. All state is guarded by one mutex; callbacks
// from the bus and calls from interaction handlers may interleave.
type Reconciler struct {
	mu sync.Mutex
	// optimistic holds slugs applied locally and not yet confirmed by the
	// authoritative list.
	optimistic map[string]struct{}
	// pending maps in-flight mandate ids to their product slug.
	pending map[string]string
	// creating guards against a second create for the same slug while the
	// first is still on the wire.
	creating map[string]struct{}
	matcher  *Matcher

	creator  MandateCreator
	cardsAPI CardsAPI
	bus      *events.Bus
	notices  *notify.Handler
	logger   logger.Logger

	unsubResolved func()
}

func NewReconciler(creator MandateCreator, cardsAPI CardsAPI, bus *events.Bus, notices *notify.Handler, log logger.Logger) *Reconciler {
	r := &Reconciler{
		optimistic: make(map[string]struct{}),
		pending:    make(map[string]string),
		creating:   make(map[string]struct{}),
		creator:    creator,
		cardsAPI:   cardsAPI,
		bus:        bus,
		notices:    notices,
		logger:     log.WithFields(map[string]interface{}{"component": "reconciler"}),
	}
	r.unsubResolved = bus.SubscribeResolved(r.OnResolved)
	return r
}

// Close unregisters the reconciler from the bus.
func (r *Reconciler) Close() {
	if r.unsubResolved != nil {
		r.unsubResolved()
		r.unsubResolved = nil
	}
}

// Status classifies one catalog product. An in-flight mandate takes
// precedence over the optimistic overlay so a freshly applied product reads
// awaiting, never claiming applied ahead of a confirmed execute.
func (r *Reconciler) Status(p cards.CatalogProduct) ProductStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked(p)
}

func (r *Reconciler) statusLocked(p cards.CatalogProduct) ProductStatus {
	if r.matcher != nil && r.matcher.Match(p) {
		return StatusApplied
	}
	for _, slug := range r.pending {
		if slug != "" && slug == p.Slug {
			return StatusAwaiting
		}
	}
	if p.Slug != "" {
		if _, ok := r.optimistic[p.Slug]; ok {
			return StatusApplied
		}
	}
	return StatusAvailable
}

// Products fetches the candidate catalog and classifies every entry.
func (r *Reconciler) Products(ctx context.Context) ([]ProductView, error) {
	catalog, err := r.cardsAPI.Catalog(ctx)
	if err != nil {
		r.notices.HandleError(err)
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	views := make([]ProductView, 0, len(catalog))
	for _, p := range catalog {
		views = append(views, ProductView{Product: p, Status: r.statusLocked(p)})
	}
	return views, nil
}

// Refresh fetches the authoritative linked list and commits it.
func (r *Reconciler) Refresh(ctx context.Context) error {
	linked, err := r.cardsAPI.Linked(ctx)
	if err != nil {
		r.notices.HandleError(err)
		return err
	}
	r.SetLinked(linked)
	return nil
}

// SetLinked installs a fresh authoritative list and garbage-collects the
// optimistic overlay: a slug the authoritative list now confirms no longer
// needs optimistic styling.
func (r *Reconciler) SetLinked(linked []cards.LinkedCard) {
	matcher := NewMatcher(linked)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.matcher = matcher
	for slug := range r.optimistic {
		if matcher.HasSlug(slug) {
			delete(r.optimistic, slug)
		}
	}
	metrics.OptimisticSlugsTracked.Set(float64(len(r.optimistic)))
}

// Apply handles the user clicking Apply on a catalog product. An awaiting
// product re-opens the chat surface instead of creating a second mandate; an
// applied product is a no-op; otherwise a new apply_card mandate is created,
// the optimistic and pending state is set, and the mandate is pushed into the
// conversation.
func (r *Reconciler) Apply(ctx context.Context, p cards.CatalogProduct) error {
	if p.Slug == "" {
		err := errors.NewMissingProductSlugError(p.ProductName)
		r.notices.HandleError(err)
		return err
	}

	r.mu.Lock()
	switch r.statusLocked(p) {
	case StatusApplied:
		r.mu.Unlock()
		r.logger.Debug("apply ignored for applied product", map[string]interface{}{
			"slug": p.Slug,
		})
		return nil
	case StatusAwaiting:
		r.mu.Unlock()
		r.bus.PublishOpen()
		return nil
	}
	if _, inFlight := r.creating[p.Slug]; inFlight {
		r.mu.Unlock()
		return nil
	}
	r.creating[p.Slug] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.creating, p.Slug)
		r.mu.Unlock()
	}()

	data := map[string]interface{}{
		"intent":       mandate.IntentApplyCard,
		"product_slug": p.Slug,
		"product_name": p.ProductName,
		"issuer":       p.Issuer,
	}
	if err := mandate.ValidateApplyCardData(data); err != nil {
		r.notices.HandleError(err)
		return err
	}

	m, err := r.creator.Create(ctx, mandate.TypeIntent, data)
	if err != nil {
		r.notices.HandleError(err)
		return err
	}

	r.mu.Lock()
	r.optimistic[p.Slug] = struct{}{}
	r.pending[m.ID] = p.Slug
	metrics.OptimisticSlugsTracked.Set(float64(len(r.optimistic)))
	r.mu.Unlock()

	r.logger.Info("mandate proposed for product", map[string]interface{}{
		"mandateId": m.ID,
		"slug":      p.Slug,
	})

	r.bus.PublishProposed(events.ProposedEvent{
		Attachment: &mandate.Attachment{
			Mandate: m,
			Context: mandate.Context{
				ProductName: p.ProductName,
				Issuer:      p.Issuer,
				Slug:        p.Slug,
			},
		},
	})
	r.bus.PublishOpen()
	return nil
}

// OnResolved reconciles a terminal mandate status. Safe to call for
// mandates the reconciler never tracked or has already resolved; resolution
// is idempotent because bus and network orderings are not guaranteed.
func (r *Reconciler) OnResolved(ev events.ResolvedEvent) {
	r.mu.Lock()
	slug, tracked := r.pending[ev.ID]
	if !tracked {
		r.mu.Unlock()
		return
	}
	delete(r.pending, ev.ID)
	if ev.Status == mandate.StatusDeclined {
		delete(r.optimistic, slug)
	}
	metrics.OptimisticSlugsTracked.Set(float64(len(r.optimistic)))
	r.mu.Unlock()

	r.logger.Info("mandate resolved", map[string]interface{}{
		"mandateId": ev.ID,
		"slug":      slug,
		"status":    string(ev.Status),
	})

	// An executed mandate changed the authoritative list; drop the cached
	// copy so the next refresh confirms the optimistic slug.
	if ev.Status == mandate.StatusExecuted && r.cardsAPI != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.cardsAPI.InvalidateLinked(ctx)
	}
}
