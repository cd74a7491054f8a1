// Package productview holds the state machine behind the product detail page:
// one fetch per mount, a loading flag that always clears, and the gallery and
// cart actions that operate on the loaded product.
package productview

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"finitefield.org/hanko-shop/internal/cart"
	"finitefield.org/hanko-shop/internal/catalog"
	"finitefield.org/hanko-shop/internal/gallery"
)

// CartRoute is where a successful add-to-cart navigates.
const CartRoute = "/cart"

var (
	// ErrAuthRequired is returned by AddToCart when nobody is signed in.
	ErrAuthRequired = errors.New("productview: sign in required")
	// ErrNotLoaded is returned by actions that need a loaded product.
	ErrNotLoaded = errors.New("productview: product not loaded")
	// ErrClosed is returned by Mount after Close.
	ErrClosed = errors.New("productview: view closed")
)

// State is a snapshot of the view. Exactly one of Loading, NotFound or a
// non-nil Product describes what is rendered.
type State struct {
	ID      string
	Loading bool
	Product *catalog.Product
	Images  gallery.List
}

// NotFound reports the terminal state without a product.
func (s State) NotFound() bool { return !s.Loading && s.Product == nil }

// Navigator moves the shopper to another page.
type Navigator interface {
	NavigateTo(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

// NavigateTo calls f(route).
func (f NavigatorFunc) NavigateTo(route string) { f(route) }

// Option customises a View.
type Option func(*View)

// WithLogger scopes diagnostics to the view.
func WithLogger(logger *zap.Logger) Option {
	return func(v *View) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithObserver registers fn to receive every state transition. fn runs while
// the view is locked and must not call back into the view.
func WithObserver(fn func(State)) Option {
	return func(v *View) { v.observe = fn }
}

// View loads one product at a time and discards results for identifiers it
// is no longer showing.
type View struct {
	fetcher catalog.Fetcher
	logger  *zap.Logger
	observe func(State)

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	settled chan struct{}
	done    bool
	closed  bool
	state   State
	wg      sync.WaitGroup
}

// New constructs an unmounted View.
func New(fetcher catalog.Fetcher, opts ...Option) *View {
	v := &View{fetcher: fetcher, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Mount shows id. The state is Loading on return and a single fetch runs in
// the background; the returned channel closes once that fetch has been
// applied, or when the mount is superseded or the view is closed. Mounting
// the identifier already shown is a no-op.
func (v *View) Mount(ctx context.Context, id string) <-chan struct{} {
	id = strings.TrimSpace(id)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	if v.settled != nil && v.state.ID == id {
		return v.settled
	}

	if v.cancel != nil {
		v.cancel()
	}
	v.settleLocked()

	v.gen++
	gen := v.gen
	fetchCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.settled = make(chan struct{})
	v.done = false
	v.setLocked(State{ID: id, Loading: true, Images: gallery.List{}})

	settled := v.settled
	v.wg.Add(1)
	go v.load(fetchCtx, cancel, gen, id)
	return settled
}

// Load mounts id and waits for the outcome or ctx cancellation. The returned
// state is never loading: a fetch still in flight when ctx ends is reported
// as not found.
func (v *View) Load(ctx context.Context, id string) State {
	done := v.Mount(ctx, id)
	select {
	case <-done:
	case <-ctx.Done():
	}
	st := v.State()
	if st.Loading {
		st = State{ID: st.ID, Images: gallery.List{}}
	}
	return st
}

func (v *View) load(ctx context.Context, cancel context.CancelFunc, gen uint64, id string) {
	defer v.wg.Done()
	defer cancel()

	p, err := v.fetcher.ProductByID(ctx, id)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen || v.closed {
		return
	}

	next := State{ID: id, Images: gallery.List{}}
	if err != nil {
		v.logFetchError(id, err)
	} else {
		next.Product = &p
		next.Images = gallery.List(p.Images.URLs())
		if p.Images.Kind() == catalog.ImageRefSingle {
			v.logger.Debug("image reference is a single url", zap.String("product_id", id))
		}
	}
	v.setLocked(next)
	v.settleLocked()
}

func (v *View) logFetchError(id string, err error) {
	fields := []zap.Field{zap.String("product_id", id), zap.Error(err)}
	switch {
	case errors.Is(err, context.Canceled):
		v.logger.Debug("product fetch canceled", fields...)
	case errors.Is(err, catalog.ErrNotFound):
		v.logger.Warn("product not found", fields...)
	default:
		v.logger.Error("product fetch failed", fields...)
	}
}

// State returns a copy of the current state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// SelectImage brings thumbnail i to the front of the gallery.
func (v *View) SelectImage(i int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state.Loading || v.state.Product == nil {
		return ErrNotLoaded
	}
	images, err := v.state.Images.RotateToFront(i)
	if err != nil {
		return err
	}
	next := v.state
	next.Images = images
	v.setLocked(next)
	return nil
}

// AddToCart hands the loaded product to the shopper's cart and navigates to
// the cart page. Anonymous shoppers get ErrAuthRequired and nothing changes.
// Cart failures are logged; the navigation still happens.
func (v *View) AddToCart(ctx context.Context, sess cart.Session, nav Navigator) error {
	st := v.State()
	if st.Product == nil {
		return ErrNotLoaded
	}
	if _, ok := sess.CurrentUser(ctx); !ok {
		return ErrAuthRequired
	}
	if err := sess.AddToCart(ctx, *st.Product); err != nil {
		v.logger.Error("add to cart failed", zap.String("product_id", st.Product.ID), zap.Error(err))
	}
	nav.NavigateTo(CartRoute)
	return nil
}

// Close cancels any outstanding fetch and waits for it to return. Results that
// arrive afterwards are dropped.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	if v.cancel != nil {
		v.cancel()
	}
	v.settleLocked()
	v.mu.Unlock()
	v.wg.Wait()
}

func (v *View) setLocked(s State) {
	v.state = s
	if v.observe != nil {
		v.observe(v.snapshotLocked())
	}
}

func (v *View) settleLocked() {
	if v.settled != nil && !v.done {
		close(v.settled)
		v.done = true
	}
}

func (v *View) snapshotLocked() State {
	s := v.state
	s.Images = append(gallery.List{}, v.state.Images...)
	if v.state.Product != nil {
		p := *v.state.Product
		s.Product = &p
	}
	return s
}
