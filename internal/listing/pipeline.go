package listing

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/source"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/pagination"
)

// ErrClosed is returned by every operation on a closed pipeline.
var ErrClosed = apperrors.Gone("listing session is closed")

// Status is the render state of a listing.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusEmpty   Status = "empty"
	StatusError   Status = "error"
)

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Source source.Source
	Logger *slog.Logger
	// Recorder is optional.
	Recorder SearchRecorder
	// Clock defaults to the wall clock.
	Clock Clock
	// FetchTimeout bounds one catalog fetch; zero means no limit.
	FetchTimeout time.Duration
}

// Pipeline is the runtime of one mounted listing page.
//
// Every fetch is tagged with a generation. Starting a fetch cancels the
// previous one, and a response whose generation is no longer the latest
// is discarded, so the state always reflects the most recent request.
// After the first successful fetch the last good products stay visible
// while later fetches run (Refreshing in the view).
type Pipeline struct {
	profile  Profile
	src      source.Source
	logger   *slog.Logger
	recorder SearchRecorder
	clock    Clock
	timeout  time.Duration

	mu         sync.Mutex
	holder     *catalog.Holder
	translator catalog.Translator
	scope      url.Values
	tree       *catalog.Tree
	expanded   catalog.Expanded
	brands     []domain.Brand
	original   []domain.Product
	visible    []domain.Product
	remote     source.Pagination
	info       catalog.PageInfo
	status     Status
	errMsg     string
	loaded     bool
	mounted    bool
	closed     bool
	generation uint64
	lastQuery  url.Values
	cancel     context.CancelFunc
	timer      Timer
	timerSeq   uint64
	waiters    []chan struct{}
}

// New returns an unmounted pipeline for profile.
func New(profile Profile, deps Deps) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = realClock{}
	}
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Pipeline{
		profile:    profile,
		src:        deps.Source,
		logger:     l.With(slog.String("profile", profile.Name)),
		recorder:   deps.Recorder,
		clock:      clock,
		timeout:    deps.FetchTimeout,
		holder:     catalog.NewHolder(profile.Bounds, profile.BrandMode),
		translator: profile.Translator(nil),
		scope:      url.Values{},
		tree:       catalog.NewTree(nil),
		original:   []domain.Product{},
		visible:    []domain.Product{},
		info:       catalog.NewPageInfo(1, profile.PerPage, 0),
		status:     StatusLoading,
	}
}

// Profile returns the pipeline's listing profile.
func (p *Pipeline) Profile() Profile { return p.profile }

// Mount loads the taxonomy, hydrates the filter state from q, expands the
// ancestors of the selected category and performs the first fetch before
// returning. A failed taxonomy load leaves the tree or brand list empty; a
// failed product fetch is reported through the view's error status.
func (p *Pipeline) Mount(ctx context.Context, q url.Values) (View, error) {
	scope, err := p.profile.ScopeValues(q)
	if err != nil {
		return View{}, err
	}

	categories, brands := p.loadTaxonomy(ctx)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return View{}, ErrClosed
	}
	if p.mounted {
		p.mu.Unlock()
		return View{}, apperrors.Conflict("listing is already mounted")
	}
	p.mounted = true
	p.scope = scope
	p.translator = p.profile.Translator(scope)
	p.tree = catalog.NewTree(categories)
	p.brands = brands

	p.holder.Hydrate(q, p.tree.Resolve)
	catalog.PreExpand(p.tree, &p.expanded, p.holder.State().Category)

	done := p.startFetchLocked(ctx, p.translator.ServerQuery(p.holder.State()))
	p.mu.Unlock()

	return p.wait(ctx, done), nil
}

func (p *Pipeline) loadTaxonomy(ctx context.Context) ([]domain.Category, []domain.Brand) {
	var (
		wg         sync.WaitGroup
		categories []domain.Category
		brands     []domain.Brand
	)
	log := logger.WithContext(ctx, p.logger)

	wg.Add(2)
	go func() {
		defer wg.Done()
		var err error
		if categories, err = p.src.Categories(ctx); err != nil {
			log.WarnContext(ctx, "failed to load categories", slog.String("error", err.Error()))
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		if brands, err = p.src.Brands(ctx); err != nil {
			log.WarnContext(ctx, "failed to load brands", slog.String("error", err.Error()))
		}
	}()
	wg.Wait()

	if brands == nil {
		brands = []domain.Brand{}
	}
	return categories, brands
}

// Dispatch applies a to the filter state. When the backend query changes a
// fetch is started and awaited, except for search text, whose fetch is
// debounced and reported as Refreshing. Otherwise the visible products are
// re-derived from the last fetched products without I/O.
func (p *Pipeline) Dispatch(ctx context.Context, a Action) (View, error) {
	p.mu.Lock()
	if err := p.usableLocked(); err != nil {
		p.mu.Unlock()
		return View{}, err
	}
	if err := p.apply(a); err != nil {
		p.mu.Unlock()
		return View{}, err
	}

	q := p.translator.ServerQuery(p.holder.State())
	if queryEqual(q, p.lastQuery) {
		p.stopTimerLocked()
		p.deriveLocked()
		clientDerivations.WithLabelValues(p.profile.Name).Inc()
		p.notifyLocked()
		v := p.viewLocked()
		p.mu.Unlock()
		return v, nil
	}

	if a.Type == ActionSetSearch && p.profile.Debounce > 0 {
		p.scheduleLocked(ctx)
		v := p.viewLocked()
		p.mu.Unlock()
		return v, nil
	}

	p.stopTimerLocked()
	done := p.startFetchLocked(ctx, q)
	p.mu.Unlock()

	return p.wait(ctx, done), nil
}

// Retry re-issues the fetch for the current state, typically after an error.
func (p *Pipeline) Retry(ctx context.Context) (View, error) {
	p.mu.Lock()
	if err := p.usableLocked(); err != nil {
		p.mu.Unlock()
		return View{}, err
	}
	p.stopTimerLocked()
	done := p.startFetchLocked(ctx, p.translator.ServerQuery(p.holder.State()))
	p.mu.Unlock()

	return p.wait(ctx, done), nil
}

// Await blocks until no debounced or in-flight fetch remains, then returns
// the view. It returns early with ctx's error.
func (p *Pipeline) Await(ctx context.Context) (View, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return View{}, ErrClosed
	}
	if p.settledLocked() {
		v := p.viewLocked()
		p.mu.Unlock()
		return v, nil
	}
	ch := make(chan struct{})
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	select {
	case <-ch:
		return p.View(), nil
	case <-ctx.Done():
		return p.View(), ctx.Err()
	}
}

// Close cancels a pending debounce and any in-flight fetch. It is safe to
// call more than once.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.stopTimerLocked()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.releaseWaitersLocked()
}

// Suggestions returns fuzzy matches for text among product, brand and
// category names, for profiles that enable them.
func (p *Pipeline) Suggestions(text string, limit int) ([]catalog.Suggestion, error) {
	p.mu.Lock()
	if err := p.usableLocked(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if !p.profile.Suggestions {
		p.mu.Unlock()
		return nil, apperrors.InvalidInput("suggestions are not enabled for the " + p.profile.Name + " listing")
	}
	candidates := make([]string, 0, len(p.original)+len(p.brands)+p.tree.Len())
	for _, pr := range p.original {
		candidates = append(candidates, pr.Name)
	}
	for _, b := range p.brands {
		candidates = append(candidates, b.Name)
	}
	candidates = append(candidates, p.tree.Names()...)
	p.mu.Unlock()

	out := catalog.Suggest(text, candidates, limit)
	if out == nil {
		out = []catalog.Suggestion{}
	}
	return out, nil
}

func (p *Pipeline) usableLocked() error {
	if p.closed {
		return ErrClosed
	}
	if !p.mounted {
		return apperrors.Conflict("listing is not mounted")
	}
	return nil
}

// startFetchLocked supersedes any running fetch and starts one for q. The
// fetch outlives ctx's cancellation but keeps its values for tracing and
// logging. The returned channel is closed once the result is applied or
// discarded.
func (p *Pipeline) startFetchLocked(ctx context.Context, q url.Values) <-chan struct{} {
	if p.cancel != nil {
		p.cancel()
	}
	p.generation++
	gen := p.generation
	p.lastQuery = q
	if !p.loaded {
		p.status = StatusLoading
	}

	var (
		fetchCtx context.Context
		cancel   context.CancelFunc
	)
	if p.timeout > 0 {
		fetchCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	} else {
		fetchCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	p.cancel = cancel

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()

		start := time.Now()
		page, err := p.src.ListProducts(fetchCtx, q)
		if next := p.complete(fetchCtx, gen, page, err, time.Since(start)); next != nil {
			<-next
		}
	}()
	return done
}

// complete applies the result of fetch gen. When a server-paged response
// reports fewer pages than were requested, the page is lowered and a
// follow-up fetch is started instead; its done channel is returned.
func (p *Pipeline) complete(ctx context.Context, gen uint64, page *source.ProductPage, err error, took time.Duration) <-chan struct{} {
	log := logger.WithContext(ctx, p.logger)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	if gen != p.generation {
		p.mu.Unlock()
		fetchesTotal.WithLabelValues(p.profile.Name, outcomeSuperseded).Inc()
		log.DebugContext(ctx, "discarding superseded catalog response",
			slog.Uint64("generation", gen),
		)
		return nil
	}

	p.cancel = nil
	fetchDuration.WithLabelValues(p.profile.Name).Observe(took.Seconds())

	if err == nil && page == nil {
		err = apperrors.BadGateway("catalog", errors.New("empty response"))
	}
	if err != nil {
		p.status = StatusError
		p.errMsg = userMessage(err)
		p.notifyLocked()
		p.mu.Unlock()

		fetchesTotal.WithLabelValues(p.profile.Name, outcomeError).Inc()
		log.WarnContext(ctx, "catalog fetch failed",
			slog.Uint64("generation", gen),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if p.translator.Caps.Paging {
		pages := p.remotePages(page.Pagination)
		if requested := requestedPage(p.lastQuery); requested > pages {
			p.holder.SetTotalPages(pages)
			next := p.startFetchLocked(ctx, p.translator.ServerQuery(p.holder.State()))
			p.mu.Unlock()

			fetchesTotal.WithLabelValues(p.profile.Name, outcomeOutOfRange).Inc()
			log.InfoContext(ctx, "requested page out of range, refetching",
				slog.Int("requested", requested),
				slog.Int("pages", pages),
			)
			return next
		}
	}

	products := page.Products
	if products == nil {
		products = []domain.Product{}
	}
	p.original = products
	p.remote = page.Pagination
	p.loaded = true
	p.errMsg = ""
	p.deriveLocked()
	p.notifyLocked()

	var event *SearchEvent
	if s := p.holder.State(); p.recorder != nil && p.translator.Caps.Search && s.Search != "" {
		event = &SearchEvent{
			Profile: p.profile.Name,
			Query:   s.Search,
			Results: p.info.Total,
			Filters: maps.Clone(p.lastQuery),
		}
	}
	p.mu.Unlock()

	fetchesTotal.WithLabelValues(p.profile.Name, outcomeSuccess).Inc()
	if event != nil {
		p.recorder.RecordSearch(ctx, *event)
	}
	return nil
}

// remotePages is the backend's page count, derived from the total when the
// backend omits it. It is never below 1.
func (p *Pipeline) remotePages(info source.Pagination) int {
	if info.Pages > 0 {
		return info.Pages
	}
	return pagination.TotalPages(info.Total, p.profile.PerPage)
}

// requestedPage is the page sent in q, 1 when absent or malformed.
func requestedPage(q url.Values) int {
	n, err := strconv.Atoi(q.Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// deriveLocked recomputes the visible page from original: client
// predicates, then sorting, then either local pagination or the backend's
// page metadata.
func (p *Pipeline) deriveLocked() {
	s := p.holder.State()
	visible := p.translator.ApplyClientFilters(p.original, s, p.tree)
	visible = catalog.SortProducts(visible, s.Sort)

	if p.translator.Caps.Paging {
		pages := p.remotePages(p.remote)
		p.holder.SetTotalPages(pages)
		p.visible = visible
		p.info = catalog.PageInfo{
			Page:       p.holder.State().Page,
			PerPage:    p.profile.PerPage,
			Total:      max(p.remote.Total, 0),
			TotalPages: max(pages, 1),
		}
	} else {
		items, info := catalog.Paginate(visible, s.Page, p.profile.PerPage)
		p.holder.SetTotalPages(info.TotalPages)
		p.visible = items
		p.info = info
	}

	if p.loaded && p.errMsg == "" {
		if len(p.visible) == 0 {
			p.status = StatusEmpty
		} else {
			p.status = StatusReady
		}
	}
}

func (p *Pipeline) scheduleLocked(ctx context.Context) {
	p.stopTimerLocked()
	p.timerSeq++
	seq := p.timerSeq
	detached := context.WithoutCancel(ctx)
	p.timer = p.clock.AfterFunc(p.profile.Debounce, func() {
		p.fireDebounced(detached, seq)
	})
}

func (p *Pipeline) fireDebounced(ctx context.Context, seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.timer == nil || seq != p.timerSeq {
		return
	}
	p.timer = nil
	debouncedFetches.WithLabelValues(p.profile.Name).Inc()
	p.startFetchLocked(ctx, p.translator.ServerQuery(p.holder.State()))
}

func (p *Pipeline) stopTimerLocked() {
	if p.timer == nil {
		return
	}
	p.timer.Stop()
	p.timer = nil
	p.timerSeq++
}

func (p *Pipeline) settledLocked() bool {
	return p.timer == nil && p.cancel == nil
}

func (p *Pipeline) notifyLocked() {
	if p.settledLocked() {
		p.releaseWaitersLocked()
	}
}

func (p *Pipeline) releaseWaitersLocked() {
	for _, ch := range p.waiters {
		close(ch)
	}
	p.waiters = nil
}

func (p *Pipeline) wait(ctx context.Context, done <-chan struct{}) View {
	select {
	case <-done:
	case <-ctx.Done():
	}
	return p.View()
}

func queryEqual(a, b url.Values) bool {
	return maps.EqualFunc(a, b, slices.Equal[[]string])
}

func userMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "The catalog took too long to respond. Please try again."
	}
	switch apperrors.HTTPStatus(err) {
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return "The catalog is temporarily unavailable. Please try again shortly."
	case http.StatusBadRequest, http.StatusNotFound:
		return "These products could not be loaded with the selected filters."
	default:
		return "We could not load products. Please try again."
	}
}
