// Package poll keeps the latest message snapshots fresh by re-fetching the
// whole visible set on a timer. There is no push and no delta fetching.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/bazaarhq/inbox/internal/bus"
	"github.com/bazaarhq/inbox/internal/inbox"
	"go.uber.org/zap"
)

const (
	DefaultInboxInterval  = 30 * time.Second
	DefaultThreadInterval = 3 * time.Second
)

// Fetcher is the read side of the message service.
type Fetcher interface {
	GetMyConversations(ctx context.Context) ([]inbox.Message, error)
	GetMessagesForListing(ctx context.Context, listing inbox.ListingID) ([]inbox.Message, error)
}

// Config tunes the two loops.
type Config struct {
	InboxInterval  time.Duration
	ThreadInterval time.Duration
	Scope          inbox.ThreadScope
}

// ThreadRef names the thread being followed.
type ThreadRef struct {
	ListingID    inbox.ListingID
	Counterparty inbox.Identity
}

// Snapshot is the last applied inbox fetch. Messages is shared and must not
// be modified. After a failed fetch the previous messages are kept and Stale
// is set.
type Snapshot struct {
	Seq       uint64
	Messages  []inbox.Message
	FetchedAt time.Time
	Took      time.Duration
	Stale     bool
	Err       string
}

// ThreadSnapshot is the last applied fetch of the open thread, already
// filtered and ordered oldest first.
type ThreadSnapshot struct {
	Thread     ThreadRef
	Generation uint64
	Seq        uint64
	Messages   []inbox.Message
	FetchedAt  time.Time
	Took       time.Duration
	Stale      bool
	Err        string
}

// Failure is the payload of poll.failed events.
type Failure struct {
	Target string
	Err    string
	Took   time.Duration
}

// Poller runs the inbox loop and, while a thread is open, the thread loop.
// Every fetch takes a sequence number when issued; completions older than
// what has already been applied, or for a thread that is no longer open, are
// dropped.
type Poller struct {
	fetcher Fetcher
	me      inbox.Identity
	cfg     Config
	bus     *bus.Bus
	logger  *zap.Logger
	now     func() time.Time

	mu            sync.RWMutex
	seq           uint64
	inbox         Snapshot
	appliedInbox  uint64
	thread        *ThreadRef
	generation    uint64
	threadSnap    ThreadSnapshot
	appliedThread uint64

	refreshCh    chan struct{}
	cancel       context.CancelFunc
	threadCancel context.CancelFunc
	runCtx       context.Context
}

// New creates a poller fetching as me. An empty me is a guest: the inbox
// loop stays idle and threads are always empty.
func New(fetcher Fetcher, me inbox.Identity, cfg Config, b *bus.Bus, logger *zap.Logger) *Poller {
	if cfg.InboxInterval <= 0 {
		cfg.InboxInterval = DefaultInboxInterval
	}
	if cfg.ThreadInterval <= 0 {
		cfg.ThreadInterval = DefaultThreadInterval
	}
	if cfg.Scope == "" {
		cfg.Scope = inbox.ScopeListing
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		fetcher:   fetcher,
		me:        me,
		cfg:       cfg,
		bus:       b,
		logger:    logger,
		now:       time.Now,
		refreshCh: make(chan struct{}, 1),
	}
}

// Identity returns who the poller fetches as.
func (p *Poller) Identity() inbox.Identity { return p.me }

// Scope returns the configured thread scope.
func (p *Poller) Scope() inbox.ThreadScope { return p.cfg.Scope }

// Seed installs a cached snapshot before the first live fetch. It is marked
// stale and ignored once anything live has been applied.
func (p *Poller) Seed(msgs []inbox.Message, fetchedAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.appliedInbox > 0 {
		return
	}
	p.inbox = Snapshot{Messages: msgs, FetchedAt: fetchedAt, Stale: true}
}

// Start launches the inbox loop. The first fetch happens immediately.
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.runCtx = ctx
	p.mu.Unlock()
	go p.inboxLoop(ctx)
}

// Stop ends both loops.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.threadCancel != nil {
		p.threadCancel()
		p.threadCancel = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Refresh asks the inbox loop for an immediate fetch. It never blocks.
func (p *Poller) Refresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

func (p *Poller) inboxLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.InboxInterval)
	defer ticker.Stop()

	p.PollInbox(ctx)
	for {
		select {
		case <-ticker.C:
			p.PollInbox(ctx)
		case <-p.refreshCh:
			p.PollInbox(ctx)
			p.mu.RLock()
			open := p.thread != nil
			p.mu.RUnlock()
			if open {
				p.PollThread(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

// PollInbox runs one inbox fetch and applies it unless a newer one already
// landed. Guests have no inbox and nothing is fetched.
func (p *Poller) PollInbox(ctx context.Context) {
	if p.me == "" {
		return
	}
	seq := p.nextSeq()
	start := p.now()
	msgs, err := p.fetcher.GetMyConversations(ctx)
	took := p.now().Sub(start)
	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	if seq <= p.appliedInbox {
		p.mu.Unlock()
		p.logger.Debug("dropping out-of-order inbox result", zap.Uint64("seq", seq))
		return
	}
	p.appliedInbox = seq
	if err != nil {
		p.inbox.Seq = seq
		p.inbox.Stale = true
		p.inbox.Err = err.Error()
		p.inbox.Took = took
		p.mu.Unlock()
		p.logger.Warn("inbox poll failed, keeping last snapshot", zap.Error(err))
		p.bus.Emit(bus.KindPollFailed, Failure{Target: "inbox", Err: err.Error(), Took: took})
		return
	}
	p.inbox = Snapshot{Seq: seq, Messages: msgs, FetchedAt: p.now(), Took: took}
	snap := p.inbox
	p.mu.Unlock()

	p.bus.Emit(bus.KindInboxSnapshot, snap)
}

// Inbox returns the last applied inbox snapshot.
func (p *Poller) Inbox() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inbox
}

// OpenThread follows ref at the thread interval, replacing any open thread.
// Results still in flight for the previous thread are discarded. Opening the
// thread already open is a no-op.
func (p *Poller) OpenThread(ref ThreadRef) uint64 {
	p.mu.Lock()
	if p.thread != nil && *p.thread == ref {
		gen := p.generation
		p.mu.Unlock()
		return gen
	}
	if p.threadCancel != nil {
		p.threadCancel()
		p.threadCancel = nil
	}
	p.generation++
	gen := p.generation
	p.thread = &ref
	p.threadSnap = ThreadSnapshot{Thread: ref, Generation: gen, Stale: true}
	parent := p.runCtx
	if parent != nil {
		var ctx context.Context
		ctx, p.threadCancel = context.WithCancel(parent)
		go p.threadLoop(ctx)
	}
	p.mu.Unlock()
	return gen
}

// CloseThread stops following the open thread.
func (p *Poller) CloseThread() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.threadCancel != nil {
		p.threadCancel()
		p.threadCancel = nil
	}
	p.generation++
	p.thread = nil
	p.threadSnap = ThreadSnapshot{}
}

func (p *Poller) threadLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ThreadInterval)
	defer ticker.Stop()

	p.PollThread(ctx)
	for {
		select {
		case <-ticker.C:
			p.PollThread(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// PollThread runs one fetch of the open thread, if any.
func (p *Poller) PollThread(ctx context.Context) {
	p.mu.RLock()
	if p.thread == nil {
		p.mu.RUnlock()
		return
	}
	ref := *p.thread
	gen := p.generation
	p.mu.RUnlock()

	seq := p.nextSeq()
	start := p.now()
	msgs, err := p.fetchThread(ctx, ref)
	took := p.now().Sub(start)
	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	if gen != p.generation || seq <= p.appliedThread {
		p.mu.Unlock()
		p.logger.Debug("dropping superseded thread result", zap.Uint64("seq", seq), zap.Uint64("generation", gen))
		return
	}
	p.appliedThread = seq
	if err != nil {
		p.threadSnap.Seq = seq
		p.threadSnap.Stale = true
		p.threadSnap.Err = err.Error()
		p.threadSnap.Took = took
		p.mu.Unlock()
		p.logger.Warn("thread poll failed, keeping last snapshot",
			zap.String("listing", string(ref.ListingID)), zap.Error(err))
		p.bus.Emit(bus.KindPollFailed, Failure{Target: "thread", Err: err.Error(), Took: took})
		return
	}
	p.threadSnap = ThreadSnapshot{
		Thread:     ref,
		Generation: gen,
		Seq:        seq,
		Messages:   msgs,
		FetchedAt:  p.now(),
		Took:       took,
	}
	snap := p.threadSnap
	p.mu.Unlock()

	p.bus.Emit(bus.KindThreadSnapshot, snap)
}

func (p *Poller) fetchThread(ctx context.Context, ref ThreadRef) ([]inbox.Message, error) {
	if p.me == "" {
		return nil, nil
	}
	var (
		raw []inbox.Message
		err error
	)
	if p.cfg.Scope == inbox.ScopeCounterparty {
		raw, err = p.fetcher.GetMyConversations(ctx)
	} else {
		raw, err = p.fetcher.GetMessagesForListing(ctx, ref.ListingID)
	}
	if err != nil {
		return nil, err
	}
	return inbox.Thread(p.cfg.Scope, raw, p.me, ref.Counterparty, ref.ListingID), nil
}

// Thread returns the open thread's snapshot, or false when none is open.
func (p *Poller) Thread() (ThreadSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.thread == nil {
		return ThreadSnapshot{}, false
	}
	return p.threadSnap, true
}

func (p *Poller) nextSeq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return p.seq
}
