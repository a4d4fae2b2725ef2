package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/bazaarhq/inbox/internal/bus"
	"github.com/bazaarhq/inbox/internal/inbox"
	"github.com/bazaarhq/inbox/internal/poll"
	"github.com/bazaarhq/inbox/internal/store"
	"go.uber.org/zap"
)

// Engine mirrors every applied inbox snapshot into the store so the daemon
// can warm start and search offline. It subscribes to poll.snapshot events.
type Engine struct {
	db     *store.DB
	owner  inbox.Identity
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func NewEngine(db *store.DB, owner inbox.Identity, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{db: db, owner: owner, bus: b, logger: logger}
}

// Seeder accepts a cached snapshot before live data arrives.
type Seeder interface {
	Seed(msgs []inbox.Message, fetchedAt time.Time)
}

// WarmStart seeds s with the cached snapshot for the engine's owner. It
// reports how many messages were loaded.
func (e *Engine) WarmStart(s Seeder) (int, error) {
	if e.owner == "" {
		return 0, nil
	}
	snap, err := e.db.LoadSnapshot(e.owner)
	if err != nil {
		return 0, fmt.Errorf("load cached snapshot: %w", err)
	}
	if len(snap.Messages) == 0 {
		return 0, nil
	}
	s.Seed(snap.Messages, snap.FetchedAt)
	return len(snap.Messages), nil
}

// Start subscribes to inbox snapshots on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe(bus.KindInboxSnapshot, 8)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the subscription and waits for an in-progress write.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	snap, ok := evt.Payload.(poll.Snapshot)
	if !ok {
		return
	}
	if err := e.Persist(snap); err != nil {
		e.logger.Error("failed to cache inbox snapshot", zap.Error(err), zap.Int("messages", len(snap.Messages)))
		return
	}
	e.logger.Debug("inbox snapshot cached", zap.Uint64("seq", snap.Seq), zap.Int("messages", len(snap.Messages)))
}

// Persist replaces the cached snapshot with snap. Stale snapshots are not
// written: they carry nothing the cache lacks.
func (e *Engine) Persist(snap poll.Snapshot) error {
	if e.owner == "" || snap.Stale {
		return nil
	}
	if err := e.db.ReplaceSnapshot(e.owner, snap.Messages, snap.FetchedAt); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
