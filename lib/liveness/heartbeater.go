package liveness

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/ValentinKolb/dReg/lib/table"
)

// Heartbeater keeps the heartbeat row of one client fresh.
//
// Thread-safety: all methods are safe for concurrent use.
type Heartbeater struct {
	locks      table.ILockTable
	heartbeats table.IHeartbeatTable
	cfg        Config

	id       int64
	name     string
	metadata map[string]string
	onLost   func(clientID int64)
	now      func() time.Time

	mu         sync.Mutex
	createTime time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// HeartbeaterOption configures optional parameters of a Heartbeater
type HeartbeaterOption func(*Heartbeater)

// WithClientName sets the human readable name stored in the heartbeat row
func WithClientName(name string) HeartbeaterOption {
	return func(h *Heartbeater) {
		h.name = name
	}
}

// WithMetadata sets the metadata stored in the heartbeat row
func WithMetadata(metadata map[string]string) HeartbeaterOption {
	return func(h *Heartbeater) {
		h.metadata = maps.Clone(metadata)
	}
}

// WithOnLost sets the callback invoked when the heartbeat row vanished.
// At that point all lock rows of the client are gone as well.
func WithOnLost(fn func(clientID int64)) HeartbeaterOption {
	return func(h *Heartbeater) {
		h.onLost = fn
	}
}

// NewHeartbeater creates a heartbeater for the client with the given id.
// If clientID is 0, a random id is generated (see NewClientID).
func NewHeartbeater(locks table.ILockTable, heartbeats table.IHeartbeatTable, clientID int64, cfg Config, opts ...HeartbeaterOption) *Heartbeater {
	if clientID == 0 {
		clientID = NewClientID()
	}
	h := &Heartbeater{
		locks:      locks,
		heartbeats: heartbeats,
		cfg:        cfg.withDefaults(),
		id:         clientID,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ID returns the client id
func (h *Heartbeater) ID() int64 {
	return h.id
}

// Start registers the client and refreshes its heartbeat row every interval
// until Stop is called or ctx is done.
func (h *Heartbeater) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done != nil {
		return fmt.Errorf("heartbeater of client %d already started", h.id)
	}

	h.createTime = h.now()
	if err := h.register(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.loop(loopCtx, h.done)

	log.Infof("client %d (%s) registered, heartbeat every %s", h.id, h.name, h.cfg.HeartbeatInterval)
	return nil
}

// Stop stops the heartbeat and removes the client's lock and heartbeat rows.
// Locks this client held become acquirable immediately.
func (h *Heartbeater) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done == nil {
		return nil
	}
	h.cancel()
	<-h.done
	h.cancel, h.done = nil, nil

	ids := []int64{h.id}
	err := errors.Join(
		h.locks.DeleteByClientIDs(ctx, ids),
		h.heartbeats.DeleteByIDs(ctx, ids),
	)
	if err != nil {
		return fmt.Errorf("deregister client %d: %w", h.id, err)
	}
	log.Infof("client %d deregistered", h.id)
	return nil
}

// --------------------------------------------------------------------------
// Internal Methods
// --------------------------------------------------------------------------

func (h *Heartbeater) record() table.HeartbeatRecord {
	return table.HeartbeatRecord{
		ID:                h.id,
		ClientName:        h.name,
		LastHeartbeatTime: h.now(),
		CreateTime:        h.createTime,
		Metadata:          h.metadata,
	}
}

// register inserts the heartbeat row. A row left over by a previous run with the same id is taken over.
func (h *Heartbeater) register(ctx context.Context) error {
	err := h.heartbeats.Insert(ctx, h.record())
	if table.IsDuplicateKey(err) {
		_, err = h.heartbeats.UpdateByID(ctx, h.record())
	}
	if err != nil {
		return fmt.Errorf("register client %d: %w", h.id, err)
	}
	return nil
}

// loop refreshes the heartbeat row until ctx is done
func (h *Heartbeater) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx)
		}
	}
}

// beat refreshes the heartbeat row once and re-registers the client if the row vanished
func (h *Heartbeater) beat(ctx context.Context) {
	updated, err := h.heartbeats.UpdateByID(ctx, h.record())
	if err != nil {
		if ctx.Err() == nil {
			heartbeatFailures.Inc()
			log.Warningf("heartbeat of client %d failed: %v", h.id, err)
		}
		return
	}
	if updated {
		heartbeatsTotal.Inc()
		return
	}

	// the row is gone, most likely the client was reaped while it was unreachable
	log.Warningf("heartbeat row of client %d vanished, locks of this client are lost", h.id)
	if h.onLost != nil {
		h.onLost(h.id)
	}
	if err := h.register(ctx); err != nil {
		heartbeatFailures.Inc()
		log.Warningf("%v", err)
		return
	}
	reregistrationsTotal.Inc()
}
