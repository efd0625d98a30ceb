// Package broker implements the Broker Message Processor (spec C7): the
// dbstore plugin's per-connection lifecycle state machine, handshake
// parameter publication, and per-notifier dispatch into a dbarchive.Archive.
//
// Grounded on coordinator/coordinator.go for the overall connMu-protected
// lifecycle shape and handler-dispatch pattern, on db/listener.go's fixed-1s
// select{ctx.Done(); time.After(time.Second)} reconnect loop, and on
// statemanager/manager.go's GetStats snapshot-and-reset aggregation for
// throughput statistics.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"scnotify.dev/archive"
	"scnotify.dev/datamodel"
	"scnotify.dev/dbarchive"
	"scnotify.dev/dbdriver"
	"scnotify.dev/notifier"
	"scnotify.dev/scmlog"
)

// State is one of the processor's lifecycle states (spec §4.7 state diagram).
type State int

const (
	StateUnconfigured State = iota
	StateOperational
	StateReconnecting
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateOperational:
		return "operational"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unconfigured"
	}
}

// Config configures a Processor (spec §6 dbstore plugin configuration keys).
type Config struct {
	Driver             string
	Write              string
	Read               string
	Proxy              bool
	StrictVersionMatch bool
	DeleteTree         bool
}

// ErrSchemaTooNew is returned by Init when the compiled schema version is
// newer than the connected database's and StrictVersionMatch is set (spec
// §4.7: "warn about data loss and, iff strictVersionMatch, fail
// initialisation").
var ErrSchemaTooNew = errors.New("broker: compiled schema newer than database")

// ErrNotOperational describes a processor that is not operational. Process
// does not return it: it returns a bool, and a message that arrives before
// Init succeeds or after Close is logged and dropped.
var ErrNotOperational = errors.New("broker: processor not operational")

// Stats is a point-in-time throughput snapshot (spec §4.7: "addedObjects,
// updatedObjects, removedObjects, errors ... divided by elapsed wall time").
type Stats struct {
	AddedObjects   float64
	UpdatedObjects float64
	RemovedObjects float64
	Errors         float64
	Elapsed        time.Duration
}

// Handshake is published to a connecting client (spec §6 handshake table).
type Handshake struct {
	DBSchemaVersion string
	DBDeleteTree    bool
	DBAccess        string
}

// Processor is the dbstore message processor: one instance per broker
// connection, owning a dbarchive.Archive and the current lifecycle state.
type Processor struct {
	mu    sync.RWMutex
	state State
	cfg   Config
	arc   *dbarchive.Archive
	drv   dbdriver.Interface

	ctx    context.Context
	cancel context.CancelFunc

	registrationDisabled atomic.Bool

	added, updated, removed, errs atomic.Uint64
	statsSince                    atomic.Int64 // unix nanos, set on Init and on each Stats() read

	log *scmlog.ContextLogger
}

// NewProcessor creates an Unconfigured Processor bound to drv/arc.
func NewProcessor(drv dbdriver.Interface, arc *dbarchive.Archive) *Processor {
	return &Processor{
		drv: drv,
		arc: arc,
		log: scmlog.NewContextLogger(nil, map[string]any{"component": "broker"}),
	}
}

// State reports the current lifecycle state.
func (p *Processor) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Init connects the underlying driver, checks the schema version, and
// transitions Unconfigured -> Operational (or -> Failed on error). ctx's
// cancellation becomes Processor's lifetime signal: Close also cancels it,
// and the reconnect loop observes it.
func (p *Processor) Init(ctx context.Context, cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateUnconfigured {
		return fmt.Errorf("broker: Init called from state %s", p.state)
	}

	p.cfg = cfg
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.statsSince.Store(time.Now().UnixNano())

	if err := p.connectLocked(p.ctx, 3); err != nil {
		p.state = StateFailed
		return fmt.Errorf("broker: init: %w", err)
	}

	if err := p.checkSchemaVersionLocked(); err != nil {
		if cfg.StrictVersionMatch {
			p.state = StateFailed
			return err
		}
		p.log.WithError(err).Warn("schema version mismatch tolerated (strictVersionMatch=false)")
	}

	p.state = StateOperational
	p.log.WithFields(map[string]any{"driver": cfg.Driver}).Info("processor operational")
	return nil
}

// checkSchemaVersionLocked compares the compiled archive version to the
// connected archive's reported version (spec §4.7: "compare compiled (Major,
// Minor) with the archive's reported version"). Caller must hold p.mu.
func (p *Processor) checkSchemaVersionLocked() error {
	compiled := archive.CompiledVersion
	stored := p.arc.Version()
	if compiled.NewerThan(stored) {
		return fmt.Errorf("%w: compiled %s > stored %s", ErrSchemaTooNew, compiled, stored)
	}
	return nil
}

// connectLocked attempts to (re)connect the driver, making up to
// maxRetries attempts (maxRetries <= 0 means unbounded) with a fixed one-second
// delay between attempts, cancellable via p.ctx. This is the bounded variant
// used by Init; the running connection-loss path uses the unbounded
// reconnect loop in reconnectLoop instead. Caller must hold p.mu.
func (p *Processor) connectLocked(ctx context.Context, maxRetries int) error {
	var lastErr error
	for attempt := 0; maxRetries <= 0 || attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.drv.Connect(ctx, p.cfg.Write); err != nil {
			lastErr = err
			p.log.WithError(err).Warn("connect failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("broker: connect: exhausted retries: %w", lastErr)
}

// reconnectLoop is the unbounded reconnect-on-drop path used while
// Operational (spec §4.7: "loop: call connect(retries=infinity) which sleeps
// one second between attempts, until reconnected or operational=false"),
// grounded verbatim on db/listener.go's listenLoop select shape.
func (p *Processor) reconnectLoop(ctx context.Context) error {
	p.mu.Lock()
	p.state = StateReconnecting
	p.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := p.drv.Connect(ctx, p.cfg.Write); err != nil {
			p.log.WithError(err).Warn("reconnect failed, retrying in 1s")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				continue
			}
		}

		p.mu.Lock()
		p.state = StateOperational
		p.mu.Unlock()
		p.log.Info("reconnected")
		return nil
	}
}

// Handshake returns the parameters to publish to a newly connected client
// (spec §6 handshake table).
func (p *Processor) Handshake() Handshake {
	p.mu.RLock()
	defer p.mu.RUnlock()

	access := fmt.Sprintf("%s://%s", p.cfg.Driver, p.cfg.Read)
	if p.cfg.Proxy {
		access = "proxy://"
	}

	return Handshake{
		DBSchemaVersion: archive.CompiledVersion.String(),
		DBDeleteTree:    p.cfg.DeleteTree,
		DBAccess:        access,
	}
}

// Process dispatches every notifier in msg into the database archive,
// reconnecting and retrying on a dead connection, dropping a notifier
// without retry when the connection is alive but the query itself failed
// (spec §4.7 step 4; spec §9: "a bad query cannot be retried usefully").
// Process always returns true: it signals its host only via Stats and logs,
// never by aborting the caller's message loop (spec §9 decision, preserved
// verbatim from the source's "otherwise the master will stop..." rationale).
func (p *Processor) Process(ctx context.Context, msg *notifier.Message) bool {
	if p.State() != StateOperational && p.State() != StateReconnecting {
		p.log.Warn("Process called while not operational; dropping message")
		return true
	}

	if p.registrationDisabled.CompareAndSwap(false, true) {
		p.log.Debug("disabling public-object registration after first message")
	}

	for _, n := range msg.Notifiers {
		p.processNotifier(ctx, n)
	}
	return true
}

// processNotifier dispatches a single notifier, retrying it from the top
// after every successful reconnect (with no limit on the number of
// rounds), per spec §4.7 step 4.
func (p *Processor) processNotifier(ctx context.Context, n *notifier.Notifier) {
	for {
		err := p.applyNotifier(ctx, n)
		if err == nil {
			return
		}

		if p.drv.IsConnected() {
			p.errs.Add(1)
			p.log.WithError(err).WithFields(map[string]any{
				"op":        n.Op.String(),
				"parent_id": n.ParentID,
			}).Error("notifier dropped after query failure")
			return
		}

		p.log.WithError(err).Warn("connection lost, entering reconnect loop")
		if err := p.reconnectLoop(ctx); err != nil {
			p.log.WithError(err).Warn("reconnect loop aborted (processor shutting down)")
			return
		}
		// Connection restored: retry the same notifier from the top.
	}
}

func (p *Processor) applyNotifier(ctx context.Context, n *notifier.Notifier) error {
	subjectClass, ok := n.Subject.(interface{ ClassName() string })
	if !ok {
		return fmt.Errorf("broker: subject has no ClassName()")
	}
	className := subjectClass.ClassName()

	parentOID := datamodel.InvalidOID
	if n.ParentID != "" {
		oid, err := p.arc.ResolveOID(ctx, n.ParentID)
		if err == nil {
			parentOID = oid
		}
	}

	switch n.Op {
	case notifier.OpAdd:
		if _, err := p.arc.Write(ctx, n.Subject, parentOID, true); err != nil {
			return err
		}
		p.added.Add(1)
		return nil

	case notifier.OpUpdate:
		oid, err := p.resolveSubjectOID(ctx, n.Subject)
		if err != nil {
			return err
		}
		if err := p.arc.Update(ctx, n.Subject, oid); err != nil {
			return err
		}
		p.updated.Add(1)
		return nil

	case notifier.OpRemove:
		if p.cfg.DeleteTree {
			if publicObj, ok := n.Subject.(interface{ PublicID() string }); ok {
				if err := p.arc.DeleteTree(ctx, className, publicObj.PublicID(), dbarchive.DeleteTreeOptions{}); err != nil {
					return err
				}
				p.removed.Add(1)
				return nil
			}
		}
		oid, err := p.resolveSubjectOID(ctx, n.Subject)
		if err != nil {
			return err
		}
		if err := p.arc.Remove(ctx, className, oid); err != nil {
			return err
		}
		p.removed.Add(1)
		return nil

	default:
		return fmt.Errorf("broker: unknown operation %v", n.Op)
	}
}

func (p *Processor) resolveSubjectOID(ctx context.Context, subject any) (datamodel.OID, error) {
	publicObj, ok := subject.(interface{ PublicID() string })
	if !ok {
		return datamodel.InvalidOID, fmt.Errorf("broker: subject is not a PublicObject, cannot resolve OID")
	}
	return p.arc.ResolveOID(ctx, publicObj.PublicID())
}

// Stats returns the accumulated counters divided by elapsed wall time since
// the previous call (or since Init, on the first call), then resets both
// the counters and the elapsed-time baseline (spec §4.7: "accumulated and,
// on each getInfo tick, divided by elapsed wall time, reported, and reset").
func (p *Processor) Stats() Stats {
	now := time.Now()
	prev := time.Unix(0, p.statsSince.Swap(now.UnixNano()))
	elapsed := now.Sub(prev)

	added := float64(p.added.Swap(0))
	updated := float64(p.updated.Swap(0))
	removed := float64(p.removed.Swap(0))
	errs := float64(p.errs.Swap(0))

	seconds := elapsed.Seconds()
	if seconds <= 0 {
		seconds = 1
	}

	return Stats{
		AddedObjects:   added / seconds,
		UpdatedObjects: updated / seconds,
		RemovedObjects: removed / seconds,
		Errors:         errs / seconds,
		Elapsed:        elapsed,
	}
}

// Run drains inbox until ctx is cancelled or inbox is closed, calling
// Process for each message (spec §6: "processor.Run(ctx, inbox chan
// *notifier.Message)").
func (p *Processor) Run(ctx context.Context, inbox <-chan *notifier.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbox:
			if !ok {
				return
			}
			p.Process(ctx, msg)
		}
	}
}

// Close transitions the processor to Stopped, cancelling its context (which
// unblocks any in-progress reconnect loop) and disconnecting the driver.
func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateStopped {
		return nil
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.state = StateStopped
	return p.drv.Disconnect()
}
