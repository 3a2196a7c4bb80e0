package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dhanbg/traditionalalley-sub002/internal/domain"
	"github.com/dhanbg/traditionalalley-sub002/internal/remote"
)

// RemoteStore is the line-item store surface the worker mutates.
type RemoteStore interface {
	CreateLineItem(ctx context.Context, req remote.CreateLineItemRequest) (*remote.LineItemRecord, error)
	UpdateLineItemQuantity(ctx context.Context, documentID string, quantity int) (*remote.LineItemRecord, error)
	DeleteLineItemByDocumentID(ctx context.Context, documentID string) error
	DeleteLineItemByID(ctx context.Context, id int64) error
	ListLineItems(ctx context.Context, bagDocumentID string) ([]remote.LineItemRecord, error)
}

// BagProvider resolves the user's bag, provisioning it on first contact.
type BagProvider interface {
	EnsureBag(ctx context.Context, userID string) (*remote.BagRecord, error)
}

// Matcher resolves a local item against a remote listing.
type Matcher interface {
	ResolveExistingLineItem(item domain.LineItem, records []remote.LineItemRecord) (*remote.LineItemRecord, bool)
}

// StateStore is the slice of the cart store the worker reads current item
// state from and writes results back through. The mutators report false when
// the item has since been removed.
type StateStore interface {
	Get(localID string) (domain.LineItem, bool)
	Link(localID string, remoteLineID int64, remoteLineDocumentID string) bool
	SetState(localID string, state domain.SyncState) bool
}

// Publisher receives lifecycle notifications for downstream consumers.
// Publishing is best effort; implementations must not block for long.
type Publisher interface {
	ItemLinked(ctx context.Context, userID string, item domain.LineItem)
}

type opKind string

const (
	opCreate opKind = "create"
	opUpdate opKind = "update"
	opDelete opKind = "delete"
)

type syncOp struct {
	kind opKind
	item domain.LineItem
	// suppliedDocumentID is a caller-provided remote document id for a
	// delete, tried before the item's own stored identifiers.
	suppliedDocumentID string
}

type itemQueue struct {
	ops     []syncOp
	running bool
}

// Worker propagates local cart mutations to the remote line-item store.
// Operations for one local id run strictly in order on a single goroutine;
// operations for different items proceed concurrently. Every remote call is
// made exactly once per trigger: there is no retry loop, and every failure
// is absorbed here. A failed create or update heals the next time the user
// touches the same item.
type Worker struct {
	userID    string
	remote    RemoteStore
	bags      BagProvider
	matcher   Matcher
	state     StateStore
	events    Publisher
	logger    *slog.Logger
	opTimeout time.Duration

	mu     sync.Mutex
	queues map[string]*itemQueue
	wg     sync.WaitGroup
}

// NewWorker creates a sync worker for one user session. Bind must be called
// with the cart store before any operation is enqueued.
func NewWorker(userID string, remoteStore RemoteStore, bags BagProvider, matcher Matcher, events Publisher, opTimeout time.Duration, logger *slog.Logger) *Worker {
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	return &Worker{
		userID:    userID,
		remote:    remoteStore,
		bags:      bags,
		matcher:   matcher,
		events:    events,
		logger:    logger,
		opTimeout: opTimeout,
		queues:    make(map[string]*itemQueue),
	}
}

// Bind attaches the state store the worker writes sync results through.
// Breaks the construction cycle between the cart store and the worker.
func (w *Worker) Bind(state StateStore) {
	w.state = state
}

// EnqueueCreate schedules a remote create for a newly added item.
func (w *Worker) EnqueueCreate(item domain.LineItem) {
	w.enqueue(syncOp{kind: opCreate, item: item})
}

// EnqueueUpdate schedules a remote quantity update.
func (w *Worker) EnqueueUpdate(item domain.LineItem) {
	w.enqueue(syncOp{kind: opUpdate, item: item})
}

// EnqueueDelete schedules a remote delete for a removed item.
func (w *Worker) EnqueueDelete(item domain.LineItem) {
	w.enqueue(syncOp{kind: opDelete, item: item})
}

// EnqueueDeleteWithHint schedules a remote delete with a caller-supplied
// document id tried ahead of the item's stored identifiers.
func (w *Worker) EnqueueDeleteWithHint(item domain.LineItem, documentID string) {
	w.enqueue(syncOp{kind: opDelete, item: item, suppliedDocumentID: documentID})
}

func (w *Worker) enqueue(op syncOp) {
	syncQueueDepth.Inc()

	w.mu.Lock()
	q, ok := w.queues[op.item.LocalID]
	if !ok {
		q = &itemQueue{}
		w.queues[op.item.LocalID] = q
	}
	q.ops = append(q.ops, op)
	if !q.running {
		q.running = true
		w.wg.Add(1)
		go w.drain(op.item.LocalID, q)
	}
	w.mu.Unlock()
}

// drain processes one item's queue in FIFO order and exits when it empties.
func (w *Worker) drain(localID string, q *itemQueue) {
	defer w.wg.Done()

	for {
		w.mu.Lock()
		if len(q.ops) == 0 {
			q.running = false
			delete(w.queues, localID)
			w.mu.Unlock()
			return
		}
		op := q.ops[0]
		q.ops = q.ops[1:]
		w.mu.Unlock()

		w.process(op)
		syncQueueDepth.Dec()
	}
}

func (w *Worker) process(op syncOp) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opTimeout)
	defer cancel()

	var err error
	switch op.kind {
	case opCreate:
		err = w.processCreate(ctx, op.item)
	case opUpdate:
		err = w.processUpdate(ctx, op.item)
	case opDelete:
		err = w.processDelete(ctx, op)
	}

	if err != nil {
		syncOpsTotal.WithLabelValues(string(op.kind), "failure").Inc()
		w.logger.WarnContext(ctx, "sync operation failed",
			slog.String("op", string(op.kind)),
			slog.String("local_id", op.item.LocalID),
			slog.String("user_id", w.userID),
			slog.String("error", err.Error()),
		)
		return
	}
	syncOpsTotal.WithLabelValues(string(op.kind), "success").Inc()
}

func (w *Worker) processCreate(ctx context.Context, item domain.LineItem) error {
	// Re-read at process time: a queued op carries a snapshot, but the user
	// may have mutated or removed the item while earlier ops drained.
	current, ok := w.state.Get(item.LocalID)
	if !ok {
		return nil
	}
	item = current

	w.state.SetState(item.LocalID, domain.SyncStateSyncing)

	bag, err := w.bags.EnsureBag(ctx, w.userID)
	if err != nil {
		w.state.SetState(item.LocalID, domain.SyncStateLocalOnly)
		return err
	}

	rec, err := w.remote.CreateLineItem(ctx, remote.CreateLineItemRequest{
		BagDocumentID:     bag.DocumentID,
		ProductDocumentID: item.ProductDocumentID,
		VariantID:         item.VariantID,
		Size:              item.Size,
		Quantity:          item.Quantity,
	})
	if err != nil {
		w.state.SetState(item.LocalID, domain.SyncStateLocalOnly)
		return err
	}

	w.link(ctx, item, rec)
	return nil
}

func (w *Worker) processUpdate(ctx context.Context, item domain.LineItem) error {
	current, ok := w.state.Get(item.LocalID)
	if !ok {
		return nil
	}
	item = current

	w.state.SetState(item.LocalID, domain.SyncStateSyncing)

	if item.RemoteLineDocumentID != "" {
		rec, err := w.remote.UpdateLineItemQuantity(ctx, item.RemoteLineDocumentID, item.Quantity)
		if err != nil {
			w.restoreState(item)
			return err
		}
		w.link(ctx, item, rec)
		return nil
	}

	// No document id yet: resolve against the remote listing, update the
	// match, or create the record when nothing matches.
	bag, err := w.bags.EnsureBag(ctx, w.userID)
	if err != nil {
		w.restoreState(item)
		return err
	}

	records, err := w.remote.ListLineItems(ctx, bag.DocumentID)
	if err != nil {
		w.restoreState(item)
		return err
	}

	if match, ok := w.matcher.ResolveExistingLineItem(item, records); ok {
		rec, err := w.remote.UpdateLineItemQuantity(ctx, match.DocumentID, item.Quantity)
		if err != nil {
			w.restoreState(item)
			return err
		}
		w.link(ctx, item, rec)
		return nil
	}

	rec, err := w.remote.CreateLineItem(ctx, remote.CreateLineItemRequest{
		BagDocumentID:     bag.DocumentID,
		ProductDocumentID: item.ProductDocumentID,
		VariantID:         item.VariantID,
		Size:              item.Size,
		Quantity:          item.Quantity,
	})
	if err != nil {
		w.restoreState(item)
		return err
	}
	w.link(ctx, item, rec)
	return nil
}

// processDelete runs the delete fallback chain: the supplied document id,
// the stored document id, the stored numeric id, then a full listing plus
// identity resolution. The local removal already happened and stands
// regardless of the outcome here.
func (w *Worker) processDelete(ctx context.Context, op syncOp) error {
	item := op.item

	if op.suppliedDocumentID != "" {
		err := w.remote.DeleteLineItemByDocumentID(ctx, op.suppliedDocumentID)
		if err == nil {
			return nil
		}
		w.logger.DebugContext(ctx, "delete by supplied document id failed, falling back",
			slog.String("local_id", item.LocalID),
			slog.String("error", err.Error()),
		)
	}

	if item.RemoteLineDocumentID != "" && item.RemoteLineDocumentID != op.suppliedDocumentID {
		err := w.remote.DeleteLineItemByDocumentID(ctx, item.RemoteLineDocumentID)
		if err == nil {
			return nil
		}
		w.logger.DebugContext(ctx, "delete by stored document id failed, falling back",
			slog.String("local_id", item.LocalID),
			slog.String("error", err.Error()),
		)
	}

	if item.RemoteLineID != 0 {
		err := w.remote.DeleteLineItemByID(ctx, item.RemoteLineID)
		if err == nil {
			return nil
		}
		w.logger.DebugContext(ctx, "delete by numeric id failed, falling back",
			slog.String("local_id", item.LocalID),
			slog.String("error", err.Error()),
		)
	}

	bag, err := w.bags.EnsureBag(ctx, w.userID)
	if err != nil {
		w.orphan(ctx, item, err)
		return err
	}

	records, err := w.remote.ListLineItems(ctx, bag.DocumentID)
	if err != nil {
		w.orphan(ctx, item, err)
		return err
	}

	match, ok := w.matcher.ResolveExistingLineItem(item, records)
	if !ok {
		// Nothing remote corresponds to this item; there is nothing left
		// to delete.
		return nil
	}

	if err := w.remote.DeleteLineItemByDocumentID(ctx, match.DocumentID); err != nil {
		w.orphan(ctx, item, err)
		return err
	}
	return nil
}

// link writes the remote identifiers back onto the local item. When the item
// was removed while the call was in flight, the remote record just written
// is left behind for the queued delete (or a later reconciliation) to clear.
func (w *Worker) link(ctx context.Context, item domain.LineItem, rec *remote.LineItemRecord) {
	if !w.state.Link(item.LocalID, rec.ID, rec.DocumentID) {
		w.logger.WarnContext(ctx, "item removed while sync was in flight",
			slog.String("local_id", item.LocalID),
			slog.String("remote_line_document_id", rec.DocumentID),
		)
		return
	}

	if w.events != nil {
		linked := item
		linked.RemoteLineID = rec.ID
		linked.RemoteLineDocumentID = rec.DocumentID
		linked.State = domain.SyncStateLinked
		w.events.ItemLinked(ctx, w.userID, linked)
	}
}

func (w *Worker) restoreState(item domain.LineItem) {
	if item.Linked() {
		w.state.SetState(item.LocalID, domain.SyncStateLinked)
	} else {
		w.state.SetState(item.LocalID, domain.SyncStateLocalOnly)
	}
}

func (w *Worker) orphan(ctx context.Context, item domain.LineItem, err error) {
	syncOrphansTotal.Inc()
	w.logger.WarnContext(ctx, "delete fallback chain exhausted, remote record may be orphaned",
		slog.String("local_id", item.LocalID),
		slog.String("user_id", w.userID),
		slog.Int64("remote_line_id", item.RemoteLineID),
		slog.String("remote_line_document_id", item.RemoteLineDocumentID),
		slog.String("error", err.Error()),
	)
}

// Wait blocks until every enqueued operation has been processed. Used by
// graceful shutdown and tests.
func (w *Worker) Wait() {
	w.wg.Wait()
}
