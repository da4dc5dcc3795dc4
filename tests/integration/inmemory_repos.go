package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mcp-logistics/internal/core/domain"
	"mcp-logistics/internal/core/ports"
	"mcp-logistics/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// The in-memory repos model the two properties the services rely on from
// PostgreSQL: row locks held until commit (FOR UPDATE) and undo-on-rollback.
// Each memTx carries the set of row locks it holds plus an undo journal;
// writes apply immediately and are reverted if the tx rolls back.

// --- Lock registry (one mutex per row id) ---

type lockRegistry struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (r *lockRegistry) get(id uuid.UUID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.locks[id]
	if !ok {
		m = &sync.Mutex{}
		r.locks[id] = m
	}
	return m
}

// --- In-Memory Transactor ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return newMemTx(), nil
}

// memTx is a pgx.Tx implementation carrying row locks and an undo journal.
type memTx struct {
	mu   sync.Mutex
	held map[uuid.UUID]*sync.Mutex
	undo []func()
	done bool
}

func newMemTx() *memTx {
	return &memTx{held: make(map[uuid.UUID]*sync.Mutex)}
}

// lock acquires the row lock for id, re-entrant within this tx.
func (t *memTx) lock(id uuid.UUID, reg *lockRegistry) {
	t.mu.Lock()
	if _, ok := t.held[id]; ok {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	m := reg.get(id)
	m.Lock()

	t.mu.Lock()
	t.held[id] = m
	t.mu.Unlock()
}

// onRollback registers an undo action run if the tx rolls back.
func (t *memTx) onRollback(fn func()) {
	t.mu.Lock()
	t.undo = append(t.undo, fn)
	t.mu.Unlock()
}

func (t *memTx) release() {
	for _, m := range t.held {
		m.Unlock()
	}
	t.held = make(map[uuid.UUID]*sync.Mutex)
	t.undo = nil
}

func (t *memTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.release()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.release()
	return nil
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet // keyed by wallet id
	locks   *lockRegistry
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{
		wallets: make(map[uuid.UUID]*domain.Wallet),
		locks:   newLockRegistry(),
	}
}

func (r *inMemoryWalletRepo) findByOwner(ownerID uuid.UUID) *domain.Wallet {
	for _, w := range r.wallets {
		if w.OwnerID == ownerID {
			return w
		}
	}
	return nil
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *w
	r.wallets[w.ID] = &stored
	if mtx, ok := tx.(*memTx); ok {
		mtx.lock(w.ID, r.locks)
		id := w.ID
		mtx.onRollback(func() {
			r.mu.Lock()
			delete(r.wallets, id)
			r.mu.Unlock()
		})
	}
	return nil
}

func (r *inMemoryWalletRepo) GetByOwnerID(ctx context.Context, ownerID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w := r.findByOwner(ownerID)
	if w == nil {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByOwnerIDForUpdate(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	w := r.findByOwner(ownerID)
	r.mu.RUnlock()
	if w == nil {
		return nil, nil
	}
	return r.lockAndRead(tx, w.ID)
}

func (r *inMemoryWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	return r.lockAndRead(tx, id)
}

// lockAndRead takes the row lock, then re-reads so the caller sees the state
// left by whichever tx held the lock before.
func (r *inMemoryWalletRepo) lockAndRead(tx pgx.Tx, walletID uuid.UUID) (*domain.Wallet, error) {
	if mtx, ok := tx.(*memTx); ok {
		mtx.lock(walletID, r.locks)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return pgx.ErrNoRows
	}
	prev := w.Balance
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	if mtx, ok := tx.(*memTx); ok {
		mtx.onRollback(func() {
			r.mu.Lock()
			if w, ok := r.wallets[walletID]; ok {
				w.Balance = prev
			}
			r.mu.Unlock()
		})
	}
	return nil
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction

	// failOn makes Create fail for a matching transaction, for atomicity tests.
	failOn func(*domain.Transaction) error
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{transactions: make(map[uuid.UUID]*domain.Transaction)}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != nil {
		if err := r.failOn(t); err != nil {
			return err
		}
	}
	for _, existing := range r.transactions {
		if existing.WalletID == t.WalletID && existing.Reference == t.Reference {
			return apperror.ErrDuplicateReference(t.Reference)
		}
	}
	stored := *t
	r.transactions[t.ID] = &stored
	if mtx, ok := tx.(*memTx); ok {
		id := t.ID
		mtx.onRollback(func() {
			r.mu.Lock()
			delete(r.transactions, id)
			r.mu.Unlock()
		})
	}
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryTransactionRepo) GetByReference(ctx context.Context, walletID uuid.UUID, reference string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transactions {
		if t.WalletID == walletID && t.Reference == reference {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransactionRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, reference string) (*domain.Transaction, error) {
	return r.GetByReference(ctx, walletID, reference)
}

func (r *inMemoryTransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return pgx.ErrNoRows
	}
	prev := t.Status
	t.Status = status
	if mtx, ok := tx.(*memTx); ok {
		mtx.onRollback(func() {
			r.mu.Lock()
			if t, ok := r.transactions[id]; ok {
				t.Status = prev
			}
			r.mu.Unlock()
		})
	}
	return nil
}

func (r *inMemoryTransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if t.WalletID != params.WalletID {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		result = append(result, *t)
	}
	total := int64(len(result))

	// Simple pagination
	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Transaction{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

// ledgerSum sums COMPLETED credits minus COMPLETED debits for a wallet,
// used by tests to check the balance invariant.
func (r *inMemoryTransactionRepo) ledgerSum(walletID uuid.UUID) decimal.Decimal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sum := decimal.Zero
	for _, t := range r.transactions {
		if t.WalletID != walletID || t.Status != domain.TransactionStatusCompleted {
			continue
		}
		sum = sum.Add(t.SignedAmount())
	}
	return sum
}

// --- In-Memory Order Repo ---

type inMemoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*domain.Order
	locks  *lockRegistry
}

func newInMemoryOrderRepo() *inMemoryOrderRepo {
	return &inMemoryOrderRepo{
		orders: make(map[uuid.UUID]*domain.Order),
		locks:  newLockRegistry(),
	}
}

func copyOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.StatusHistory = append([]domain.StatusChange(nil), o.StatusHistory...)
	return &cp
}

func (r *inMemoryOrderRepo) Create(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = copyOrder(order)
	return nil
}

func (r *inMemoryOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (r *inMemoryOrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error) {
	if mtx, ok := tx.(*memTx); ok {
		mtx.lock(id, r.locks)
	}
	return r.GetByID(ctx, id)
}

func (r *inMemoryOrderRepo) Save(ctx context.Context, tx pgx.Tx, order *domain.Order, history ...domain.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != order.Version {
		return apperror.ErrStaleWrite()
	}
	prev := copyOrder(stored)
	order.Version++
	r.orders[order.ID] = copyOrder(order)
	if mtx, ok := tx.(*memTx); ok {
		id := order.ID
		mtx.onRollback(func() {
			r.mu.Lock()
			r.orders[id] = prev
			r.mu.Unlock()
			order.Version--
		})
	}
	return nil
}

func (r *inMemoryOrderRepo) List(ctx context.Context, params ports.OrderListParams) ([]domain.Order, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Order
	for _, o := range r.orders {
		if params.MCPID != nil && o.MCPID != *params.MCPID {
			continue
		}
		if params.PartnerID != nil && (o.PickupPartnerID == nil || *o.PickupPartnerID != *params.PartnerID) {
			continue
		}
		if params.Status != nil && o.Status != *params.Status {
			continue
		}
		result = append(result, *copyOrder(o))
	}
	total := int64(len(result))

	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Order{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r *inMemoryOrderRepo) CountByStatus(ctx context.Context, mcpID uuid.UUID) (map[domain.OrderStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[domain.OrderStatus]int64)
	for _, o := range r.orders {
		if o.MCPID == mcpID {
			counts[o.Status]++
		}
	}
	return counts, nil
}

// --- In-Memory User Repo ---

type inMemoryUserRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*domain.User
}

func newInMemoryUserRepo() *inMemoryUserRepo {
	return &inMemoryUserRepo{users: make(map[uuid.UUID]*domain.User)}
}

func (r *inMemoryUserRepo) add(u *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *inMemoryUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *inMemoryUserRepo) ListPartners(ctx context.Context, mcpID uuid.UUID) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.User
	for _, u := range r.users {
		if u.Role == domain.RolePickupPartner && u.MCPID != nil && *u.MCPID == mcpID {
			result = append(result, *u)
		}
	}
	return result, nil
}

// --- In-Memory Idempotency Repo ---

type inMemoryIdempotencyRepo struct {
	mu   sync.RWMutex
	logs map[string]*domain.IdempotencyLog
}

func newInMemoryIdempotencyRepo() *inMemoryIdempotencyRepo {
	return &inMemoryIdempotencyRepo{logs: make(map[string]*domain.IdempotencyLog)}
}

func (r *inMemoryIdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// key is the table's primary key
	if _, exists := r.logs[log.Key]; exists {
		return fmt.Errorf("insert idempotency log %s: duplicate key", log.Key)
	}
	r.logs[log.Key] = log
	if mtx, ok := tx.(*memTx); ok {
		key := log.Key
		mtx.onRollback(func() {
			r.mu.Lock()
			delete(r.logs, key)
			r.mu.Unlock()
		})
	}
	return nil
}

func (r *inMemoryIdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.logs[key]
	if !ok {
		return nil, nil
	}
	return l, nil
}

// --- Capturing Notification Sink ---

type capturedEvent struct {
	Room  string
	Event domain.Event
}

type captureSink struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (s *captureSink) Publish(ctx context.Context, room string, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, capturedEvent{Room: room, Event: event})
	return nil
}

func (s *captureSink) byType(t domain.EventType) []capturedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []capturedEvent
	for _, e := range s.events {
		if e.Event.Type == t {
			result = append(result, e)
		}
	}
	return result
}
