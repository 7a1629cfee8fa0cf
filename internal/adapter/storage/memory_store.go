package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/port"
)

type memoryState struct {
	owner          string
	lastPropertyID uint64
	lastSplitID    uint64
	properties     map[uint64]domain.Property
	splits         map[uint64]domain.Split
	splitByToken   map[string]uint64
	offers         map[uint64][]domain.PurchaseOffer
	sagas          map[uuid.UUID]domain.Saga
	sagaByKey      map[string]uuid.UUID
	holds          map[uuid.UUID]domain.EscrowHold
	entries        []domain.LedgerEntry
}

func newMemoryState() *memoryState {
	return &memoryState{
		properties:   make(map[uint64]domain.Property),
		splits:       make(map[uint64]domain.Split),
		splitByToken: make(map[string]uint64),
		offers:       make(map[uint64][]domain.PurchaseOffer),
		sagas:        make(map[uuid.UUID]domain.Saga),
		sagaByKey:    make(map[string]uuid.UUID),
		holds:        make(map[uuid.UUID]domain.EscrowHold),
	}
}

func copySaga(s domain.Saga) domain.Saga {
	if s.Mint != nil {
		mc := *s.Mint
		s.Mint = &mc
	}
	if s.Transfer != nil {
		tc := *s.Transfer
		s.Transfer = &tc
	}
	return s
}

// MemoryStore keeps the ledger in process. A transaction writes to the live
// state and records an undo step per write; a failed transaction replays the
// steps in reverse.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (m *MemoryStore) Atomically(ctx context.Context, fn func(tx port.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{s: m.state}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

type memoryTx struct {
	s     *memoryState
	undos []func()
}

func (t *memoryTx) rollback() {
	for i := len(t.undos) - 1; i >= 0; i-- {
		t.undos[i]()
	}
	t.undos = nil
}

// remember records how to put m[k] back to its current value.
func remember[K comparable, V any](t *memoryTx, m map[K]V, k K) {
	old, existed := m[k]
	t.undos = append(t.undos, func() {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func (t *memoryTx) MarketplaceOwner() (string, error) {
	if t.s.owner == "" {
		return "", domain.ErrNotFound
	}
	return t.s.owner, nil
}

func (t *memoryTx) SetMarketplaceOwner(account string) error {
	old := t.s.owner
	t.undos = append(t.undos, func() { t.s.owner = old })
	t.s.owner = account
	return nil
}

func (t *memoryTx) NextPropertyID() (uint64, error) {
	return t.s.lastPropertyID + 1, nil
}

func (t *memoryTx) InsertProperty(p domain.Property) error {
	if _, exists := t.s.properties[p.ID]; exists {
		return fmt.Errorf("property %d already exists", p.ID)
	}
	p.SplitIDs = nil
	remember(t, t.s.properties, p.ID)
	t.s.properties[p.ID] = p
	if p.ID > t.s.lastPropertyID {
		last := t.s.lastPropertyID
		t.undos = append(t.undos, func() { t.s.lastPropertyID = last })
		t.s.lastPropertyID = p.ID
	}
	return nil
}

func (t *memoryTx) GetProperty(id uint64) (*domain.Property, error) {
	p, ok := t.s.properties[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p.SplitIDs = append([]uint64{}, p.SplitIDs...)
	return &p, nil
}

func (t *memoryTx) UpdatePropertyValuation(id uint64, valuation decimal.Decimal) error {
	p, ok := t.s.properties[id]
	if !ok {
		return domain.ErrNotFound
	}
	remember(t, t.s.properties, id)
	p.Valuation = valuation
	t.s.properties[id] = p
	return nil
}

func (t *memoryTx) ListProperties() ([]domain.Property, error) {
	out := make([]domain.Property, 0, len(t.s.properties))
	for _, p := range t.s.properties {
		p.SplitIDs = append([]uint64{}, p.SplitIDs...)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) NextSplitID() (uint64, error) {
	return t.s.lastSplitID + 1, nil
}

func (t *memoryTx) InsertSplit(s domain.Split) error {
	p, ok := t.s.properties[s.PropertyID]
	if !ok {
		return fmt.Errorf("property %d: %w", s.PropertyID, domain.ErrNotFound)
	}
	if _, exists := t.s.splits[s.ID]; exists {
		return fmt.Errorf("split %d already exists", s.ID)
	}
	if _, exists := t.s.splitByToken[s.TokenID]; exists {
		return fmt.Errorf("token %s already indexed", s.TokenID)
	}

	remember(t, t.s.splits, s.ID)
	remember(t, t.s.splitByToken, s.TokenID)
	remember(t, t.s.properties, p.ID)
	t.s.splits[s.ID] = s
	t.s.splitByToken[s.TokenID] = s.ID
	// The stored slice may back the value the undo step restores.
	ids := append(make([]uint64, 0, len(p.SplitIDs)+1), p.SplitIDs...)
	ids = append(ids, s.ID)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	p.SplitIDs = ids
	t.s.properties[p.ID] = p
	if s.ID > t.s.lastSplitID {
		last := t.s.lastSplitID
		t.undos = append(t.undos, func() { t.s.lastSplitID = last })
		t.s.lastSplitID = s.ID
	}
	return nil
}

func (t *memoryTx) GetSplit(id uint64) (*domain.Split, error) {
	s, ok := t.s.splits[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (t *memoryTx) GetSplitByToken(tokenID string) (*domain.Split, error) {
	id, ok := t.s.splitByToken[tokenID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t.GetSplit(id)
}

func (t *memoryTx) UpdateSplit(s domain.Split) error {
	old, ok := t.s.splits[s.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if old.TokenID != s.TokenID || old.PropertyID != s.PropertyID {
		return fmt.Errorf("split %d: token and property are immutable", s.ID)
	}
	remember(t, t.s.splits, s.ID)
	t.s.splits[s.ID] = s
	return nil
}

func (t *memoryTx) ListSplits() ([]domain.Split, error) {
	out := make([]domain.Split, 0, len(t.s.splits))
	for _, s := range t.s.splits {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) ListOffers(splitID uint64) ([]domain.PurchaseOffer, error) {
	return append([]domain.PurchaseOffer{}, t.s.offers[splitID]...), nil
}

func (t *memoryTx) InsertOffer(o domain.PurchaseOffer) error {
	list := t.s.offers[o.SplitID]
	if n := len(list); n > 0 && list[n-1].ID >= o.ID {
		return fmt.Errorf("offer %d on split %d out of sequence", o.ID, o.SplitID)
	}
	remember(t, t.s.offers, o.SplitID)
	t.s.offers[o.SplitID] = append(list, o)
	return nil
}

func (t *memoryTx) ClearOffers(splitID uint64) error {
	remember(t, t.s.offers, splitID)
	delete(t.s.offers, splitID)
	return nil
}

func (t *memoryTx) InsertSaga(s domain.Saga) error {
	if _, exists := t.s.sagaByKey[s.CorrelationKey]; exists {
		return fmt.Errorf("saga correlation %s already recorded", s.CorrelationKey)
	}
	remember(t, t.s.sagas, s.ID)
	remember(t, t.s.sagaByKey, s.CorrelationKey)
	t.s.sagas[s.ID] = copySaga(s)
	t.s.sagaByKey[s.CorrelationKey] = s.ID
	return nil
}

func (t *memoryTx) GetSaga(id uuid.UUID) (*domain.Saga, error) {
	s, ok := t.s.sagas[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s = copySaga(s)
	return &s, nil
}

func (t *memoryTx) FindSagaByCorrelation(key string) (*domain.Saga, error) {
	id, ok := t.s.sagaByKey[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t.GetSaga(id)
}

func (t *memoryTx) UpdateSaga(s domain.Saga) error {
	stored, ok := t.s.sagas[s.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != domain.SagaStatusRequested {
		return fmt.Errorf("%w: saga %s is %s", domain.ErrSagaConflict, s.ID, stored.Status)
	}
	remember(t, t.s.sagas, s.ID)
	t.s.sagas[s.ID] = copySaga(s)
	return nil
}

func (t *memoryTx) ListSagas(status domain.SagaStatus) ([]domain.Saga, error) {
	var out []domain.Saga
	for _, s := range t.s.sagas {
		if s.Status == status {
			out = append(out, copySaga(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CorrelationKey < out[j].CorrelationKey
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (t *memoryTx) InsertHold(h domain.EscrowHold) error {
	if _, exists := t.s.holds[h.ID]; exists {
		return fmt.Errorf("hold %s already exists", h.ID)
	}
	remember(t, t.s.holds, h.ID)
	t.s.holds[h.ID] = h
	return nil
}

func (t *memoryTx) GetHold(id uuid.UUID) (*domain.EscrowHold, error) {
	h, ok := t.s.holds[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &h, nil
}

func (t *memoryTx) UpdateHold(h domain.EscrowHold) error {
	if _, ok := t.s.holds[h.ID]; !ok {
		return domain.ErrNotFound
	}
	remember(t, t.s.holds, h.ID)
	t.s.holds[h.ID] = h
	return nil
}

func (t *memoryTx) AppendEntry(e domain.LedgerEntry) error {
	n := len(t.s.entries)
	t.undos = append(t.undos, func() { t.s.entries = t.s.entries[:n] })
	t.s.entries = append(t.s.entries, e)
	return nil
}

func (t *memoryTx) ListEntries(account string) ([]domain.LedgerEntry, error) {
	out := []domain.LedgerEntry{}
	for _, e := range t.s.entries {
		if e.Account == account {
			out = append(out, e)
		}
	}
	return out, nil
}
