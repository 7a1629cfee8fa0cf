package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/split-market/internal/core/domain"
	"github.com/rl1809/split-market/internal/port"
)

type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.dialect.name, err)
		}
	}
	return nil
}

func (s *SQLStore) Atomically(ctx context.Context, fn func(tx port.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{ctx: ctx, tx: tx, dialect: s.dialect}); err != nil {
		return err
	}
	return tx.Commit()
}

type sqlTx struct {
	ctx     context.Context
	tx      *sql.Tx
	dialect dialect
}

func (t *sqlTx) exec(query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(t.ctx, query, args...)
}

// execOne runs an UPDATE that must touch exactly one row.
func (t *sqlTx) execOne(query string, args ...any) error {
	result, err := t.exec(query, args...)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// ---------- Settings ----------

func (t *sqlTx) MarketplaceOwner() (string, error) {
	var owner string
	err := t.tx.QueryRowContext(t.ctx, `SELECT value FROM settings WHERE name = 'marketplace_owner'`).Scan(&owner)
	if err != nil {
		return "", notFound(err)
	}
	return owner, nil
}

func (t *sqlTx) SetMarketplaceOwner(account string) error {
	if _, err := t.exec(t.dialect.upsertOwner, account); err != nil {
		return fmt.Errorf("upsert owner: %w", err)
	}
	return nil
}

// ---------- Properties ----------

func (t *sqlTx) NextPropertyID() (uint64, error) {
	var id uint64
	err := t.tx.QueryRowContext(t.ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM properties`).Scan(&id)
	return id, err
}

func (t *sqlTx) InsertProperty(p domain.Property) error {
	_, err := t.exec(`
		INSERT INTO properties (id, name, image, identifier, valuation, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Image, p.Identifier, p.Valuation.String(), p.CreatedBy, millis(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert property: %w", err)
	}
	return nil
}

const propertyColumns = `id, name, image, identifier, valuation, created_by, created_at`

func scanProperty(row interface{ Scan(...any) error }) (domain.Property, error) {
	var (
		p         domain.Property
		createdAt int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.Image, &p.Identifier, &p.Valuation, &p.CreatedBy, &createdAt)
	p.CreatedAt = fromMillis(createdAt)
	return p, err
}

func (t *sqlTx) GetProperty(id uint64) (*domain.Property, error) {
	p, err := scanProperty(t.tx.QueryRowContext(t.ctx, `SELECT `+propertyColumns+` FROM properties WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	rows, err := t.tx.QueryContext(t.ctx, `SELECT id FROM splits WHERE property_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query split ids: %w", err)
	}
	defer rows.Close()

	p.SplitIDs = []uint64{}
	for rows.Next() {
		var splitID uint64
		if err := rows.Scan(&splitID); err != nil {
			return nil, err
		}
		p.SplitIDs = append(p.SplitIDs, splitID)
	}
	return &p, rows.Err()
}

func (t *sqlTx) UpdatePropertyValuation(id uint64, valuation decimal.Decimal) error {
	return t.execOne(`UPDATE properties SET valuation = ? WHERE id = ?`, valuation.String(), id)
}

func (t *sqlTx) ListProperties() ([]domain.Property, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT `+propertyColumns+` FROM properties ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query properties: %w", err)
	}
	var (
		out   []domain.Property
		index = make(map[uint64]int)
	)
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		p.SplitIDs = []uint64{}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	links, err := t.tx.QueryContext(t.ctx, `SELECT id, property_id FROM splits ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query split links: %w", err)
	}
	defer links.Close()
	for links.Next() {
		var splitID, propertyID uint64
		if err := links.Scan(&splitID, &propertyID); err != nil {
			return nil, err
		}
		if i, ok := index[propertyID]; ok {
			out[i].SplitIDs = append(out[i].SplitIDs, splitID)
		}
	}
	return out, links.Err()
}

// ---------- Splits ----------

func (t *sqlTx) NextSplitID() (uint64, error) {
	var id uint64
	err := t.tx.QueryRowContext(t.ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM splits`).Scan(&id)
	return id, err
}

func (t *sqlTx) InsertSplit(s domain.Split) error {
	var exists int
	err := t.tx.QueryRowContext(t.ctx, `SELECT 1 FROM properties WHERE id = ?`, s.PropertyID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("property %d: %w", s.PropertyID, notFound(err))
	}

	meta, err := json.Marshal(s.TokenMetadata)
	if err != nil {
		return err
	}
	_, err = t.exec(`
		INSERT INTO splits (id, split_identifier, property_id, token_id, token_metadata, owner, last_sale_date, on_sale, pending_saga)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.SplitIdentifier, s.PropertyID, s.TokenID, string(meta), s.Owner, s.LastSaleDate, s.OnSale, s.PendingSaga.String(),
	)
	if err != nil {
		return fmt.Errorf("insert split: %w", err)
	}
	return nil
}

const splitColumns = `id, split_identifier, property_id, token_id, token_metadata, owner, last_sale_date, on_sale, pending_saga`

func scanSplit(row interface{ Scan(...any) error }) (domain.Split, error) {
	var (
		s    domain.Split
		meta string
	)
	if err := row.Scan(&s.ID, &s.SplitIdentifier, &s.PropertyID, &s.TokenID, &meta, &s.Owner, &s.LastSaleDate, &s.OnSale, &s.PendingSaga); err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(meta), &s.TokenMetadata); err != nil {
		return s, fmt.Errorf("decode token metadata of split %d: %w", s.ID, err)
	}
	return s, nil
}

func (t *sqlTx) GetSplit(id uint64) (*domain.Split, error) {
	s, err := scanSplit(t.tx.QueryRowContext(t.ctx, `SELECT `+splitColumns+` FROM splits WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (t *sqlTx) GetSplitByToken(tokenID string) (*domain.Split, error) {
	s, err := scanSplit(t.tx.QueryRowContext(t.ctx, `SELECT `+splitColumns+` FROM splits WHERE token_id = ?`, tokenID))
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (t *sqlTx) UpdateSplit(s domain.Split) error {
	return t.execOne(`
		UPDATE splits
		SET owner = ?, last_sale_date = ?, on_sale = ?, pending_saga = ?
		WHERE id = ? AND token_id = ? AND property_id = ?`,
		s.Owner, s.LastSaleDate, s.OnSale, s.PendingSaga.String(), s.ID, s.TokenID, s.PropertyID,
	)
}

func (t *sqlTx) ListSplits() ([]domain.Split, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT `+splitColumns+` FROM splits ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query splits: %w", err)
	}
	defer rows.Close()

	out := []domain.Split{}
	for rows.Next() {
		s, err := scanSplit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ---------- Offers ----------

func (t *sqlTx) ListOffers(splitID uint64) ([]domain.PurchaseOffer, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT split_id, id, value, buyer, token_id, hold_id, created_at
		FROM offers WHERE split_id = ? ORDER BY id`, splitID)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	out := []domain.PurchaseOffer{}
	for rows.Next() {
		var (
			o         domain.PurchaseOffer
			createdAt int64
		)
		if err := rows.Scan(&o.SplitID, &o.ID, &o.Value, &o.Buyer, &o.TokenID, &o.HoldID, &createdAt); err != nil {
			return nil, err
		}
		o.CreatedAt = fromMillis(createdAt)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *sqlTx) InsertOffer(o domain.PurchaseOffer) error {
	_, err := t.exec(`
		INSERT INTO offers (split_id, id, value, buyer, token_id, hold_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.SplitID, o.ID, o.Value.String(), o.Buyer, o.TokenID, o.HoldID.String(), millis(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func (t *sqlTx) ClearOffers(splitID uint64) error {
	_, err := t.exec(`DELETE FROM offers WHERE split_id = ?`, splitID)
	return err
}

// ---------- Sagas ----------

type sagaContext struct {
	Mint     *domain.MintContext     `json:"mint,omitempty"`
	Transfer *domain.TransferContext `json:"transfer,omitempty"`
}

func (t *sqlTx) InsertSaga(s domain.Saga) error {
	ctxJSON, err := json.Marshal(sagaContext{Mint: s.Mint, Transfer: s.Transfer})
	if err != nil {
		return err
	}
	_, err = t.exec(`
		INSERT INTO sagas (id, kind, correlation_key, status, attempts, reason, context, created_at, updated_at, deadline_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), string(s.Kind), s.CorrelationKey, string(s.Status), s.Attempts, s.Reason, string(ctxJSON),
		millis(s.CreatedAt), millis(s.UpdatedAt), millis(s.DeadlineAt),
	)
	if err != nil {
		return fmt.Errorf("insert saga: %w", err)
	}
	return nil
}

const sagaColumns = `id, kind, correlation_key, status, attempts, reason, context, created_at, updated_at, deadline_at`

func scanSaga(row interface{ Scan(...any) error }) (domain.Saga, error) {
	var (
		s                                domain.Saga
		kind, status, ctxJSON            string
		createdAt, updatedAt, deadlineAt int64
	)
	if err := row.Scan(&s.ID, &kind, &s.CorrelationKey, &status, &s.Attempts, &s.Reason, &ctxJSON, &createdAt, &updatedAt, &deadlineAt); err != nil {
		return s, err
	}
	var sc sagaContext
	if err := json.Unmarshal([]byte(ctxJSON), &sc); err != nil {
		return s, fmt.Errorf("decode saga %s context: %w", s.ID, err)
	}
	s.Kind = domain.SagaKind(kind)
	s.Status = domain.SagaStatus(status)
	s.Mint = sc.Mint
	s.Transfer = sc.Transfer
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	s.DeadlineAt = fromMillis(deadlineAt)
	return s, nil
}

func (t *sqlTx) GetSaga(id uuid.UUID) (*domain.Saga, error) {
	s, err := scanSaga(t.tx.QueryRowContext(t.ctx, `SELECT `+sagaColumns+` FROM sagas WHERE id = ?`, id.String()))
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (t *sqlTx) FindSagaByCorrelation(key string) (*domain.Saga, error) {
	s, err := scanSaga(t.tx.QueryRowContext(t.ctx, `SELECT `+sagaColumns+` FROM sagas WHERE correlation_key = ?`, key))
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (t *sqlTx) UpdateSaga(s domain.Saga) error {
	ctxJSON, err := json.Marshal(sagaContext{Mint: s.Mint, Transfer: s.Transfer})
	if err != nil {
		return err
	}
	// version always changes so MySQL reports the row as affected even when
	// every other column is unchanged.
	result, err := t.exec(`
		UPDATE sagas
		SET status = ?, attempts = ?, reason = ?, context = ?, updated_at = ?, deadline_at = ?, version = version + 1
		WHERE id = ? AND status = ?`,
		string(s.Status), s.Attempts, s.Reason, string(ctxJSON), millis(s.UpdatedAt), millis(s.DeadlineAt),
		s.ID.String(), string(domain.SagaStatusRequested),
	)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}
	var status string
	if err := t.tx.QueryRowContext(t.ctx, `SELECT status FROM sagas WHERE id = ?`, s.ID.String()).Scan(&status); err != nil {
		return notFound(err)
	}
	return fmt.Errorf("%w: saga %s is %s", domain.ErrSagaConflict, s.ID, status)
}

func (t *sqlTx) ListSagas(status domain.SagaStatus) ([]domain.Saga, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT `+sagaColumns+` FROM sagas WHERE status = ? ORDER BY created_at, correlation_key`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query sagas: %w", err)
	}
	defer rows.Close()

	var out []domain.Saga
	for rows.Next() {
		s, err := scanSaga(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ---------- Escrow ----------

func (t *sqlTx) InsertHold(h domain.EscrowHold) error {
	_, err := t.exec(`
		INSERT INTO escrow_holds (id, split_id, offer_id, account, amount, status, saga_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID.String(), h.SplitID, h.OfferID, h.Account, h.Amount.String(), string(h.Status), h.SagaID.String(),
		millis(h.CreatedAt), millis(h.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert hold: %w", err)
	}
	return nil
}

func (t *sqlTx) GetHold(id uuid.UUID) (*domain.EscrowHold, error) {
	var (
		h                    domain.EscrowHold
		status               string
		createdAt, updatedAt int64
	)
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT id, split_id, offer_id, account, amount, status, saga_id, created_at, updated_at
		FROM escrow_holds WHERE id = ?`, id.String(),
	).Scan(&h.ID, &h.SplitID, &h.OfferID, &h.Account, &h.Amount, &status, &h.SagaID, &createdAt, &updatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	h.Status = domain.HoldStatus(status)
	h.CreatedAt = fromMillis(createdAt)
	h.UpdatedAt = fromMillis(updatedAt)
	return &h, nil
}

func (t *sqlTx) UpdateHold(h domain.EscrowHold) error {
	return t.execOne(`
		UPDATE escrow_holds SET status = ?, saga_id = ?, updated_at = ? WHERE id = ?`,
		string(h.Status), h.SagaID.String(), millis(h.UpdatedAt), h.ID.String(),
	)
}

func (t *sqlTx) AppendEntry(e domain.LedgerEntry) error {
	_, err := t.exec(`
		INSERT INTO ledger_entries (id, seq, account, amount, kind, hold_id, memo, created_at)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?, ? FROM ledger_entries`,
		e.ID.String(), e.Account, e.Amount.String(), string(e.Kind), e.HoldID.String(), e.Memo, millis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (t *sqlTx) ListEntries(account string) ([]domain.LedgerEntry, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT id, account, amount, kind, hold_id, memo, created_at
		FROM ledger_entries WHERE account = ? ORDER BY seq`, account)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	out := []domain.LedgerEntry{}
	for rows.Next() {
		var (
			e         domain.LedgerEntry
			kind      string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Account, &e.Amount, &kind, &e.HoldID, &e.Memo, &createdAt); err != nil {
			return nil, err
		}
		e.Kind = domain.EntryKind(kind)
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
