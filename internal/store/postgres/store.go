// Package postgres implements the store contract on top of a pgx pool.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradeup/internal/store"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

func (s *Store) PlayerByID(ctx context.Context, id int64) (store.Player, error) {
	var p store.Player
	err := s.db.QueryRow(ctx, `
		SELECT player_id, firstname, lastname, username, credits
		FROM players
		WHERE player_id = $1
	`, id).Scan(&p.ID, &p.Firstname, &p.Lastname, &p.Username, &p.Credits)
	if err == pgx.ErrNoRows {
		return p, store.ErrNotFound
	}
	return p, err
}

func (s *Store) PlayerByUsername(ctx context.Context, username string) (store.Player, string, error) {
	var p store.Player
	var hash string
	err := s.db.QueryRow(ctx, `
		SELECT player_id, firstname, lastname, username, credits, password_hash
		FROM players
		WHERE username = $1
	`, username).Scan(&p.ID, &p.Firstname, &p.Lastname, &p.Username, &p.Credits, &hash)
	if err == pgx.ErrNoRows {
		return p, "", store.ErrNotFound
	}
	return p, hash, err
}

func (s *Store) Resources(ctx context.Context) ([]store.Resource, error) {
	rows, err := s.db.Query(ctx, `
		SELECT resource_id, name
		FROM resources
		ORDER BY resource_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Resource
	for rows.Next() {
		var r store.Resource
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Tasks(ctx context.Context) ([]store.Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT t.task_id, t.name, t.reward, tc.resource_id, r.name, tc.quantity
		FROM tasks t
		JOIN task_costs tc ON tc.task_id = t.task_id
		JOIN resources r ON r.resource_id = tc.resource_id
		ORDER BY t.task_id, tc.resource_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Task
	for rows.Next() {
		var id, reward int64
		var name string
		var cost store.TaskCost
		if err := rows.Scan(&id, &name, &reward, &cost.ResourceID, &cost.ResourceName, &cost.Quantity); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].ID != id {
			out = append(out, store.Task{ID: id, Name: name, Reward: reward})
		}
		out[len(out)-1].Costs = append(out[len(out)-1].Costs, cost)
	}
	return out, rows.Err()
}

func (s *Store) TaskByID(ctx context.Context, id int64) (store.Task, error) {
	tasks, err := s.Tasks(ctx)
	if err != nil {
		return store.Task{}, err
	}
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return store.Task{}, store.ErrNotFound
}

func (s *Store) Balances(ctx context.Context, playerID int64) ([]store.Balance, error) {
	rows, err := s.db.Query(ctx, `
		SELECT r.resource_id, r.name, COALESCE(pr.quantity, 0)
		FROM resources r
		LEFT JOIN player_resources pr
		       ON pr.resource_id = r.resource_id AND pr.player_id = $1
		ORDER BY r.resource_id
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Balance
	for rows.Next() {
		var b store.Balance
		if err := rows.Scan(&b.ResourceID, &b.ResourceName, &b.Quantity); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) Balance(ctx context.Context, playerID, resourceID int64) (int64, error) {
	var qty int64
	err := s.db.QueryRow(ctx, `
		SELECT quantity
		FROM player_resources
		WHERE player_id = $1 AND resource_id = $2
	`, playerID, resourceID).Scan(&qty)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return qty, err
}

func (s *Store) History(ctx context.Context, playerID int64, limit int) ([]store.HistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT action_type, details, credits_earned, at
		FROM player_history
		WHERE player_id = $1
		ORDER BY at DESC, history_id DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.HistoryEntry
	for rows.Next() {
		h := store.HistoryEntry{PlayerID: playerID}
		if err := rows.Scan(&h.Action, &h.Details, &h.CreditsEarned, &h.At); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) Rank(ctx context.Context, playerID int64) (int64, error) {
	var rank int64
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) + 1
		FROM players
		WHERE credits > (SELECT credits FROM players WHERE player_id = $1)
	`, playerID).Scan(&rank)
	return rank, err
}

func (s *Store) Leaderboard(ctx context.Context) ([]store.LeaderboardRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT firstname, lastname, credits
		FROM players
		ORDER BY credits DESC, lastname ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.LeaderboardRow
	for rows.Next() {
		var r store.LeaderboardRow
		if err := rows.Scan(&r.Firstname, &r.Lastname, &r.Credits); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateTrade(ctx context.Context, t store.Trade) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO trades
		    (initiator_id, recipient_id, offered_resource, offered_qty,
		     requested_resource, requested_qty, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING trade_id
	`, t.InitiatorID, t.RecipientID, t.OfferedResource, t.OfferedQty,
		t.RequestedResource, t.RequestedQty, t.Status, t.CreatedAt).Scan(&id)
	return id, err
}

func (s *Store) TradesForRecipient(ctx context.Context, recipientID int64, status store.TradeStatus) ([]store.Trade, error) {
	rows, err := s.db.Query(ctx, `
		SELECT trade_id, initiator_id, recipient_id, offered_resource, offered_qty,
		       requested_resource, requested_qty, status, created_at
		FROM trades
		WHERE recipient_id = $1 AND status = $2
		ORDER BY trade_id
	`, recipientID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Trade
	for rows.Next() {
		var t store.Trade
		if err := rows.Scan(&t.ID, &t.InitiatorID, &t.RecipientID, &t.OfferedResource, &t.OfferedQty,
			&t.RequestedResource, &t.RequestedQty, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

var _ store.Tx = (*pgTx)(nil)

func (t *pgTx) PlayerForUpdate(ctx context.Context, id int64) (store.Player, error) {
	var p store.Player
	err := t.tx.QueryRow(ctx, `
		SELECT player_id, firstname, lastname, username, credits
		FROM players
		WHERE player_id = $1
		FOR UPDATE
	`, id).Scan(&p.ID, &p.Firstname, &p.Lastname, &p.Username, &p.Credits)
	if err == pgx.ErrNoRows {
		return p, store.ErrNotFound
	}
	return p, err
}

func (t *pgTx) AddCredits(ctx context.Context, playerID, delta int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE players
		SET credits = credits + $1
		WHERE player_id = $2
	`, delta, playerID)
	return err
}

func (t *pgTx) BalanceForUpdate(ctx context.Context, playerID, resourceID int64) (int64, error) {
	var qty int64
	err := t.tx.QueryRow(ctx, `
		SELECT quantity
		FROM player_resources
		WHERE player_id = $1 AND resource_id = $2
		FOR UPDATE
	`, playerID, resourceID).Scan(&qty)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return qty, err
}

func (t *pgTx) AddBalance(ctx context.Context, playerID, resourceID, delta int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO player_resources (player_id, resource_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (player_id, resource_id)
		DO UPDATE SET quantity = player_resources.quantity + EXCLUDED.quantity
	`, playerID, resourceID, delta)
	return err
}

func (t *pgTx) LastCollect(ctx context.Context, playerID int64) (int64, time.Time, bool, error) {
	var seq int64
	var at time.Time
	err := t.tx.QueryRow(ctx, `
		SELECT seq, collected_at
		FROM collect_log
		WHERE player_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, playerID).Scan(&seq, &at)
	if err == pgx.ErrNoRows {
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, err
	}
	return seq, at, true, nil
}

func (t *pgTx) AppendCollect(ctx context.Context, playerID, seq int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO collect_log (player_id, seq, collected_at)
		VALUES ($1, $2, $3)
	`, playerID, seq, at)
	return err
}

func (t *pgTx) TradeForUpdate(ctx context.Context, id int64) (store.Trade, error) {
	var tr store.Trade
	err := t.tx.QueryRow(ctx, `
		SELECT trade_id, initiator_id, recipient_id, offered_resource, offered_qty,
		       requested_resource, requested_qty, status, created_at
		FROM trades
		WHERE trade_id = $1
		FOR UPDATE
	`, id).Scan(&tr.ID, &tr.InitiatorID, &tr.RecipientID, &tr.OfferedResource, &tr.OfferedQty,
		&tr.RequestedResource, &tr.RequestedQty, &tr.Status, &tr.CreatedAt)
	if err == pgx.ErrNoRows {
		return tr, store.ErrNotFound
	}
	return tr, err
}

func (t *pgTx) SetTradeStatus(ctx context.Context, id int64, status store.TradeStatus) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE trades
		SET status = $1
		WHERE trade_id = $2
	`, status, id)
	return err
}

func (t *pgTx) AppendHistory(ctx context.Context, h store.HistoryEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO player_history (player_id, action_type, details, credits_earned, at)
		VALUES ($1, $2, $3, $4, $5)
	`, h.PlayerID, h.Action, h.Details, h.CreditsEarned, h.At)
	return err
}
