// Package memory is an in-memory store used by tests and local play. One
// mutex serializes transactions, which trivially satisfies the row-locking
// contract; rollback is an undo log replayed in reverse.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tradeup/internal/store"
)

type balanceKey struct {
	playerID   int64
	resourceID int64
}

type collectEntry struct {
	seq int64
	at  time.Time
}

type Store struct {
	mu sync.Mutex

	players   map[int64]store.Player
	passwords map[int64]string
	usernames map[string]int64
	resources []store.Resource
	tasks     []store.Task
	balances  map[balanceKey]int64
	collects  map[int64][]collectEntry
	history   []store.HistoryEntry
	trades    map[int64]*store.Trade

	nextPlayerID int64
	nextTradeID  int64
}

func New() *Store {
	return &Store{
		players:   make(map[int64]store.Player),
		passwords: make(map[int64]string),
		usernames: make(map[string]int64),
		balances:  make(map[balanceKey]int64),
		collects:  make(map[int64][]collectEntry),
		trades:    make(map[int64]*store.Trade),
	}
}

var _ store.Store = (*Store)(nil)

// AddPlayer registers a player and returns its id. Test/seed helper.
func (s *Store) AddPlayer(p store.Player, passwordHash string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPlayerID++
	p.ID = s.nextPlayerID
	s.players[p.ID] = p
	s.passwords[p.ID] = passwordHash
	s.usernames[p.Username] = p.ID
	return p.ID
}

// SeedCatalog replaces the resource and task catalogs. Test/seed helper.
func (s *Store) SeedCatalog(resources []string, tasks []store.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = nil
	for i, name := range resources {
		s.resources = append(s.resources, store.Resource{ID: int64(i + 1), Name: name})
	}
	s.tasks = nil
	for i, t := range tasks {
		t.ID = int64(i + 1)
		for j := range t.Costs {
			for _, r := range s.resources {
				if r.Name == t.Costs[j].ResourceName {
					t.Costs[j].ResourceID = r.ID
				}
			}
		}
		s.tasks = append(s.tasks, t)
	}
}

// SetBalance overwrites one balance row. Test helper.
func (s *Store) SetBalance(playerID, resourceID, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[balanceKey{playerID, resourceID}] = qty
}

func (s *Store) PlayerByID(ctx context.Context, id int64) (store.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return store.Player{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) PlayerByUsername(ctx context.Context, username string) (store.Player, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.usernames[username]
	if !ok {
		return store.Player{}, "", store.ErrNotFound
	}
	return s.players[id], s.passwords[id], nil
}

func (s *Store) Resources(ctx context.Context) ([]store.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Resource(nil), s.resources...), nil
}

func (s *Store) Tasks(ctx context.Context) ([]store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Task(nil), s.tasks...), nil
}

func (s *Store) TaskByID(ctx context.Context, id int64) (store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return store.Task{}, store.ErrNotFound
}

func (s *Store) Balances(ctx context.Context, playerID int64) ([]store.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Balance, 0, len(s.resources))
	for _, r := range s.resources {
		out = append(out, store.Balance{
			ResourceID:   r.ID,
			ResourceName: r.Name,
			Quantity:     s.balances[balanceKey{playerID, r.ID}],
		})
	}
	return out, nil
}

func (s *Store) Balance(ctx context.Context, playerID, resourceID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[balanceKey{playerID, resourceID}], nil
}

func (s *Store) History(ctx context.Context, playerID int64, limit int) ([]store.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.HistoryEntry
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		if s.history[i].PlayerID == playerID {
			out = append(out, s.history[i])
		}
	}
	return out, nil
}

func (s *Store) Rank(ctx context.Context, playerID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return 0, store.ErrNotFound
	}
	rank := int64(1)
	for _, other := range s.players {
		if other.Credits > p.Credits {
			rank++
		}
	}
	return rank, nil
}

func (s *Store) Leaderboard(ctx context.Context) ([]store.LeaderboardRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.LeaderboardRow, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, store.LeaderboardRow{Firstname: p.Firstname, Lastname: p.Lastname, Credits: p.Credits})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Credits != out[j].Credits {
			return out[i].Credits > out[j].Credits
		}
		return out[i].Lastname < out[j].Lastname
	})
	return out, nil
}

func (s *Store) CreateTrade(ctx context.Context, t store.Trade) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTradeID++
	t.ID = s.nextTradeID
	s.trades[t.ID] = &t
	return t.ID, nil
}

func (s *Store) TradesForRecipient(ctx context.Context, recipientID int64, status store.TradeStatus) ([]store.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Trade
	for _, t := range s.trades {
		if t.RecipientID == recipientID && t.Status == status {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memTx mutates the store in place and keeps undo closures so a failed
// transaction leaves no trace.
type memTx struct {
	s    *Store
	undo []func()
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) PlayerForUpdate(ctx context.Context, id int64) (store.Player, error) {
	p, ok := t.s.players[id]
	if !ok {
		return store.Player{}, store.ErrNotFound
	}
	return p, nil
}

func (t *memTx) AddCredits(ctx context.Context, playerID, delta int64) error {
	p, ok := t.s.players[playerID]
	if !ok {
		return store.ErrNotFound
	}
	prev := p.Credits
	t.undo = append(t.undo, func() {
		p := t.s.players[playerID]
		p.Credits = prev
		t.s.players[playerID] = p
	})
	p.Credits += delta
	t.s.players[playerID] = p
	return nil
}

func (t *memTx) BalanceForUpdate(ctx context.Context, playerID, resourceID int64) (int64, error) {
	return t.s.balances[balanceKey{playerID, resourceID}], nil
}

func (t *memTx) AddBalance(ctx context.Context, playerID, resourceID, delta int64) error {
	key := balanceKey{playerID, resourceID}
	prev, existed := t.s.balances[key]
	t.undo = append(t.undo, func() {
		if existed {
			t.s.balances[key] = prev
		} else {
			delete(t.s.balances, key)
		}
	})
	t.s.balances[key] = prev + delta
	return nil
}

func (t *memTx) LastCollect(ctx context.Context, playerID int64) (int64, time.Time, bool, error) {
	entries := t.s.collects[playerID]
	if len(entries) == 0 {
		return 0, time.Time{}, false, nil
	}
	last := entries[len(entries)-1]
	return last.seq, last.at, true, nil
}

func (t *memTx) AppendCollect(ctx context.Context, playerID, seq int64, at time.Time) error {
	t.undo = append(t.undo, func() {
		entries := t.s.collects[playerID]
		t.s.collects[playerID] = entries[:len(entries)-1]
	})
	t.s.collects[playerID] = append(t.s.collects[playerID], collectEntry{seq: seq, at: at})
	return nil
}

func (t *memTx) TradeForUpdate(ctx context.Context, id int64) (store.Trade, error) {
	tr, ok := t.s.trades[id]
	if !ok {
		return store.Trade{}, store.ErrNotFound
	}
	return *tr, nil
}

func (t *memTx) SetTradeStatus(ctx context.Context, id int64, status store.TradeStatus) error {
	tr, ok := t.s.trades[id]
	if !ok {
		return store.ErrNotFound
	}
	prev := tr.Status
	t.undo = append(t.undo, func() { tr.Status = prev })
	tr.Status = status
	return nil
}

func (t *memTx) AppendHistory(ctx context.Context, h store.HistoryEntry) error {
	t.undo = append(t.undo, func() {
		t.s.history = t.s.history[:len(t.s.history)-1]
	})
	t.s.history = append(t.s.history, h)
	return nil
}
