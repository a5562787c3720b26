// Package store defines the transactional contract the game engine runs
// against, plus the record types shared by its implementations. The engine
// never sees raw rows from outside this package.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeCompleted TradeStatus = "completed"
	TradeCancelled TradeStatus = "cancelled"
)

type Player struct {
	ID        int64
	Firstname string
	Lastname  string
	Username  string
	Credits   int64
}

type Resource struct {
	ID   int64
	Name string
}

type Balance struct {
	ResourceID   int64
	ResourceName string
	Quantity     int64
}

type TaskCost struct {
	ResourceID   int64
	ResourceName string
	Quantity     int64
}

type Task struct {
	ID     int64
	Name   string
	Reward int64
	Costs  []TaskCost
}

type Trade struct {
	ID                int64
	InitiatorID       int64
	RecipientID       int64
	OfferedResource   int64
	OfferedQty        int64
	RequestedResource int64
	RequestedQty      int64
	Status            TradeStatus
	CreatedAt         time.Time
}

type HistoryEntry struct {
	PlayerID      int64
	Action        string
	Details       string
	CreditsEarned int64
	At            time.Time
}

type LeaderboardRow struct {
	Firstname string
	Lastname  string
	Credits   int64
}

// Store is the durable ledger behind the engine. Reads outside WithTx see
// committed state only; every multi-row mutation goes through WithTx.
type Store interface {
	PlayerByID(ctx context.Context, id int64) (Player, error)
	PlayerByUsername(ctx context.Context, username string) (Player, string, error)

	Resources(ctx context.Context) ([]Resource, error)
	Tasks(ctx context.Context) ([]Task, error)
	TaskByID(ctx context.Context, id int64) (Task, error)

	Balances(ctx context.Context, playerID int64) ([]Balance, error)
	Balance(ctx context.Context, playerID, resourceID int64) (int64, error)
	History(ctx context.Context, playerID int64, limit int) ([]HistoryEntry, error)
	Rank(ctx context.Context, playerID int64) (int64, error)
	Leaderboard(ctx context.Context) ([]LeaderboardRow, error)

	CreateTrade(ctx context.Context, t Trade) (int64, error)
	TradesForRecipient(ctx context.Context, recipientID int64, status TradeStatus) ([]Trade, error)

	// WithTx runs fn inside one atomic transaction. A non-nil error from fn
	// rolls back every write made through the Tx; nil commits them all.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the row-locking primitives the engine conditions its writes
// on. A *ForUpdate read blocks conflicting writers until the transaction
// finishes.
type Tx interface {
	// PlayerForUpdate locks the player row. Collect and task submission
	// take this lock first so their read-then-append sequences serialize
	// per player.
	PlayerForUpdate(ctx context.Context, id int64) (Player, error)
	AddCredits(ctx context.Context, playerID, delta int64) error

	// BalanceForUpdate locks one (player, resource) balance row and
	// returns its quantity, or 0 when no row exists yet.
	BalanceForUpdate(ctx context.Context, playerID, resourceID int64) (int64, error)
	// AddBalance applies a relative delta, creating the row when absent.
	AddBalance(ctx context.Context, playerID, resourceID, delta int64) error

	LastCollect(ctx context.Context, playerID int64) (seq int64, at time.Time, found bool, err error)
	AppendCollect(ctx context.Context, playerID, seq int64, at time.Time) error

	TradeForUpdate(ctx context.Context, id int64) (Trade, error)
	SetTradeStatus(ctx context.Context, id int64, status TradeStatus) error

	AppendHistory(ctx context.Context, h HistoryEntry) error
}
