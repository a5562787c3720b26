package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeup/internal/store"
)

func seeded(t *testing.T) (*Store, int64) {
	t.Helper()
	st := New()
	st.SeedCatalog([]string{"pizza", "coffee"}, nil)
	id := st.AddPlayer(store.Player{Username: "alice", Firstname: "Alice"}, "hash")
	return st, id
}

func TestWithTxCommits(t *testing.T) {
	st, alice := seeded(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.AddBalance(ctx, alice, 1, 3); err != nil {
			return err
		}
		return tx.AddCredits(ctx, alice, 7)
	})
	require.NoError(t, err)

	qty, err := st.Balance(ctx, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), qty)
	p, err := st.PlayerByID(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.Credits)
}

func TestWithTxRollsBackEveryMutation(t *testing.T) {
	st, alice := seeded(t)
	ctx := context.Background()
	st.SetBalance(alice, 1, 4)

	tradeID, err := st.CreateTrade(ctx, store.Trade{
		InitiatorID: alice, RecipientID: alice,
		OfferedResource: 1, OfferedQty: 1,
		RequestedResource: 2, RequestedQty: 1,
		Status: store.TradePending, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.AddBalance(ctx, alice, 1, -2); err != nil {
			return err
		}
		if err := tx.AddBalance(ctx, alice, 2, 5); err != nil {
			return err
		}
		if err := tx.AddCredits(ctx, alice, 100); err != nil {
			return err
		}
		if err := tx.AppendCollect(ctx, alice, 1, time.Now()); err != nil {
			return err
		}
		if err := tx.SetTradeStatus(ctx, tradeID, store.TradeCompleted); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, store.HistoryEntry{PlayerID: alice, Action: "collect"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	pizza, _ := st.Balance(ctx, alice, 1)
	coffee, _ := st.Balance(ctx, alice, 2)
	assert.Equal(t, int64(4), pizza)
	assert.Equal(t, int64(0), coffee)

	p, err := st.PlayerByID(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Credits)

	history, err := st.History(ctx, alice, 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	err = st.WithTx(ctx, func(tx store.Tx) error {
		seq, _, found, err := tx.LastCollect(ctx, alice)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, int64(0), seq)

		tr, err := tx.TradeForUpdate(ctx, tradeID)
		require.NoError(t, err)
		assert.Equal(t, store.TradePending, tr.Status)
		return nil
	})
	require.NoError(t, err)
}

func TestAddBalanceRollbackRemovesCreatedRow(t *testing.T) {
	st, alice := seeded(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.AddBalance(ctx, alice, 2, 9); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The row created inside the failed transaction is gone, not zeroed.
	balances, err := st.Balances(ctx, alice)
	require.NoError(t, err)
	for _, b := range balances {
		assert.Equal(t, int64(0), b.Quantity)
	}
}

func TestSeedCatalogResolvesCostIDs(t *testing.T) {
	st := New()
	st.SeedCatalog([]string{"pizza", "coffee"}, []store.Task{
		{Name: "Late-night delivery", Reward: 10, Costs: []store.TaskCost{
			{ResourceName: "pizza", Quantity: 2},
			{ResourceName: "coffee", Quantity: 1},
		}},
	})

	task, err := st.TaskByID(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, task.Costs, 2)
	assert.Equal(t, int64(1), task.Costs[0].ResourceID)
	assert.Equal(t, int64(2), task.Costs[1].ResourceID)
}
