package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeup/internal/store"
	"tradeup/internal/store/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedRand returns queued values in order and n-1 once the queue runs
// dry, so the penalty roll misses unless a test asks for it.
type scriptedRand struct {
	mu   sync.Mutex
	vals []int
}

func (r *scriptedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.vals) == 0 {
		return n - 1
	}
	v := r.vals[0]
	r.vals = r.vals[1:]
	return v % n
}

func newTestService(t *testing.T) (*Service, *memory.Store, *fakeClock, *scriptedRand) {
	t.Helper()
	st := memory.New()
	st.SeedCatalog(DefaultResources, DefaultTasks())
	clk := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	rnd := &scriptedRand{}
	svc := NewService(st, slog.New(slog.NewTextHandler(io.Discard, nil)), 30*time.Second)
	svc.clock = clk
	svc.rand = rnd
	return svc, st, clk, rnd
}

func addPlayer(st *memory.Store, username string) int64 {
	return st.AddPlayer(store.Player{
		Firstname: username,
		Lastname:  "Tester",
		Username:  username,
	}, "")
}

// Resource ids follow seeding order: pizza=1, coffee=2, sleep=3, study=4.
const (
	pizzaID  = 1
	coffeeID = 2
)

func TestCollectRewardsOneResource(t *testing.T) {
	svc, st, _, rnd := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")

	rnd.vals = []int{99, 0} // miss the penalty roll, pick pizza

	got, err := svc.Collect(ctx, alice)
	require.NoError(t, err)
	assert.False(t, got.Penalty)
	assert.Equal(t, "pizza", got.Resource)
	assert.Equal(t, int64(1), got.CollectCount)
	assert.Equal(t, 0, got.PenaltyChance)

	qty, err := st.Balance(ctx, alice, pizzaID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), qty)

	history, err := st.History(ctx, alice, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "collect", history[0].Action)
}

func TestCollectInsideCooldownFails(t *testing.T) {
	svc, st, clk, _ := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")

	_, err := svc.Collect(ctx, alice)
	require.NoError(t, err)

	clk.Advance(10 * time.Second)
	_, err = svc.Collect(ctx, alice)

	var tooSoon *TooSoonError
	require.ErrorAs(t, err, &tooSoon)
	assert.Equal(t, 20*time.Second, tooSoon.Remaining)

	// The failed attempt mutates nothing.
	history, err := st.History(ctx, alice, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCollectAfterCooldownSucceeds(t *testing.T) {
	svc, st, clk, _ := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")

	_, err := svc.Collect(ctx, alice)
	require.NoError(t, err)

	clk.Advance(30 * time.Second)
	got, err := svc.Collect(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.CollectCount)
	assert.Equal(t, 5, got.PenaltyChance)
}

func TestCollectPenaltyHalvesEveryBalance(t *testing.T) {
	svc, st, clk, rnd := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")
	st.SetBalance(alice, pizzaID, 5)
	st.SetBalance(alice, coffeeID, 3)

	rnd.vals = []int{99, 1} // first collect: reward, pick coffee
	_, err := svc.Collect(ctx, alice)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	rnd.vals = []int{4} // second collect: 4 < 5% chance, penalty
	got, err := svc.Collect(ctx, alice)
	require.NoError(t, err)
	assert.True(t, got.Penalty)
	assert.Empty(t, got.Resource)
	assert.Equal(t, int64(2), got.CollectCount)

	// 5 pizza -> 2, 4 coffee -> 2, integer floor on odd counts.
	pizza, _ := st.Balance(ctx, alice, pizzaID)
	coffee, _ := st.Balance(ctx, alice, coffeeID)
	assert.Equal(t, int64(2), pizza)
	assert.Equal(t, int64(2), coffee)
}

func TestSubmitTaskSpendsCostsAndPaysReward(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")
	st.SetBalance(alice, pizzaID, 3)
	st.SetBalance(alice, coffeeID, 1)

	// Task 1 is "Late-night delivery": 2 pizza + 1 coffee for 10 credits.
	got, err := svc.SubmitTask(ctx, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, "Late-night delivery", got.TaskName)
	assert.Equal(t, int64(10), got.Reward)
	assert.Equal(t, int64(10), got.Credits)

	pizza, _ := st.Balance(ctx, alice, pizzaID)
	coffee, _ := st.Balance(ctx, alice, coffeeID)
	assert.Equal(t, int64(1), pizza)
	assert.Equal(t, int64(0), coffee)

	p, err := st.PlayerByID(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.Credits)
}

func TestSubmitTaskInsufficientAbortsCleanly(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")
	st.SetBalance(alice, pizzaID, 2)

	_, err := svc.SubmitTask(ctx, alice, 1)

	var short *InsufficientResourceError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "coffee", short.Kind)
	assert.Equal(t, int64(1), short.Required)
	assert.Equal(t, int64(0), short.Available)

	// Nothing was spent.
	pizza, _ := st.Balance(ctx, alice, pizzaID)
	assert.Equal(t, int64(2), pizza)
	p, err := st.PlayerByID(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Credits)
}

func TestSubmitTaskUnknownTask(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	alice := addPlayer(st, "alice")

	_, err := svc.SubmitTask(context.Background(), alice, 999)
	assert.ErrorIs(t, err, ErrInvalidTask)
}

func TestProposeTradeValidation(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")
	addPlayer(st, "bob")
	st.SetBalance(alice, pizzaID, 1)

	cases := []struct {
		name string
		in   ProposeTradeInput
	}{
		{"zero quantity", ProposeTradeInput{
			InitiatorID: alice, RecipientUsername: "bob",
			OfferResource: "pizza", OfferQty: 0, RequestResource: "coffee", RequestQty: 1,
		}},
		{"self trade", ProposeTradeInput{
			InitiatorID: alice, RecipientUsername: "alice",
			OfferResource: "pizza", OfferQty: 1, RequestResource: "coffee", RequestQty: 1,
		}},
		{"unknown recipient", ProposeTradeInput{
			InitiatorID: alice, RecipientUsername: "ghost",
			OfferResource: "pizza", OfferQty: 1, RequestResource: "coffee", RequestQty: 1,
		}},
		{"unknown resource", ProposeTradeInput{
			InitiatorID: alice, RecipientUsername: "bob",
			OfferResource: "gold", OfferQty: 1, RequestResource: "coffee", RequestQty: 1,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ProposeTrade(ctx, tc.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestProposeTradeChecksOfferedBalance(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	alice := addPlayer(st, "alice")
	addPlayer(st, "bob")
	st.SetBalance(alice, pizzaID, 1)

	_, err := svc.ProposeTrade(context.Background(), ProposeTradeInput{
		InitiatorID: alice, RecipientUsername: "bob",
		OfferResource: "pizza", OfferQty: 2, RequestResource: "coffee", RequestQty: 1,
	})

	var short *InsufficientResourceError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "pizza", short.Kind)
}

func TestAcceptTradeSwapsBothSides(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")
	bob := addPlayer(st, "bob")
	st.SetBalance(alice, pizzaID, 2)
	st.SetBalance(bob, coffeeID, 3)

	proposed, err := svc.ProposeTrade(ctx, ProposeTradeInput{
		InitiatorID: alice, RecipientUsername: "bob",
		OfferResource: "pizza", OfferQty: 2, RequestResource: "coffee", RequestQty: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, string(store.TradePending), proposed.Status)

	settled, err := svc.AcceptTrade(ctx, proposed.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, string(store.TradeCompleted), settled.Status)

	alicePizza, _ := st.Balance(ctx, alice, pizzaID)
	aliceCoffee, _ := st.Balance(ctx, alice, coffeeID)
	bobPizza, _ := st.Balance(ctx, bob, pizzaID)
	bobCoffee, _ := st.Balance(ctx, bob, coffeeID)
	assert.Equal(t, int64(0), alicePizza)
	assert.Equal(t, int64(2), aliceCoffee)
	assert.Equal(t, int64(2), bobPizza)
	assert.Equal(t, int64(1), bobCoffee)

	// Totals are conserved across the swap.
	assert.Equal(t, int64(2), alicePizza+bobPizza)
	assert.Equal(t, int64(3), aliceCoffee+bobCoffee)

	// Settled trades leave the incoming list.
	incoming, err := svc.ListIncomingTrades(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, incoming)
}

func TestAcceptTradeRecipientShortLeavesPending(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")
	bob := addPlayer(st, "bob")
	st.SetBalance(alice, pizzaID, 1)
	st.SetBalance(bob, coffeeID, 1)

	proposed, err := svc.ProposeTrade(ctx, ProposeTradeInput{
		InitiatorID: alice, RecipientUsername: "bob",
		OfferResource: "pizza", OfferQty: 1, RequestResource: "coffee", RequestQty: 2,
	})
	require.NoError(t, err)

	_, err = svc.AcceptTrade(ctx, proposed.ID, bob)
	var short *InsufficientResourceError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "coffee", short.Kind)
	assert.Equal(t, int64(2), short.Required)
	assert.Equal(t, int64(1), short.Available)

	// The trade survives the failed settlement and nothing moved.
	incoming, err := svc.ListIncomingTrades(ctx, bob)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, proposed.ID, incoming[0].ID)

	alicePizza, _ := st.Balance(ctx, alice, pizzaID)
	bobCoffee, _ := st.Balance(ctx, bob, coffeeID)
	assert.Equal(t, int64(1), alicePizza)
	assert.Equal(t, int64(1), bobCoffee)
}

func TestAcceptTradeInitiatorSpentDownLeavesPending(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")
	bob := addPlayer(st, "bob")
	st.SetBalance(alice, pizzaID, 2)
	st.SetBalance(bob, coffeeID, 2)

	proposed, err := svc.ProposeTrade(ctx, ProposeTradeInput{
		InitiatorID: alice, RecipientUsername: "bob",
		OfferResource: "pizza", OfferQty: 2, RequestResource: "coffee", RequestQty: 1,
	})
	require.NoError(t, err)

	// Nothing is escrowed, so the initiator can spend the offer away
	// before acceptance.
	st.SetBalance(alice, pizzaID, 1)

	_, err = svc.AcceptTrade(ctx, proposed.ID, bob)
	var short *InsufficientResourceError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, "pizza", short.Kind)

	incoming, err := svc.ListIncomingTrades(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, incoming, 1)
}

func TestAcceptTradeWrongCaller(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")
	addPlayer(st, "bob")
	carol := addPlayer(st, "carol")
	st.SetBalance(alice, pizzaID, 1)

	proposed, err := svc.ProposeTrade(ctx, ProposeTradeInput{
		InitiatorID: alice, RecipientUsername: "bob",
		OfferResource: "pizza", OfferQty: 1, RequestResource: "coffee", RequestQty: 1,
	})
	require.NoError(t, err)

	_, err = svc.AcceptTrade(ctx, proposed.ID, carol)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = svc.AcceptTrade(ctx, proposed.ID, alice)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestAcceptTradeUnknownOrSettled(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")
	bob := addPlayer(st, "bob")
	st.SetBalance(alice, pizzaID, 1)
	st.SetBalance(bob, coffeeID, 1)

	_, err := svc.AcceptTrade(ctx, 42, bob)
	assert.ErrorIs(t, err, ErrInvalidTrade)

	proposed, err := svc.ProposeTrade(ctx, ProposeTradeInput{
		InitiatorID: alice, RecipientUsername: "bob",
		OfferResource: "pizza", OfferQty: 1, RequestResource: "coffee", RequestQty: 1,
	})
	require.NoError(t, err)
	_, err = svc.AcceptTrade(ctx, proposed.ID, bob)
	require.NoError(t, err)

	_, err = svc.AcceptTrade(ctx, proposed.ID, bob)
	assert.ErrorIs(t, err, ErrInvalidTrade)
}

func TestAcceptTradeConcurrentSettlesExactlyOnce(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")
	bob := addPlayer(st, "bob")
	st.SetBalance(alice, pizzaID, 1)
	st.SetBalance(bob, coffeeID, 1)

	proposed, err := svc.ProposeTrade(ctx, ProposeTradeInput{
		InitiatorID: alice, RecipientUsername: "bob",
		OfferResource: "pizza", OfferQty: 1, RequestResource: "coffee", RequestQty: 1,
	})
	require.NoError(t, err)

	const racers = 8
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AcceptTrade(ctx, proposed.ID, bob)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, invalid int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInvalidTrade):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, racers-1, invalid)

	// The swap happened exactly once.
	bobPizza, _ := st.Balance(ctx, bob, pizzaID)
	aliceCoffee, _ := st.Balance(ctx, alice, coffeeID)
	assert.Equal(t, int64(1), bobPizza)
	assert.Equal(t, int64(1), aliceCoffee)
}

func TestRejectTrade(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")
	bob := addPlayer(st, "bob")
	carol := addPlayer(st, "carol")
	st.SetBalance(alice, pizzaID, 1)

	proposed, err := svc.ProposeTrade(ctx, ProposeTradeInput{
		InitiatorID: alice, RecipientUsername: "bob",
		OfferResource: "pizza", OfferQty: 1, RequestResource: "coffee", RequestQty: 1,
	})
	require.NoError(t, err)

	// Wrong caller and missing trades are quiet no-ops.
	got, err := svc.RejectTrade(ctx, proposed.ID, carol)
	require.NoError(t, err)
	assert.False(t, got.Cancelled)
	got, err = svc.RejectTrade(ctx, 404, bob)
	require.NoError(t, err)
	assert.False(t, got.Cancelled)

	got, err = svc.RejectTrade(ctx, proposed.ID, bob)
	require.NoError(t, err)
	assert.True(t, got.Cancelled)

	// A second reject of the same trade is also a no-op.
	got, err = svc.RejectTrade(ctx, proposed.ID, bob)
	require.NoError(t, err)
	assert.False(t, got.Cancelled)

	_, err = svc.AcceptTrade(ctx, proposed.ID, bob)
	assert.ErrorIs(t, err, ErrInvalidTrade)
}

func TestDashboardAggregates(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	ctx := context.Background()
	alice := addPlayer(st, "alice")
	bob := addPlayer(st, "bob")
	st.SetBalance(alice, pizzaID, 3)
	st.SetBalance(alice, coffeeID, 1)
	st.SetBalance(bob, coffeeID, 5)

	_, err := svc.SubmitTask(ctx, alice, 1)
	require.NoError(t, err)

	d, err := svc.Dashboard(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "alice Tester", d.Player)
	assert.Equal(t, int64(10), d.Credits)
	assert.Equal(t, int64(1), d.Rank)
	require.Len(t, d.History, 1)
	assert.Equal(t, "task", d.History[0].Action)
	assert.Equal(t, int64(10), d.History[0].CreditsEarned)

	rows, err := svc.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].Rank)
	assert.Equal(t, "alice", rows[0].Firstname)
}

// balanceLockStore records the order in which balance rows are locked.
type balanceLockStore struct {
	*memory.Store
	mu     sync.Mutex
	locked []balanceRef
}

func (s *balanceLockStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(&balanceLockTx{Tx: tx, rec: s})
	})
}

type balanceLockTx struct {
	store.Tx
	rec *balanceLockStore
}

func (t *balanceLockTx) BalanceForUpdate(ctx context.Context, playerID, resourceID int64) (int64, error) {
	t.rec.mu.Lock()
	t.rec.locked = append(t.rec.locked, balanceRef{playerID, resourceID})
	t.rec.mu.Unlock()
	return t.Tx.BalanceForUpdate(ctx, playerID, resourceID)
}

func TestCollectPenaltyLocksBalancesInCanonicalOrder(t *testing.T) {
	st := memory.New()
	st.SeedCatalog(DefaultResources, DefaultTasks())
	rec := &balanceLockStore{Store: st}
	clk := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	rnd := &scriptedRand{}
	svc := NewService(rec, slog.New(slog.NewTextHandler(io.Discard, nil)), 30*time.Second)
	svc.clock = clk
	svc.rand = rnd

	ctx := context.Background()
	alice := addPlayer(st, "alice")
	st.SetBalance(alice, 3, 7) // sleep
	st.SetBalance(alice, 1, 4) // pizza

	rnd.vals = []int{99, 0}
	_, err := svc.Collect(ctx, alice)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	rec.mu.Lock()
	rec.locked = nil
	rec.mu.Unlock()

	rnd.vals = []int{0} // 0 < 5% chance, penalty
	got, err := svc.Collect(ctx, alice)
	require.NoError(t, err)
	require.True(t, got.Penalty)

	// The halving visits every balance row once, ascending by resource,
	// never in stash or seeding order.
	want := []balanceRef{{alice, 1}, {alice, 2}, {alice, 3}, {alice, 4}}
	assert.Equal(t, want, rec.locked)

	sleep, _ := st.Balance(ctx, alice, 3)
	pizza, _ := st.Balance(ctx, alice, 1)
	assert.Equal(t, int64(3), sleep)
	assert.Equal(t, int64(2), pizza) // 4+1 from the first collect, halved
}

// faultAfterCommitStore fails every plain read once a transaction has
// committed.
type faultAfterCommitStore struct {
	*memory.Store
	mu        sync.Mutex
	committed bool
}

var errStoreDown = errors.New("store unavailable")

func (s *faultAfterCommitStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.Store.WithTx(ctx, fn)
	if err == nil {
		s.mu.Lock()
		s.committed = true
		s.mu.Unlock()
	}
	return err
}

func (s *faultAfterCommitStore) tripped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

func (s *faultAfterCommitStore) PlayerByID(ctx context.Context, id int64) (store.Player, error) {
	if s.tripped() {
		return store.Player{}, errStoreDown
	}
	return s.Store.PlayerByID(ctx, id)
}

func (s *faultAfterCommitStore) Resources(ctx context.Context) ([]store.Resource, error) {
	if s.tripped() {
		return nil, errStoreDown
	}
	return s.Store.Resources(ctx)
}

func TestAcceptTradeReportsSettlementDespiteReadFaults(t *testing.T) {
	st := memory.New()
	st.SeedCatalog(DefaultResources, DefaultTasks())
	faulty := &faultAfterCommitStore{Store: st}
	svc := NewService(faulty, slog.New(slog.NewTextHandler(io.Discard, nil)), 30*time.Second)
	svc.clock = &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}

	ctx := context.Background()
	alice := addPlayer(st, "alice")
	bob := addPlayer(st, "bob")
	st.SetBalance(alice, pizzaID, 1)
	st.SetBalance(bob, coffeeID, 1)

	proposed, err := svc.ProposeTrade(ctx, ProposeTradeInput{
		InitiatorID: alice, RecipientUsername: "bob",
		OfferResource: "pizza", OfferQty: 1, RequestResource: "coffee", RequestQty: 1,
	})
	require.NoError(t, err)

	// Once the settlement commits, every plain read fails; the caller
	// must still see the completed trade.
	settled, err := svc.AcceptTrade(ctx, proposed.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, string(store.TradeCompleted), settled.Status)
	assert.Equal(t, "alice", settled.Initiator)
	assert.Equal(t, "bob", settled.Recipient)
	assert.Equal(t, "pizza", settled.OfferedResource)

	bobPizza, _ := st.Balance(ctx, bob, pizzaID)
	assert.Equal(t, int64(1), bobPizza)
}
