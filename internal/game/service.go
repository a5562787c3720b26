package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"tradeup/internal/store"
)

// Clock and Random are injectable so the collector's cooldown and penalty
// roll are deterministic under test.
type Clock interface {
	Now() time.Time
}

type Random interface {
	Intn(n int) int
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type lockedRand struct {
	mu sync.Mutex
	r  *mathrand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

type Service struct {
	store    store.Store
	log      *slog.Logger
	clock    Clock
	rand     Random
	cooldown time.Duration
}

func NewService(st store.Store, logger *slog.Logger, cooldown time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cooldown <= 0 {
		cooldown = DefaultCollectCooldown
	}
	return &Service{
		store:    st,
		log:      logger,
		clock:    systemClock{},
		rand:     &lockedRand{r: mathrand.New(mathrand.NewSource(time.Now().UnixNano()))},
		cooldown: cooldown,
	}
}

// Collect applies the cooldown-and-penalty rule for one player. Balance
// mutation, history and the collect-log append commit as one unit; the
// player row lock serializes concurrent collects for the same player so
// the collection count is never read stale.
func (s *Service) Collect(ctx context.Context, playerID int64) (CollectResult, error) {
	resources, err := s.store.Resources(ctx)
	if err != nil {
		return CollectResult{}, err
	}
	if len(resources) == 0 {
		return CollectResult{}, fmt.Errorf("resource catalog is empty")
	}

	var out CollectResult
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.PlayerForUpdate(ctx, playerID); err != nil {
			return err
		}
		seq, last, found, err := tx.LastCollect(ctx, playerID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if found {
			if elapsed := now.Sub(last); elapsed < s.cooldown {
				return &TooSoonError{Remaining: s.cooldown - elapsed}
			}
		}

		chance := PenaltyChance(seq)
		out.CollectCount = seq + 1
		out.PenaltyChance = chance

		if s.rand.Intn(100) < chance {
			out.Penalty = true
			// The halving locks balance rows one by one in the same
			// canonical order settlements acquire them.
			refs := make([]balanceRef, 0, len(resources))
			for _, r := range resources {
				refs = append(refs, balanceRef{playerID, r.ID})
			}
			for _, ref := range lockOrder(refs...) {
				qty, err := tx.BalanceForUpdate(ctx, ref.playerID, ref.resourceID)
				if err != nil {
					return err
				}
				if qty <= 0 {
					continue
				}
				if err := tx.AddBalance(ctx, ref.playerID, ref.resourceID, qty/2-qty); err != nil {
					return err
				}
			}
			if err := tx.AppendHistory(ctx, store.HistoryEntry{
				PlayerID: playerID,
				Action:   "collect",
				Details:  "caught over-collecting: every stash halved",
				At:       now,
			}); err != nil {
				return err
			}
		} else {
			pick := resources[s.rand.Intn(len(resources))]
			out.Resource = pick.Name
			if err := tx.AddBalance(ctx, playerID, pick.ID, 1); err != nil {
				return err
			}
			if err := tx.AppendHistory(ctx, store.HistoryEntry{
				PlayerID: playerID,
				Action:   "collect",
				Details:  "collected 1 " + pick.Name,
				At:       now,
			}); err != nil {
				return err
			}
		}
		return tx.AppendCollect(ctx, playerID, seq+1, now)
	})
	if err != nil {
		return CollectResult{}, err
	}
	if out.Penalty {
		s.log.Info("collect penalty applied", "player_id", playerID, "count", out.CollectCount)
	}
	return out, nil
}

// SubmitTask spends the task's resource costs and pays out its credit
// reward. Every cost balance is locked in canonical order before the first
// check; a shortfall aborts with no mutation.
func (s *Service) SubmitTask(ctx context.Context, playerID, taskID int64) (SubmitResult, error) {
	task, err := s.store.TaskByID(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return SubmitResult{}, ErrInvalidTask
	}
	if err != nil {
		return SubmitResult{}, err
	}

	costs := append([]store.TaskCost(nil), task.Costs...)
	sort.Slice(costs, func(i, j int) bool { return costs[i].ResourceID < costs[j].ResourceID })

	out := SubmitResult{TaskID: task.ID, TaskName: task.Name, Reward: task.Reward}
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.PlayerForUpdate(ctx, playerID)
		if err != nil {
			return err
		}
		for _, c := range costs {
			have, err := tx.BalanceForUpdate(ctx, playerID, c.ResourceID)
			if err != nil {
				return err
			}
			if have < c.Quantity {
				return &InsufficientResourceError{Kind: c.ResourceName, Required: c.Quantity, Available: have}
			}
		}
		for _, c := range costs {
			if err := tx.AddBalance(ctx, playerID, c.ResourceID, -c.Quantity); err != nil {
				return err
			}
		}
		if err := tx.AddCredits(ctx, playerID, task.Reward); err != nil {
			return err
		}
		out.Credits = p.Credits + task.Reward
		return tx.AppendHistory(ctx, store.HistoryEntry{
			PlayerID:      playerID,
			Action:        "task",
			Details:       "completed " + task.Name,
			CreditsEarned: task.Reward,
			At:            s.clock.Now(),
		})
	})
	if err != nil {
		return SubmitResult{}, err
	}
	return out, nil
}

// ProposeTrade records a pending offer. The balance check here is an
// unlocked courtesy read; nothing is escrowed and the authoritative check
// happens under lock at acceptance.
func (s *Service) ProposeTrade(ctx context.Context, in ProposeTradeInput) (TradeView, error) {
	if in.OfferQty <= 0 || in.RequestQty <= 0 {
		return TradeView{}, fmt.Errorf("%w: quantities must be > 0", ErrInvalidInput)
	}
	initiator, err := s.store.PlayerByID(ctx, in.InitiatorID)
	if err != nil {
		return TradeView{}, err
	}
	recipient, _, err := s.store.PlayerByUsername(ctx, strings.TrimSpace(in.RecipientUsername))
	if errors.Is(err, store.ErrNotFound) {
		return TradeView{}, fmt.Errorf("%w: unknown recipient %q", ErrInvalidInput, in.RecipientUsername)
	}
	if err != nil {
		return TradeView{}, err
	}
	if recipient.ID == initiator.ID {
		return TradeView{}, fmt.Errorf("%w: cannot trade with yourself", ErrInvalidInput)
	}
	offered, err := s.resourceByName(ctx, in.OfferResource)
	if err != nil {
		return TradeView{}, err
	}
	requested, err := s.resourceByName(ctx, in.RequestResource)
	if err != nil {
		return TradeView{}, err
	}

	have, err := s.store.Balance(ctx, initiator.ID, offered.ID)
	if err != nil {
		return TradeView{}, err
	}
	if have < in.OfferQty {
		return TradeView{}, &InsufficientResourceError{Kind: offered.Name, Required: in.OfferQty, Available: have}
	}

	t := store.Trade{
		InitiatorID:       initiator.ID,
		RecipientID:       recipient.ID,
		OfferedResource:   offered.ID,
		OfferedQty:        in.OfferQty,
		RequestedResource: requested.ID,
		RequestedQty:      in.RequestQty,
		Status:            store.TradePending,
		CreatedAt:         s.clock.Now(),
	}
	id, err := s.store.CreateTrade(ctx, t)
	if err != nil {
		return TradeView{}, err
	}
	t.ID = id
	return TradeView{
		ID:                id,
		Initiator:         initiator.Username,
		Recipient:         recipient.Username,
		OfferedResource:   offered.Name,
		OfferedQty:        t.OfferedQty,
		RequestedResource: requested.Name,
		RequestedQty:      t.RequestedQty,
		Status:            string(t.Status),
		CreatedAt:         t.CreatedAt,
	}, nil
}

// ListIncomingTrades returns the pending trades addressed to the player.
func (s *Service) ListIncomingTrades(ctx context.Context, playerID int64) ([]TradeView, error) {
	trades, err := s.store.TradesForRecipient(ctx, playerID, store.TradePending)
	if err != nil {
		return nil, err
	}
	return s.tradeViews(ctx, trades)
}

// AcceptTrade settles a pending trade in one transaction: the trade row is
// locked first, then the two player rows in ascending id order, then the
// four balance rows in canonical order, then both sides are re-validated
// before any delta is applied. A failed validation rolls back and leaves
// the trade pending.
func (s *Service) AcceptTrade(ctx context.Context, tradeID, acceptorID int64) (TradeView, error) {
	resources, err := s.store.Resources(ctx)
	if err != nil {
		return TradeView{}, err
	}
	nameOf := func(id int64) string {
		for _, r := range resources {
			if r.ID == id {
				return r.Name
			}
		}
		return fmt.Sprintf("resource %d", id)
	}

	var view TradeView
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		t, err := tx.TradeForUpdate(ctx, tradeID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidTrade
		}
		if err != nil {
			return err
		}
		if t.Status != store.TradePending {
			return ErrInvalidTrade
		}
		if t.RecipientID != acceptorID {
			return ErrNotAuthorized
		}

		// Player rows are locked before any balance row, ascending by
		// id, the same hierarchy collect and task submission follow.
		playerIDs := []int64{t.InitiatorID, t.RecipientID}
		if playerIDs[1] < playerIDs[0] {
			playerIDs[0], playerIDs[1] = playerIDs[1], playerIDs[0]
		}
		players := make(map[int64]store.Player, 2)
		for _, id := range playerIDs {
			p, err := tx.PlayerForUpdate(ctx, id)
			if err != nil {
				return err
			}
			players[id] = p
		}

		refs := lockOrder(
			balanceRef{t.InitiatorID, t.OfferedResource},
			balanceRef{t.InitiatorID, t.RequestedResource},
			balanceRef{t.RecipientID, t.OfferedResource},
			balanceRef{t.RecipientID, t.RequestedResource},
		)
		held := make(map[balanceRef]int64, len(refs))
		for _, ref := range refs {
			qty, err := tx.BalanceForUpdate(ctx, ref.playerID, ref.resourceID)
			if err != nil {
				return err
			}
			held[ref] = qty
		}

		if have := held[balanceRef{t.InitiatorID, t.OfferedResource}]; have < t.OfferedQty {
			return &InsufficientResourceError{
				Kind:      nameOf(t.OfferedResource),
				Required:  t.OfferedQty,
				Available: have,
			}
		}
		if have := held[balanceRef{t.RecipientID, t.RequestedResource}]; have < t.RequestedQty {
			return &InsufficientResourceError{
				Kind:      nameOf(t.RequestedResource),
				Required:  t.RequestedQty,
				Available: have,
			}
		}

		if err := tx.AddBalance(ctx, t.InitiatorID, t.OfferedResource, -t.OfferedQty); err != nil {
			return err
		}
		if err := tx.AddBalance(ctx, t.RecipientID, t.OfferedResource, t.OfferedQty); err != nil {
			return err
		}
		if err := tx.AddBalance(ctx, t.RecipientID, t.RequestedResource, -t.RequestedQty); err != nil {
			return err
		}
		if err := tx.AddBalance(ctx, t.InitiatorID, t.RequestedResource, t.RequestedQty); err != nil {
			return err
		}
		if err := tx.SetTradeStatus(ctx, t.ID, store.TradeCompleted); err != nil {
			return err
		}

		now := s.clock.Now()
		offeredName := nameOf(t.OfferedResource)
		requestedName := nameOf(t.RequestedResource)
		initiatorLine := fmt.Sprintf("trade #%d settled: gave %d %s, received %d %s",
			t.ID, t.OfferedQty, offeredName, t.RequestedQty, requestedName)
		recipientLine := fmt.Sprintf("trade #%d settled: gave %d %s, received %d %s",
			t.ID, t.RequestedQty, requestedName, t.OfferedQty, offeredName)
		if err := tx.AppendHistory(ctx, store.HistoryEntry{
			PlayerID: t.InitiatorID, Action: "trade", Details: initiatorLine, At: now,
		}); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, store.HistoryEntry{
			PlayerID: t.RecipientID, Action: "trade", Details: recipientLine, At: now,
		}); err != nil {
			return err
		}

		// The response is assembled before commit so no read after the
		// settlement can fail it.
		view = TradeView{
			ID:                t.ID,
			Initiator:         players[t.InitiatorID].Username,
			Recipient:         players[t.RecipientID].Username,
			OfferedResource:   offeredName,
			OfferedQty:        t.OfferedQty,
			RequestedResource: requestedName,
			RequestedQty:      t.RequestedQty,
			Status:            string(store.TradeCompleted),
			CreatedAt:         t.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return TradeView{}, err
	}

	s.log.Info("trade settled", "trade_id", view.ID,
		"initiator", view.Initiator, "recipient", view.Recipient)
	return view, nil
}

// RejectTrade cancels a pending trade. Wrong caller, missing trade or a
// trade already out of pending all come back as a quiet no-op, so a
// doubled form submission never surfaces an error.
func (s *Service) RejectTrade(ctx context.Context, tradeID, recipientID int64) (RejectResult, error) {
	var out RejectResult
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		t, err := tx.TradeForUpdate(ctx, tradeID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if t.Status != store.TradePending || t.RecipientID != recipientID {
			return nil
		}
		if err := tx.SetTradeStatus(ctx, t.ID, store.TradeCancelled); err != nil {
			return err
		}
		out.Cancelled = true
		return nil
	})
	return out, err
}

// ListTasks exposes the fixed task catalog.
func (s *Service) ListTasks(ctx context.Context) ([]TaskView, error) {
	tasks, err := s.store.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		v := TaskView{ID: t.ID, Name: t.Name, Reward: t.Reward}
		for _, c := range t.Costs {
			v.Costs = append(v.Costs, CostView{Resource: c.ResourceName, Quantity: c.Quantity})
		}
		out = append(out, v)
	}
	return out, nil
}

// Dashboard aggregates a player's balances, credits, recent history and
// leaderboard rank.
func (s *Service) Dashboard(ctx context.Context, playerID int64) (Dashboard, error) {
	p, err := s.store.PlayerByID(ctx, playerID)
	if err != nil {
		return Dashboard{}, err
	}
	balances, err := s.store.Balances(ctx, playerID)
	if err != nil {
		return Dashboard{}, err
	}
	history, err := s.store.History(ctx, playerID, 10)
	if err != nil {
		return Dashboard{}, err
	}
	rank, err := s.store.Rank(ctx, playerID)
	if err != nil {
		return Dashboard{}, err
	}

	out := Dashboard{
		Player:  p.Firstname + " " + p.Lastname,
		Credits: p.Credits,
		Rank:    rank,
	}
	for _, b := range balances {
		out.Resources = append(out.Resources, BalanceView{Resource: b.ResourceName, Quantity: b.Quantity})
	}
	for _, h := range history {
		out.History = append(out.History, HistoryView{
			Action:        h.Action,
			Details:       h.Details,
			CreditsEarned: h.CreditsEarned,
			At:            h.At,
		})
	}
	return out, nil
}

// Leaderboard orders players by credits descending, lastname ascending.
func (s *Service) Leaderboard(ctx context.Context) ([]LeaderboardRow, error) {
	rows, err := s.store.Leaderboard(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]LeaderboardRow, 0, len(rows))
	for i, r := range rows {
		out = append(out, LeaderboardRow{
			Rank:      int64(i + 1),
			Firstname: r.Firstname,
			Lastname:  r.Lastname,
			Credits:   r.Credits,
		})
	}
	return out, nil
}

func (s *Service) resourceByName(ctx context.Context, name string) (store.Resource, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	resources, err := s.store.Resources(ctx)
	if err != nil {
		return store.Resource{}, err
	}
	for _, r := range resources {
		if r.Name == name {
			return r, nil
		}
	}
	return store.Resource{}, fmt.Errorf("%w: unknown resource %q", ErrInvalidInput, name)
}

func (s *Service) resourceName(ctx context.Context, id int64) string {
	resources, err := s.store.Resources(ctx)
	if err != nil {
		return fmt.Sprintf("resource %d", id)
	}
	for _, r := range resources {
		if r.ID == id {
			return r.Name
		}
	}
	return fmt.Sprintf("resource %d", id)
}

func (s *Service) tradeViews(ctx context.Context, trades []store.Trade) ([]TradeView, error) {
	names := make(map[int64]string)
	username := func(id int64) (string, error) {
		if name, ok := names[id]; ok {
			return name, nil
		}
		p, err := s.store.PlayerByID(ctx, id)
		if err != nil {
			return "", err
		}
		names[id] = p.Username
		return p.Username, nil
	}

	out := make([]TradeView, 0, len(trades))
	for _, t := range trades {
		initiator, err := username(t.InitiatorID)
		if err != nil {
			return nil, err
		}
		recipient, err := username(t.RecipientID)
		if err != nil {
			return nil, err
		}
		out = append(out, TradeView{
			ID:                t.ID,
			Initiator:         initiator,
			Recipient:         recipient,
			OfferedResource:   s.resourceName(ctx, t.OfferedResource),
			OfferedQty:        t.OfferedQty,
			RequestedResource: s.resourceName(ctx, t.RequestedResource),
			RequestedQty:      t.RequestedQty,
			Status:            string(t.Status),
			CreatedAt:         t.CreatedAt,
		})
	}
	return out, nil
}
