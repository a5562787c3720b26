package game

import "time"

type CollectResult struct {
	Penalty       bool   `json:"penalty"`
	Resource      string `json:"resource,omitempty"`
	CollectCount  int64  `json:"collect_count"`
	PenaltyChance int    `json:"penalty_chance_percent"`
}

type SubmitResult struct {
	TaskID   int64  `json:"task_id"`
	TaskName string `json:"task_name"`
	Reward   int64  `json:"reward"`
	Credits  int64  `json:"credits"`
}

type ProposeTradeInput struct {
	InitiatorID       int64
	RecipientUsername string
	OfferResource     string
	OfferQty          int64
	RequestResource   string
	RequestQty        int64
}

type TradeView struct {
	ID                int64     `json:"id"`
	Initiator         string    `json:"initiator"`
	Recipient         string    `json:"recipient"`
	OfferedResource   string    `json:"offered_resource"`
	OfferedQty        int64     `json:"offered_qty"`
	RequestedResource string    `json:"requested_resource"`
	RequestedQty      int64     `json:"requested_qty"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

type RejectResult struct {
	Cancelled bool `json:"cancelled"`
}

type BalanceView struct {
	Resource string `json:"resource"`
	Quantity int64  `json:"quantity"`
}

type HistoryView struct {
	Action        string    `json:"action"`
	Details       string    `json:"details"`
	CreditsEarned int64     `json:"credits_earned"`
	At            time.Time `json:"at"`
}

type TaskView struct {
	ID     int64      `json:"id"`
	Name   string     `json:"name"`
	Reward int64      `json:"reward"`
	Costs  []CostView `json:"costs"`
}

type CostView struct {
	Resource string `json:"resource"`
	Quantity int64  `json:"quantity"`
}

type Dashboard struct {
	Player    string        `json:"player"`
	Credits   int64         `json:"credits"`
	Rank      int64         `json:"rank"`
	Resources []BalanceView `json:"resources"`
	History   []HistoryView `json:"history"`
}

type LeaderboardRow struct {
	Rank      int64  `json:"rank"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Credits   int64  `json:"credits"`
}
