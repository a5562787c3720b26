package game

import "tradeup/internal/store"

// DefaultResources is the fixed resource catalog for a round.
var DefaultResources = []string{"pizza", "coffee", "sleep", "study"}

// DefaultTasks is the fixed task list seeded by the provisioning tool.
// Costs reference resources by name; the store assigns ids at seed time.
func DefaultTasks() []store.Task {
	return []store.Task{
		{
			Name:   "Late-night delivery",
			Reward: 10,
			Costs: []store.TaskCost{
				{ResourceName: "pizza", Quantity: 2},
				{ResourceName: "coffee", Quantity: 1},
			},
		},
		{
			Name:   "Morning lecture",
			Reward: 12,
			Costs: []store.TaskCost{
				{ResourceName: "sleep", Quantity: 2},
				{ResourceName: "coffee", Quantity: 2},
			},
		},
		{
			Name:   "Group project",
			Reward: 20,
			Costs: []store.TaskCost{
				{ResourceName: "study", Quantity: 3},
				{ResourceName: "pizza", Quantity: 2},
			},
		},
		{
			Name:   "Final exam",
			Reward: 30,
			Costs: []store.TaskCost{
				{ResourceName: "study", Quantity: 4},
				{ResourceName: "sleep", Quantity: 3},
				{ResourceName: "coffee", Quantity: 2},
			},
		},
	}
}
