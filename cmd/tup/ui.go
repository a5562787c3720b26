package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"tradeup/internal/auth"
	"tradeup/internal/game"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	goodColor    = color.New(color.FgGreen)
	badColor     = color.New(color.FgRed, color.Bold)
	creditColor  = color.New(color.FgYellow, color.Bold)
	mutedColor   = color.New(color.FgHiBlack)
	pendingColor = color.New(color.FgMagenta)
)

// flavorLabel decorates a resource name for display. Unknown resources
// fall back to the bare name so a reskinned catalog still renders.
func flavorLabel(resource string) string {
	switch resource {
	case "pizza":
		return "pizza 🍕"
	case "coffee":
		return "coffee ☕"
	case "sleep":
		return "sleep 😴"
	case "study":
		return "study 📚"
	}
	return resource
}

func promptRequired(label string) (string, error) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s: ", label)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line != "" {
			return line, nil
		}
	}
}

func printWelcome(session auth.Session) {
	goodColor.Printf("logged in as %s", session.Username)
	fmt.Println()
	mutedColor.Printf("session valid until %s", session.ExpiresAt.Local().Format("Jan 2 15:04"))
	fmt.Println()
}

func printDashboard(d game.Dashboard) {
	headerColor.Printf("%s", d.Player)
	fmt.Print("  ")
	creditColor.Printf("%d credits", d.Credits)
	fmt.Printf("  (rank #%d)\n\n", d.Rank)

	headerColor.Println("Resources")
	if len(d.Resources) == 0 {
		mutedColor.Println("  nothing yet, try: tup collect")
	}
	for _, b := range d.Resources {
		fmt.Printf("  %-14s %d\n", flavorLabel(b.Resource), b.Quantity)
	}

	if len(d.History) > 0 {
		fmt.Println()
		headerColor.Println("Recent activity")
		for _, h := range d.History {
			line := fmt.Sprintf("  %s  %s %s", h.At.Local().Format("Jan 2 15:04"), h.Action, h.Details)
			if h.CreditsEarned > 0 {
				line += fmt.Sprintf(" (+%d credits)", h.CreditsEarned)
			}
			fmt.Println(line)
		}
	}
}

func printCollect(r game.CollectResult) {
	if r.Penalty {
		badColor.Println("penalty! half of every resource you held is gone")
	} else {
		goodColor.Printf("collected 1 %s", flavorLabel(r.Resource))
		fmt.Println()
	}
	mutedColor.Printf("collections so far: %d, next penalty chance: %d%%", r.CollectCount, r.PenaltyChance)
	fmt.Println()
}

func printTasks(tasks []game.TaskView) {
	headerColor.Println("Tasks")
	for _, t := range tasks {
		parts := make([]string, 0, len(t.Costs))
		for _, c := range t.Costs {
			parts = append(parts, fmt.Sprintf("%d %s", c.Quantity, flavorLabel(c.Resource)))
		}
		fmt.Printf("  [%d] %-22s costs %-34s ", t.ID, t.Name, strings.Join(parts, ", "))
		creditColor.Printf("%d credits", t.Reward)
		fmt.Println()
	}
	fmt.Println()
	mutedColor.Println("submit one with: tup submit <task-id>")
}

func printSubmit(r game.SubmitResult) {
	goodColor.Printf("completed %q", r.TaskName)
	fmt.Print("  ")
	creditColor.Printf("+%d credits", r.Reward)
	fmt.Printf("  (total %d)\n", r.Credits)
}

func printTrades(trades []game.TradeView) {
	if len(trades) == 0 {
		mutedColor.Println("no pending trades")
		return
	}
	headerColor.Println("Incoming trades")
	for _, t := range trades {
		fmt.Printf("  [%d] %s offers ", t.ID, t.Initiator)
		goodColor.Printf("%d %s", t.OfferedQty, flavorLabel(t.OfferedResource))
		fmt.Print(" for your ")
		badColor.Printf("%d %s", t.RequestedQty, flavorLabel(t.RequestedResource))
		fmt.Println()
	}
	fmt.Println()
	mutedColor.Println("answer with: tup accept <trade-id> / tup reject <trade-id>")
}

func printProposed(t game.TradeView) {
	pendingColor.Printf("trade #%d proposed to %s", t.ID, t.Recipient)
	fmt.Println()
	fmt.Printf("  you give %d %s for %d %s\n",
		t.OfferedQty, flavorLabel(t.OfferedResource),
		t.RequestedQty, flavorLabel(t.RequestedResource))
	mutedColor.Println("it stays pending until they accept or reject it")
}

func printSettled(t game.TradeView) {
	goodColor.Printf("trade #%d settled", t.ID)
	fmt.Println()
	fmt.Printf("  you received %d %s and gave %d %s\n",
		t.OfferedQty, flavorLabel(t.OfferedResource),
		t.RequestedQty, flavorLabel(t.RequestedResource))
}

func printRejected(r game.RejectResult) {
	if r.Cancelled {
		mutedColor.Println("trade rejected")
	} else {
		mutedColor.Println("nothing to reject")
	}
}

func printLeaderboard(rows []game.LeaderboardRow) {
	headerColor.Println("Leaderboard")
	for _, row := range rows {
		fmt.Printf("  #%-3d %-24s ", row.Rank, row.Firstname+" "+row.Lastname)
		creditColor.Printf("%d credits", row.Credits)
		fmt.Println()
	}
}
