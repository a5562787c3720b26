package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	cl "tradeup/internal/cli"
	"tradeup/internal/config"
)

func main() {
	cfg, err := config.LoadCLI()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "tup",
		Short:        "Tradeup terminal game client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newLoginCmd(&apiBase),
		newLogoutCmd(&apiBase),
		newDashboardCmd(&apiBase),
		newCollectCmd(&apiBase),
		newTasksCmd(&apiBase),
		newSubmitCmd(&apiBase),
		newTradesCmd(&apiBase),
		newProposeCmd(&apiBase),
		newAcceptCmd(&apiBase),
		newRejectCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(*apiBase)
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func requireSession() (string, error) {
	session, ok, err := cl.LoadSession()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("not logged in; run: tup login")
	}
	return session.Token, nil
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := promptRequired("Username")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext()
			defer cancel()
			session, err := newClient(apiBase).Login(ctx, username, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(session); err != nil {
				return err
			}
			printWelcome(session)
			return nil
		},
	}
}

func newLogoutCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, ok, err := cl.LoadSession()
			if err != nil {
				return err
			}
			if ok {
				ctx, cancel := cmdContext()
				defer cancel()
				_ = newClient(apiBase).Logout(ctx, session.Token)
			}
			return cl.ClearSession()
		},
	}
}

func newDashboardCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show your resources, credits, rank and recent history",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext()
			defer cancel()
			out, err := newClient(apiBase).Dashboard(ctx, token)
			if err != nil {
				return err
			}
			printDashboard(out)
			return nil
		},
	}
}

func newCollectCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Roll for a resource (or a penalty)",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext()
			defer cancel()
			out, err := newClient(apiBase).Collect(ctx, token)
			if err != nil {
				return err
			}
			printCollect(out)
			return nil
		},
	}
}

func newTasksCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the task catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext()
			defer cancel()
			out, err := newClient(apiBase).Tasks(ctx, token)
			if err != nil {
				return err
			}
			printTasks(out)
			return nil
		},
	}
}

func newSubmitCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <task-id>",
		Short: "Spend resources on a task for credits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			token, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext()
			defer cancel()
			out, err := newClient(apiBase).SubmitTask(ctx, token, taskID)
			if err != nil {
				return err
			}
			printSubmit(out)
			return nil
		},
	}
}

func newTradesCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "trades",
		Short: "List pending trades addressed to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext()
			defer cancel()
			out, err := newClient(apiBase).IncomingTrades(ctx, token)
			if err != nil {
				return err
			}
			printTrades(out)
			return nil
		},
	}
}

func newProposeCmd(apiBase *string) *cobra.Command {
	var in cl.ProposeInput
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Offer a trade to another player",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext()
			defer cancel()
			out, err := newClient(apiBase).ProposeTrade(ctx, token, in)
			if err != nil {
				return err
			}
			printProposed(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Recipient, "to", "", "recipient username")
	cmd.Flags().StringVar(&in.OfferResource, "offer", "", "resource you give")
	cmd.Flags().Int64Var(&in.OfferQty, "offer-qty", 1, "quantity you give")
	cmd.Flags().StringVar(&in.RequestResource, "request", "", "resource you want")
	cmd.Flags().Int64Var(&in.RequestQty, "request-qty", 1, "quantity you want")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("offer")
	_ = cmd.MarkFlagRequired("request")
	return cmd
}

func newAcceptCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "accept <trade-id>",
		Short: "Accept an incoming trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tradeID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid trade id %q", args[0])
			}
			token, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext()
			defer cancel()
			out, err := newClient(apiBase).AcceptTrade(ctx, token, tradeID)
			if err != nil {
				return err
			}
			printSettled(out)
			return nil
		},
	}
}

func newRejectCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <trade-id>",
		Short: "Reject an incoming trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tradeID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid trade id %q", args[0])
			}
			token, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext()
			defer cancel()
			out, err := newClient(apiBase).RejectTrade(ctx, token, tradeID)
			if err != nil {
				return err
			}
			printRejected(out)
			return nil
		},
	}
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the credit leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := cmdContext()
			defer cancel()
			out, err := newClient(apiBase).Leaderboard(ctx, token)
			if err != nil {
				return err
			}
			printLeaderboard(out)
			return nil
		},
	}
}
