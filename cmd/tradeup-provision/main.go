// Command tradeup-provision bootstraps a round: it creates the schema if
// missing, seeds the resource and task catalogs, and batch-imports players
// from a JSON roster, hashing their passwords with bcrypt.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"tradeup/internal/config"
	"tradeup/internal/db"
	"tradeup/internal/game"
	"tradeup/internal/store"
	"tradeup/internal/store/postgres"
)

type rosterEntry struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

func main() {
	var rosterPath string

	root := &cobra.Command{
		Use:          "tradeup-provision",
		Short:        "Create the schema, seed the catalogs and import players",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), rosterPath)
		},
	}
	root.Flags().StringVar(&rosterPath, "roster", "", "path to a JSON roster of players to import")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, rosterPath string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadAPI()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	st := postgres.New(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := st.SeedCatalog(ctx, game.DefaultResources, game.DefaultTasks()); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	logger.Info("schema and catalog ready")

	if rosterPath == "" {
		return nil
	}

	raw, err := os.ReadFile(rosterPath)
	if err != nil {
		return fmt.Errorf("read roster: %w", err)
	}
	var roster []rosterEntry
	if err := json.Unmarshal(raw, &roster); err != nil {
		return fmt.Errorf("parse roster: %w", err)
	}

	imported := 0
	for _, entry := range roster {
		if entry.Username == "" || entry.Password == "" {
			logger.Warn("skipping roster entry with empty username or password",
				"username", entry.Username)
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(entry.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", entry.Username, err)
		}
		err = st.CreatePlayer(ctx, store.Player{
			Firstname: entry.Firstname,
			Lastname:  entry.Lastname,
			Username:  entry.Username,
		}, string(hash))
		if err != nil {
			return fmt.Errorf("create player %s: %w", entry.Username, err)
		}
		imported++
	}
	logger.Info("roster import complete", "players", imported)
	return nil
}
