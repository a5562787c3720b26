package postgres

import (
	"context"

	"tradeup/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS players (
    player_id     BIGSERIAL PRIMARY KEY,
    firstname     TEXT NOT NULL,
    lastname      TEXT NOT NULL,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    credits       BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS resources (
    resource_id BIGSERIAL PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS player_resources (
    player_id   BIGINT NOT NULL REFERENCES players(player_id),
    resource_id BIGINT NOT NULL REFERENCES resources(resource_id),
    quantity    BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (player_id, resource_id)
);

CREATE TABLE IF NOT EXISTS collect_log (
    player_id    BIGINT NOT NULL REFERENCES players(player_id),
    seq          BIGINT NOT NULL,
    collected_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (player_id, seq)
);

CREATE TABLE IF NOT EXISTS player_history (
    history_id     BIGSERIAL PRIMARY KEY,
    player_id      BIGINT NOT NULL REFERENCES players(player_id),
    action_type    TEXT NOT NULL,
    details        TEXT NOT NULL,
    credits_earned BIGINT NOT NULL DEFAULT 0,
    at             TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
    task_id BIGSERIAL PRIMARY KEY,
    name    TEXT NOT NULL UNIQUE,
    reward  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS task_costs (
    task_id     BIGINT NOT NULL REFERENCES tasks(task_id),
    resource_id BIGINT NOT NULL REFERENCES resources(resource_id),
    quantity    BIGINT NOT NULL,
    PRIMARY KEY (task_id, resource_id)
);

CREATE TABLE IF NOT EXISTS trades (
    trade_id           BIGSERIAL PRIMARY KEY,
    initiator_id       BIGINT NOT NULL REFERENCES players(player_id),
    recipient_id       BIGINT NOT NULL REFERENCES players(player_id),
    offered_resource   BIGINT NOT NULL REFERENCES resources(resource_id),
    offered_qty        BIGINT NOT NULL,
    requested_resource BIGINT NOT NULL REFERENCES resources(resource_id),
    requested_qty      BIGINT NOT NULL,
    status             TEXT NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS trades_recipient_status_idx
    ON trades (recipient_id, status);
`

// EnsureSchema creates the tables when they are missing. Used by the
// provisioning tool only; the API server expects a provisioned database.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

// SeedCatalog inserts the fixed resource and task reference data when the
// catalog is empty.
func (s *Store) SeedCatalog(ctx context.Context, resources []string, tasks []store.Task) error {
	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(1) FROM resources`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ids := make(map[string]int64, len(resources))
	for _, name := range resources {
		var id int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO resources (name) VALUES ($1) RETURNING resource_id
		`, name).Scan(&id); err != nil {
			return err
		}
		ids[name] = id
	}

	for _, t := range tasks {
		var taskID int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO tasks (name, reward) VALUES ($1, $2) RETURNING task_id
		`, t.Name, t.Reward).Scan(&taskID); err != nil {
			return err
		}
		for _, c := range t.Costs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO task_costs (task_id, resource_id, quantity)
				VALUES ($1, $2, $3)
			`, taskID, ids[c.ResourceName], c.Quantity); err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

// CreatePlayer inserts a player with a pre-hashed password. Existing
// usernames are left untouched so a roster import can be re-run.
func (s *Store) CreatePlayer(ctx context.Context, p store.Player, passwordHash string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO players (firstname, lastname, username, password_hash, credits)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO NOTHING
	`, p.Firstname, p.Lastname, p.Username, passwordHash, p.Credits)
	return err
}
