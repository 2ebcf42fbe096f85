package database

import (
	"context"
	"fmt"
	"log"
)

// migrations are forward-only and applied in order at startup. Never edit an
// applied entry; append a new one.
var migrations = []string{
	// 1: core tenancy
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		tenant_id TEXT,
		slug TEXT NOT NULL,
		visibility TEXT NOT NULL DEFAULT 'private',
		active_policy_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_slug_active
		ON projects (COALESCE(tenant_id, ''), slug) WHERE deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS repos (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		canonical_origin TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_repos_origin ON repos (canonical_origin);
	CREATE INDEX IF NOT EXISTS idx_repos_project ON repos (project_id);`,

	// 2: workspaces + immutable-binding guard
	`CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		repo_id TEXT REFERENCES repos(id),
		alias TEXT NOT NULL,
		human_name TEXT,
		member_email TEXT,
		role TEXT,
		class TEXT NOT NULL DEFAULT 'agent',
		current_branch TEXT,
		focus_bead_id TEXT,
		hostname TEXT,
		workspace_path TEXT,
		timezone TEXT,
		last_seen_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at TIMESTAMPTZ
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_workspaces_alias_active
		ON workspaces (project_id, alias) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_workspaces_project ON workspaces (project_id);

	CREATE OR REPLACE FUNCTION workspaces_guard_immutable() RETURNS trigger AS $$
	BEGIN
		IF NEW.project_id IS DISTINCT FROM OLD.project_id
			OR NEW.repo_id IS DISTINCT FROM OLD.repo_id
			OR NEW.alias IS DISTINCT FROM OLD.alias
			OR NEW.class IS DISTINCT FROM OLD.class THEN
			RAISE EXCEPTION 'workspace bindings are immutable';
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;
	DROP TRIGGER IF EXISTS trg_workspaces_immutable ON workspaces;
	CREATE TRIGGER trg_workspaces_immutable BEFORE UPDATE ON workspaces
		FOR EACH ROW EXECUTE FUNCTION workspaces_guard_immutable();`,

	// 3: auth
	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		agent_id TEXT,
		name TEXT NOT NULL DEFAULT '',
		key_hash TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		revoked_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_api_keys_project ON api_keys (project_id);`,

	// 4: issue mirror
	`CREATE EXTENSION IF NOT EXISTS pg_trgm;
	CREATE TABLE IF NOT EXISTS beads_issues (
		project_id TEXT NOT NULL REFERENCES projects(id),
		bead_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'open',
		priority INTEGER NOT NULL DEFAULT 2,
		assignee TEXT,
		creator TEXT,
		labels TEXT[] NOT NULL DEFAULT '{}',
		parent_ref JSONB,
		blocked_by JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		closed_at TIMESTAMPTZ,
		PRIMARY KEY (project_id, bead_id)
	);
	CREATE INDEX IF NOT EXISTS idx_issues_status ON beads_issues (project_id, status);
	CREATE INDEX IF NOT EXISTS idx_issues_title_trgm ON beads_issues USING gin (title gin_trgm_ops);
	CREATE INDEX IF NOT EXISTS idx_issues_body_trgm ON beads_issues USING gin (body gin_trgm_ops);`,

	// 5: claims + subscriptions
	`CREATE TABLE IF NOT EXISTS bead_claims (
		project_id TEXT NOT NULL REFERENCES projects(id),
		bead_id TEXT NOT NULL,
		workspace_id TEXT NOT NULL REFERENCES workspaces(id),
		alias TEXT NOT NULL,
		human_name TEXT,
		apex_bead_id TEXT,
		claimed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (project_id, bead_id, workspace_id)
	);
	CREATE INDEX IF NOT EXISTS idx_claims_workspace ON bead_claims (project_id, workspace_id);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		workspace_id TEXT NOT NULL REFERENCES workspaces(id),
		bead_id TEXT NOT NULL,
		repo TEXT,
		event_types TEXT[] NOT NULL DEFAULT '{status_change}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_tuple
		ON subscriptions (project_id, workspace_id, bead_id, COALESCE(repo, ''));`,

	// 6: outbox + audit
	`CREATE TABLE IF NOT EXISTS notification_outbox (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		workspace_id TEXT NOT NULL,
		alias TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		fingerprint TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at TIMESTAMPTZ,
		delivered_message_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_outbox_drain
		ON notification_outbox (status, next_attempt_at) WHERE status IN ('pending', 'failed');
	CREATE INDEX IF NOT EXISTS idx_outbox_dedupe
		ON notification_outbox (workspace_id, fingerprint);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		detail JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_audit_project ON audit_log (project_id, created_at);`,

	// 7: policies + escalations
	`CREATE TABLE IF NOT EXISTS project_policies (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		version INTEGER NOT NULL,
		bundle JSONB NOT NULL,
		created_by TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (project_id, version)
	);

	CREATE TABLE IF NOT EXISTS escalations (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		workspace_id TEXT NOT NULL,
		alias TEXT NOT NULL,
		subject TEXT NOT NULL,
		situation TEXT NOT NULL,
		options TEXT[] NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'pending',
		response TEXT,
		response_note TEXT,
		responded_by TEXT,
		responded_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_escalations_project ON escalations (project_id, status);`,

	// 8: messaging
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		from_workspace_id TEXT NOT NULL,
		from_alias TEXT NOT NULL,
		to_workspace_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'normal',
		thread_id TEXT,
		fingerprint TEXT,
		read BOOLEAN NOT NULL DEFAULT false,
		read_by TEXT,
		read_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_messages_inbox
		ON messages (project_id, to_workspace_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		participants TEXT[] NOT NULL,
		aliases TEXT[] NOT NULL,
		participant_key TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_sessions_participants
		ON chat_sessions (project_id, participant_key);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id),
		sender_workspace_id TEXT NOT NULL,
		alias TEXT NOT NULL,
		body TEXT NOT NULL,
		leaving BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_session
		ON chat_messages (session_id, created_at);`,
}

func (d *Database) migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := d.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
		log.Printf("[Database] Applied migration %d", version)
	}
	return nil
}
