package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlUtterances is the base schema: no pgvector dependency, so an archive
// without semantic search runs against a stock PostgreSQL.
const ddlUtterances = `
CREATE TABLE IF NOT EXISTS utterances (
    id           BIGSERIAL    PRIMARY KEY,
    guild_id     TEXT         NOT NULL,
    channel_id   TEXT         NOT NULL DEFAULT '',
    speaker_id   TEXT         NOT NULL,
    speaker_name TEXT         NOT NULL DEFAULT '',
    text         TEXT         NOT NULL,
    raw_text     TEXT         NOT NULL DEFAULT '',
    reason       TEXT         NOT NULL DEFAULT '',
    backend      TEXT         NOT NULL DEFAULT '',
    started_at   TIMESTAMPTZ  NOT NULL,
    duration_ns  BIGINT       NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_utterances_guild
    ON utterances (guild_id);

CREATE INDEX IF NOT EXISTS idx_utterances_started_at
    ON utterances (started_at);

CREATE INDEX IF NOT EXISTS idx_utterances_guild_started
    ON utterances (guild_id, started_at);

CREATE INDEX IF NOT EXISTS idx_utterances_fts
    ON utterances USING GIN (to_tsvector('english', text));
`

// ddlEmbeddings returns the semantic-search DDL with the embedding
// dimension substituted. The dimension is baked into the column type, so
// changing the embedding model later requires a manual schema change.
func ddlEmbeddings(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

ALTER TABLE utterances
    ADD COLUMN IF NOT EXISTS embedding vector(%d);

CREATE INDEX IF NOT EXISTS idx_utterances_embedding
    ON utterances USING hnsw (embedding vector_cosine_ops);
`, dimensions)
}

// Migrate ensures the archive schema exists. It is idempotent and safe to
// call on every start. embeddingDimensions <= 0 skips the pgvector parts,
// for deployments without semantic search.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{ddlUtterances}
	if embeddingDimensions > 0 {
		statements = append(statements, ddlEmbeddings(embeddingDimensions))
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("archive migrate: %w", err)
		}
	}
	return nil
}
