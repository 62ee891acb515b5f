package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/voxscribe/voxscribe/pkg/embeddings"
)

// ErrNoEmbedder is returned by [Store.SearchSemantic] and [Store.Backfill]
// when the store was built without an embeddings provider.
var ErrNoEmbedder = fmt.Errorf("archive: no embeddings provider configured")

// Option is a functional option for [NewStore].
type Option func(*Store)

// WithEmbedder enables semantic search. Rows written after this point carry
// an embedding of their corrected text; [Store.SearchSemantic] becomes
// available. The provider's Dimensions() is baked into the schema on first
// migration.
func WithEmbedder(p embeddings.Provider) Option {
	return func(s *Store) {
		s.embedder = p
	}
}

// Store is the PostgreSQL-backed transcript archive. All methods are safe
// for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// NewStore connects to the database at dsn, runs the schema migration and
// returns a ready Store. With [WithEmbedder], pgvector types are registered
// on every connection and the embedding column is ensured.
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, o := range opts {
		o(s)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: parse dsn: %w", err)
	}

	// vector columns scan into pgvector.Vector only after type registration,
	// which in turn needs the extension — so both are tied to the embedder.
	if s.embedder != nil {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}

	dims := 0
	if s.embedder != nil {
		dims = s.embedder.Dimensions()
	}
	if err := Migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: %w", err)
	}

	s.pool = pool
	return s, nil
}

// Ping reports whether the database is reachable. Used by the readiness
// check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// WriteEntry appends e to the archive and returns the new row ID. When an
// embedder is configured, the corrected text is embedded inline; an
// embedding failure is logged and the row is written without a vector
// (recoverable via [Store.Backfill]).
func (s *Store) WriteEntry(ctx context.Context, e Entry) (int64, error) {
	var embCol any // nil inserts SQL NULL
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, e.Text)
		if err != nil {
			slog.Warn("archive: embedding failed, writing row without vector",
				"speaker_id", e.SpeakerID, "error", err)
		} else {
			embCol = pgvector.NewVector(vec)
		}
	}

	q := `
		INSERT INTO utterances
		    (guild_id, channel_id, speaker_id, speaker_name, text, raw_text,
		     reason, backend, started_at, duration_ns` + embeddingColumn(s.embedder != nil) + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10` + embeddingParam(s.embedder != nil) + `)
		RETURNING id`

	args := []any{
		e.GuildID,
		e.ChannelID,
		e.SpeakerID,
		e.SpeakerName,
		e.Text,
		e.RawText,
		e.Reason,
		e.Backend,
		e.StartedAt,
		e.Duration.Nanoseconds(),
	}
	if s.embedder != nil {
		args = append(args, embCol)
	}

	var id int64
	if err := s.pool.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("archive: write entry: %w", err)
	}
	return id, nil
}

func embeddingColumn(enabled bool) string {
	if enabled {
		return ", embedding"
	}
	return ""
}

func embeddingParam(enabled bool) string {
	if enabled {
		return ", $11"
	}
	return ""
}

// Recent returns all entries for guildID whose start time is no earlier
// than now minus since, oldest first.
func (s *Store) Recent(ctx context.Context, guildID string, since time.Duration) ([]Entry, error) {
	const q = `
		SELECT id, guild_id, channel_id, speaker_id, speaker_name, text,
		       raw_text, reason, backend, started_at, duration_ns
		FROM   utterances
		WHERE  guild_id   = $1
		  AND  started_at >= now() - ($2::bigint * interval '1 microsecond')
		ORDER  BY started_at`

	rows, err := s.pool.Query(ctx, q, guildID, since.Microseconds())
	if err != nil {
		return nil, fmt.Errorf("archive: recent: %w", err)
	}
	return collectEntries(rows)
}

// SearchText runs a full-text search over the corrected text and applies
// the filters in opts. The query goes through plainto_tsquery, so no
// operator syntax is needed.
func (s *Store) SearchText(ctx context.Context, query string, opts SearchOpts) ([]Entry, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('english', text) @@ plainto_tsquery('english', $1)",
	}
	conditions = append(conditions, filterConditions(opts, next)...)

	q := "SELECT id, guild_id, channel_id, speaker_id, speaker_name, text,\n" +
		"       raw_text, reason, backend, started_at, duration_ns\n" +
		"FROM   utterances\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY started_at"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: search text: %w", err)
	}
	return collectEntries(rows)
}

// SearchSemantic embeds query and returns the topK entries nearest to it
// by cosine distance, most similar first. Rows without an embedding are
// skipped. Returns [ErrNoEmbedder] when semantic search is not enabled.
func (s *Store) SearchSemantic(ctx context.Context, query string, topK int, opts SearchOpts) ([]Result, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("archive: embed query: %w", err)
	}

	args := []any{pgvector.NewVector(vec)} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"embedding IS NOT NULL"}
	conditions = append(conditions, filterConditions(opts, next)...)

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT id, guild_id, channel_id, speaker_id, speaker_name, text,
		       raw_text, reason, backend, started_at, duration_ns,
		       embedding <=> $1 AS distance
		FROM   utterances
		WHERE  %s
		ORDER  BY distance
		LIMIT  %s`, strings.Join(conditions, "\n  AND  "), limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: search semantic: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Result, error) {
		var (
			r          Result
			durationNS int64
		)
		if err := row.Scan(
			&r.Entry.ID,
			&r.Entry.GuildID,
			&r.Entry.ChannelID,
			&r.Entry.SpeakerID,
			&r.Entry.SpeakerName,
			&r.Entry.Text,
			&r.Entry.RawText,
			&r.Entry.Reason,
			&r.Entry.Backend,
			&r.Entry.StartedAt,
			&durationNS,
			&r.Distance,
		); err != nil {
			return Result{}, err
		}
		r.Entry.Duration = time.Duration(durationNS)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan rows: %w", err)
	}
	if results == nil {
		results = []Result{}
	}
	return results, nil
}

// Backfill embeds up to batchSize rows that are missing a vector (written
// during an embedding outage) and reports how many were updated. Call
// repeatedly until it returns 0.
func (s *Store) Backfill(ctx context.Context, batchSize int) (int, error) {
	if s.embedder == nil {
		return 0, ErrNoEmbedder
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	const selectQ = `
		SELECT id, text
		FROM   utterances
		WHERE  embedding IS NULL
		ORDER  BY id
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, selectQ, batchSize)
	if err != nil {
		return 0, fmt.Errorf("archive: backfill select: %w", err)
	}

	type pending struct {
		id   int64
		text string
	}
	todo, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (pending, error) {
		var p pending
		err := row.Scan(&p.id, &p.text)
		return p, err
	})
	if err != nil {
		return 0, fmt.Errorf("archive: backfill scan: %w", err)
	}
	if len(todo) == 0 {
		return 0, nil
	}

	texts := make([]string, len(todo))
	for i, p := range todo {
		texts[i] = p.text
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("archive: backfill embed: %w", err)
	}

	const updateQ = `UPDATE utterances SET embedding = $1 WHERE id = $2`
	for i, p := range todo {
		if _, err := s.pool.Exec(ctx, updateQ, pgvector.NewVector(vecs[i]), p.id); err != nil {
			return i, fmt.Errorf("archive: backfill update id %d: %w", p.id, err)
		}
	}
	return len(todo), nil
}

// filterConditions renders the shared SearchOpts filters, appending
// placeholder arguments through next.
func filterConditions(opts SearchOpts, next func(any) string) []string {
	var conditions []string
	if opts.GuildID != "" {
		conditions = append(conditions, "guild_id = "+next(opts.GuildID))
	}
	if opts.SpeakerID != "" {
		conditions = append(conditions, "speaker_id = "+next(opts.SpeakerID))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "started_at > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "started_at < "+next(opts.Before))
	}
	return conditions
}

// collectEntries scans pgx rows into a slice of Entry values.
func collectEntries(rows pgx.Rows) ([]Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e          Entry
			durationNS int64
		)
		if err := row.Scan(
			&e.ID,
			&e.GuildID,
			&e.ChannelID,
			&e.SpeakerID,
			&e.SpeakerName,
			&e.Text,
			&e.RawText,
			&e.Reason,
			&e.Backend,
			&e.StartedAt,
			&durationNS,
		); err != nil {
			return Entry{}, err
		}
		e.Duration = time.Duration(durationNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan rows: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
