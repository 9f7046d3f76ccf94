package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-recall/internal/deck"
	"github.com/p-n-ai/pai-recall/internal/srs"
)

const dbTimeout = 5 * time.Second

var postgresMigrations = []string{
	`CREATE TABLE decks (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		source_file TEXT NOT NULL,
		synced_at   TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE questions (
		deck_id     TEXT NOT NULL REFERENCES decks(id) ON DELETE CASCADE,
		question_id TEXT NOT NULL,
		text        TEXT NOT NULL,
		kind        TEXT NOT NULL,
		category    TEXT NOT NULL DEFAULT '',
		position    INTEGER NOT NULL,
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (deck_id, question_id)
	);
	CREATE TABLE review_states (
		deck_id          TEXT NOT NULL,
		question_id      TEXT NOT NULL,
		interval_days    INTEGER NOT NULL,
		easiness_factor  DOUBLE PRECISION NOT NULL,
		due_date         DATE NOT NULL,
		repetition_count INTEGER NOT NULL,
		last_reviewed    TIMESTAMPTZ,
		PRIMARY KEY (deck_id, question_id),
		FOREIGN KEY (deck_id, question_id) REFERENCES questions(deck_id, question_id) ON DELETE CASCADE
	);
	CREATE TABLE attempts (
		id           BIGSERIAL PRIMARY KEY,
		deck_id      TEXT NOT NULL,
		question_id  TEXT NOT NULL,
		answered_at  TIMESTAMPTZ NOT NULL,
		given_answer TEXT NOT NULL,
		correct      BOOLEAN NOT NULL,
		response_ms  BIGINT NOT NULL,
		FOREIGN KEY (deck_id, question_id) REFERENCES questions(deck_id, question_id) ON DELETE CASCADE
	);
	CREATE INDEX attempts_question ON attempts(deck_id, question_id);`,

	`ALTER TABLE attempts ADD COLUMN mode TEXT NOT NULL DEFAULT 'review';`,
}

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool    *pgxpool.Pool
	factory StateFactory
}

// NewPostgresStore migrates the schema and returns a store. The store takes
// ownership of pool and closes it in Close.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, f StateFactory) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if err := migratePostgres(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, factory: defaultFactory(f)}, nil
}

func migratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	var version int
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > len(postgresMigrations) {
		return fmt.Errorf("store schema version %d is newer than this build (%d)", version, len(postgresMigrations))
	}

	for i := version; i < len(postgresMigrations); i++ {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, postgresMigrations[i]); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, i+1)
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %d: %w", i+1, err)
		}
		slog.Debug("store migration applied", "version", i+1)
	}
	return nil
}

func (s *PostgresStore) SyncDeck(ctx context.Context, d *deck.Deck, now time.Time) (SyncResult, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var res SyncResult
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		res = SyncResult{}
		if _, err := tx.Exec(ctx,
			`INSERT INTO decks (id, name, source_file, synced_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, source_file = EXCLUDED.source_file, synced_at = EXCLUDED.synced_at`,
			d.ID, d.Name, d.SourceFile, now,
		); err != nil {
			return fmt.Errorf("upsert deck: %w", err)
		}

		rows, err := tx.Query(ctx, `SELECT question_id FROM questions WHERE deck_id = $1 AND active`, d.ID)
		if err != nil {
			return fmt.Errorf("query questions: %w", err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("scan questions: %w", err)
		}
		prev := make(map[string]bool, len(ids))
		for _, id := range ids {
			prev[id] = true
		}

		if _, err := tx.Exec(ctx, `UPDATE questions SET active = FALSE WHERE deck_id = $1`, d.ID); err != nil {
			return fmt.Errorf("deactivate questions: %w", err)
		}

		for i, q := range d.Questions {
			delete(prev, q.ID)
			if _, err := tx.Exec(ctx,
				`INSERT INTO questions (deck_id, question_id, text, kind, category, position, active)
				 VALUES ($1, $2, $3, $4, $5, $6, TRUE)
				 ON CONFLICT (deck_id, question_id) DO UPDATE SET
				   text = EXCLUDED.text, kind = EXCLUDED.kind, category = EXCLUDED.category,
				   position = EXCLUDED.position, active = TRUE`,
				d.ID, q.ID, q.Text, q.Kind.String(), q.Category, i,
			); err != nil {
				return fmt.Errorf("upsert question %s: %w", q.ID, err)
			}

			st := s.factory.NewState(d.ID, q.ID, now)
			cmd, err := tx.Exec(ctx,
				`INSERT INTO review_states (deck_id, question_id, interval_days, easiness_factor, due_date, repetition_count)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (deck_id, question_id) DO NOTHING`,
				d.ID, q.ID, st.IntervalDays, st.EasinessFactor, st.DueDate, st.RepetitionCount,
			)
			if err != nil {
				return fmt.Errorf("create review state %s: %w", q.ID, err)
			}
			if cmd.RowsAffected() > 0 {
				res.Added++
			} else {
				res.Kept++
			}
		}
		res.Removed = len(prev)
		return nil
	})
	if err != nil {
		return SyncResult{}, fmt.Errorf("sync deck: %w", err)
	}
	return res, nil
}

const postgresStateColumns = `s.deck_id, s.question_id, s.interval_days, s.easiness_factor, s.due_date, s.repetition_count, s.last_reviewed`

func scanPostgresState(row pgx.Row) (srs.ReviewState, error) {
	var st srs.ReviewState
	err := row.Scan(&st.DeckID, &st.QuestionID, &st.IntervalDays, &st.EasinessFactor, &st.DueDate, &st.RepetitionCount, &st.LastReviewed)
	st.DueDate = time.Date(st.DueDate.Year(), st.DueDate.Month(), st.DueDate.Day(), 0, 0, 0, 0, time.UTC)
	return st, err
}

func (s *PostgresStore) State(ctx context.Context, deckID, questionID string) (srs.ReviewState, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	st, err := scanPostgresState(s.pool.QueryRow(ctx,
		`SELECT `+postgresStateColumns+` FROM review_states s WHERE s.deck_id = $1 AND s.question_id = $2`,
		deckID, questionID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return srs.ReviewState{}, fmt.Errorf("%w: question %s/%s", ErrNotFound, deckID, questionID)
	}
	if err != nil {
		return srs.ReviewState{}, fmt.Errorf("get review state: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) States(ctx context.Context, deckID string) ([]srs.ReviewState, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresStateColumns+`
		 FROM review_states s
		 JOIN questions q ON q.deck_id = s.deck_id AND q.question_id = s.question_id
		 WHERE q.active AND ($1::text = '' OR q.deck_id = $1)
		 ORDER BY q.deck_id, q.position`,
		deckID,
	)
	if err != nil {
		return nil, fmt.Errorf("query review states: %w", err)
	}
	defer rows.Close()

	var out []srs.ReviewState
	for rows.Next() {
		st, err := scanPostgresState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review state: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review states: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SaveReview(ctx context.Context, st srs.ReviewState, a Attempt) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	a.DeckID, a.QuestionID = st.DeckID, st.QuestionID
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx,
			`UPDATE review_states
			 SET interval_days = $3, easiness_factor = $4, due_date = $5, repetition_count = $6, last_reviewed = $7
			 WHERE deck_id = $1 AND question_id = $2`,
			st.DeckID, st.QuestionID, st.IntervalDays, st.EasinessFactor, st.DueDate, st.RepetitionCount, st.LastReviewed,
		)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return fmt.Errorf("%w: question %s/%s", ErrNotFound, st.DeckID, st.QuestionID)
		}
		return s.insertAttempt(ctx, tx, a)
	})
	if err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendAttempt(ctx context.Context, a Attempt) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := s.insertAttempt(ctx, s.pool, a); err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) insertAttempt(ctx context.Context, db pgExecer, a Attempt) error {
	mode := a.Mode
	if mode == "" {
		mode = ModeReview
	}
	cmd, err := db.Exec(ctx,
		`INSERT INTO attempts (deck_id, question_id, answered_at, given_answer, correct, response_ms, mode)
		 SELECT $1, $2, $3, $4, $5, $6, $7
		 FROM questions q
		 WHERE q.deck_id = $1 AND q.question_id = $2`,
		a.DeckID, a.QuestionID, a.AnsweredAt, a.GivenAnswer, a.Correct, a.ResponseTime.Milliseconds(), mode,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: question %s/%s", ErrNotFound, a.DeckID, a.QuestionID)
	}
	return nil
}

const postgresScope = `($1::text = '' OR q.deck_id = $1) AND ($2::text = '' OR q.category = $2)`

func (s *PostgresStore) Summary(ctx context.Context, scope Scope) (Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var sum Summary
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE s.repetition_count > 0),
		        COALESCE(AVG(s.easiness_factor), 0)
		 FROM review_states s
		 JOIN questions q ON q.deck_id = s.deck_id AND q.question_id = s.question_id
		 WHERE q.active AND `+postgresScope,
		scope.DeckID, scope.Category,
	).Scan(&sum.Questions, &sum.Learned, &sum.AvgEasiness); err != nil {
		return sum, fmt.Errorf("summarize states: %w", err)
	}

	var avgMS float64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE a.correct), COALESCE(AVG(a.response_ms), 0)::float8
		 FROM attempts a
		 JOIN questions q ON q.deck_id = a.deck_id AND q.question_id = a.question_id
		 WHERE `+postgresScope,
		scope.DeckID, scope.Category,
	).Scan(&sum.Attempts, &sum.CorrectAttempts, &avgMS); err != nil {
		return sum, fmt.Errorf("summarize attempts: %w", err)
	}
	sum.Accuracy = accuracy(sum.CorrectAttempts, sum.Attempts)
	sum.AvgResponseTime = time.Duration(avgMS * float64(time.Millisecond))
	return sum, nil
}

func (s *PostgresStore) ProblemQuestions(ctx context.Context, scope Scope, minAttempts, limit int) ([]ProblemQuestion, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT q.deck_id, q.question_id, q.text, q.category, COUNT(*), COUNT(*) FILTER (WHERE a.correct)
		 FROM attempts a
		 JOIN questions q ON q.deck_id = a.deck_id AND q.question_id = a.question_id
		 WHERE q.active AND `+postgresScope+`
		 GROUP BY q.deck_id, q.question_id, q.text, q.category
		 HAVING COUNT(*) >= $3
		 ORDER BY (COUNT(*) FILTER (WHERE a.correct))::float8 / COUNT(*) ASC, COUNT(*) DESC, q.deck_id, q.question_id
		 LIMIT $4`,
		scope.DeckID, scope.Category, minAttempts, lim,
	)
	if err != nil {
		return nil, fmt.Errorf("query problem questions: %w", err)
	}
	defer rows.Close()

	var out []ProblemQuestion
	for rows.Next() {
		var pq ProblemQuestion
		if err := rows.Scan(&pq.DeckID, &pq.QuestionID, &pq.Text, &pq.Category, &pq.Attempts, &pq.Correct); err != nil {
			return nil, fmt.Errorf("scan problem question: %w", err)
		}
		pq.Accuracy = accuracy(pq.Correct, pq.Attempts)
		out = append(out, pq)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Attempts(ctx context.Context, scope Scope) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT a.deck_id, a.question_id, a.answered_at, a.given_answer, a.correct, a.response_ms, a.mode
		 FROM attempts a
		 JOIN questions q ON q.deck_id = a.deck_id AND q.question_id = a.question_id
		 WHERE `+postgresScope+`
		 ORDER BY a.id`,
		scope.DeckID, scope.Category,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a  Attempt
			ms int64
		)
		if err := rows.Scan(&a.DeckID, &a.QuestionID, &a.AnsweredAt, &a.GivenAnswer, &a.Correct, &ms, &a.Mode); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.ResponseTime = time.Duration(ms) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `TRUNCATE attempts, review_states, questions, decks`); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	slog.Info("review store reset")
	return nil
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
