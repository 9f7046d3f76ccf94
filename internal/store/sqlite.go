package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/p-n-ai/pai-recall/internal/deck"
	"github.com/p-n-ai/pai-recall/internal/srs"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339Nano
)

// sqliteMigrations are applied in order; PRAGMA user_version holds the
// number already applied. Only append to this list.
var sqliteMigrations = []string{
	`CREATE TABLE decks (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		source_file TEXT NOT NULL,
		synced_at   TEXT NOT NULL
	);
	CREATE TABLE questions (
		deck_id     TEXT NOT NULL REFERENCES decks(id) ON DELETE CASCADE,
		question_id TEXT NOT NULL,
		text        TEXT NOT NULL,
		kind        TEXT NOT NULL,
		category    TEXT NOT NULL DEFAULT '',
		position    INTEGER NOT NULL,
		active      INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (deck_id, question_id)
	);
	CREATE TABLE review_states (
		deck_id          TEXT NOT NULL,
		question_id      TEXT NOT NULL,
		interval_days    INTEGER NOT NULL,
		easiness_factor  REAL NOT NULL,
		due_date         TEXT NOT NULL,
		repetition_count INTEGER NOT NULL,
		last_reviewed    TEXT,
		PRIMARY KEY (deck_id, question_id),
		FOREIGN KEY (deck_id, question_id) REFERENCES questions(deck_id, question_id) ON DELETE CASCADE
	);
	CREATE TABLE attempts (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		deck_id      TEXT NOT NULL,
		question_id  TEXT NOT NULL,
		answered_at  TEXT NOT NULL,
		given_answer TEXT NOT NULL,
		correct      INTEGER NOT NULL,
		response_ms  INTEGER NOT NULL,
		FOREIGN KEY (deck_id, question_id) REFERENCES questions(deck_id, question_id) ON DELETE CASCADE
	);
	CREATE INDEX attempts_question ON attempts(deck_id, question_id);`,

	`ALTER TABLE attempts ADD COLUMN mode TEXT NOT NULL DEFAULT 'review';`,
}

// SQLiteStore is a Store backed by a local SQLite file.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	factory   StateFactory
	recovered *StoreCorruptionError
}

// OpenSQLite opens or creates the store at path. An unreadable file is moved
// aside and replaced by an empty store; Recovered reports that loss.
func OpenSQLite(ctx context.Context, path string, f StateFactory) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	s := &SQLiteStore{path: path, factory: defaultFactory(f)}
	db, err := openSQLiteDB(ctx, path)
	if err != nil {
		if !isCorrupt(err) {
			return nil, err
		}
		moved, merr := moveAside(path)
		if merr != nil {
			return nil, fmt.Errorf("recovering corrupt store: %w", merr)
		}
		s.recovered = &StoreCorruptionError{Path: path, MovedTo: moved, Err: err}
		slog.Error("review store unreadable, starting empty; previous review history is lost",
			"path", path,
			"moved_to", moved,
			"error", err,
		)
		if db, err = openSQLiteDB(ctx, path); err != nil {
			return nil, err
		}
	}
	s.db = db
	return s, nil
}

func openSQLiteDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=FULL&_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := checkIntegrity(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrateSQLite(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func checkIntegrity(ctx context.Context, db *sql.DB) error {
	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&result); err != nil {
		return fmt.Errorf("checking store: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("checking store: %w: %s", ErrStoreCorrupt, result)
	}
	return nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version > len(sqliteMigrations) {
		return fmt.Errorf("store schema version %d is newer than this build (%d)", version, len(sqliteMigrations))
	}

	for i := version; i < len(sqliteMigrations); i++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migrating store: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqliteMigrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("applying migration %d: %w", i+1, err)
		}
		slog.Debug("store migration applied", "version", i+1)
	}
	return nil
}

func isCorrupt(err error) bool {
	if errors.Is(err, ErrStoreCorrupt) {
		return true
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrNotADB || serr.Code == sqlite3.ErrCorrupt
	}
	return false
}

// moveAside renames the store and its WAL files to <path>.corrupt-<unix>.
func moveAside(path string) (string, error) {
	moved := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, moved); err != nil {
		return "", err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Rename(path+suffix, moved+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return moved, nil
}

// Recovered returns the corruption event handled while opening, or nil.
func (s *SQLiteStore) Recovered() *StoreCorruptionError {
	return s.recovered
}

func (s *SQLiteStore) SyncDeck(ctx context.Context, d *deck.Deck, now time.Time) (SyncResult, error) {
	var res SyncResult
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("sync deck: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO decks (id, name, source_file, synced_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, source_file = excluded.source_file, synced_at = excluded.synced_at`,
		d.ID, d.Name, d.SourceFile, now.UTC().Format(timeLayout),
	); err != nil {
		return res, fmt.Errorf("upsert deck: %w", err)
	}

	prev, err := activeQuestionIDs(ctx, tx, d.ID)
	if err != nil {
		return res, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE questions SET active = 0 WHERE deck_id = ?`, d.ID); err != nil {
		return res, fmt.Errorf("sync deck: %w", err)
	}

	for i, q := range d.Questions {
		delete(prev, q.ID)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questions (deck_id, question_id, text, kind, category, position, active)
			 VALUES (?, ?, ?, ?, ?, ?, 1)
			 ON CONFLICT(deck_id, question_id) DO UPDATE SET
			   text = excluded.text, kind = excluded.kind, category = excluded.category,
			   position = excluded.position, active = 1`,
			d.ID, q.ID, q.Text, q.Kind.String(), q.Category, i,
		); err != nil {
			return res, fmt.Errorf("upsert question %s: %w", q.ID, err)
		}

		st := s.factory.NewState(d.ID, q.ID, now)
		r, err := tx.ExecContext(ctx,
			`INSERT INTO review_states (deck_id, question_id, interval_days, easiness_factor, due_date, repetition_count, last_reviewed)
			 VALUES (?, ?, ?, ?, ?, ?, NULL)
			 ON CONFLICT(deck_id, question_id) DO NOTHING`,
			d.ID, q.ID, st.IntervalDays, st.EasinessFactor, st.DueDate.Format(dateLayout), st.RepetitionCount,
		)
		if err != nil {
			return res, fmt.Errorf("create review state %s: %w", q.ID, err)
		}
		if n, _ := r.RowsAffected(); n > 0 {
			res.Added++
		} else {
			res.Kept++
		}
	}
	res.Removed = len(prev)

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("sync deck: %w", err)
	}
	return res, nil
}

func activeQuestionIDs(ctx context.Context, tx *sql.Tx, deckID string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT question_id FROM questions WHERE deck_id = ? AND active = 1`, deckID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

const sqliteStateColumns = `s.deck_id, s.question_id, s.interval_days, s.easiness_factor, s.due_date, s.repetition_count, s.last_reviewed`

func (s *SQLiteStore) State(ctx context.Context, deckID, questionID string) (srs.ReviewState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteStateColumns+` FROM review_states s WHERE s.deck_id = ? AND s.question_id = ?`,
		deckID, questionID,
	)
	raw, err := scanRawState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return srs.ReviewState{}, fmt.Errorf("%w: question %s/%s", ErrNotFound, deckID, questionID)
	}
	if err != nil {
		return srs.ReviewState{}, fmt.Errorf("get review state: %w", err)
	}
	return s.decodeOrReset(ctx, raw)
}

func (s *SQLiteStore) States(ctx context.Context, deckID string) ([]srs.ReviewState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteStateColumns+`
		 FROM review_states s
		 JOIN questions q ON q.deck_id = s.deck_id AND q.question_id = s.question_id
		 WHERE q.active = 1 AND (? = '' OR q.deck_id = ?)
		 ORDER BY q.deck_id, q.position`,
		deckID, deckID,
	)
	if err != nil {
		return nil, fmt.Errorf("query review states: %w", err)
	}
	var raws []rawState
	for rows.Next() {
		raw, err := scanRawState(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan review state: %w", err)
		}
		raws = append(raws, raw)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate review states: %w", err)
	}
	rows.Close()

	out := make([]srs.ReviewState, 0, len(raws))
	for _, raw := range raws {
		st, err := s.decodeOrReset(ctx, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// rawState holds a review_states row before validation. Columns are read as
// text so a damaged value surfaces as a decode error on that row only.
type rawState struct {
	deckID, questionID string
	interval, ef, due  string
	reps               string
	lastReviewed       sql.NullString
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRawState(row rowScanner) (rawState, error) {
	var r rawState
	err := row.Scan(&r.deckID, &r.questionID, &r.interval, &r.ef, &r.due, &r.reps, &r.lastReviewed)
	return r, err
}

func (r rawState) decode() (srs.ReviewState, error) {
	st := srs.ReviewState{DeckID: r.deckID, QuestionID: r.questionID}
	var err error
	if st.IntervalDays, err = strconv.Atoi(r.interval); err != nil || st.IntervalDays < 0 {
		return st, fmt.Errorf("interval_days %q", r.interval)
	}
	if st.EasinessFactor, err = strconv.ParseFloat(r.ef, 64); err != nil || math.IsNaN(st.EasinessFactor) || st.EasinessFactor <= 0 {
		return st, fmt.Errorf("easiness_factor %q", r.ef)
	}
	if st.RepetitionCount, err = strconv.Atoi(r.reps); err != nil || st.RepetitionCount < 0 {
		return st, fmt.Errorf("repetition_count %q", r.reps)
	}
	if st.DueDate, err = time.Parse(dateLayout, r.due); err != nil {
		return st, fmt.Errorf("due_date %q", r.due)
	}
	if r.lastReviewed.Valid {
		t, err := time.Parse(timeLayout, r.lastReviewed.String)
		if err != nil {
			return st, fmt.Errorf("last_reviewed %q", r.lastReviewed.String)
		}
		st.LastReviewed = &t
	}
	return st, nil
}

// decodeOrReset returns the decoded state, replacing an undecodable row with
// a fresh state. The loss is logged; other rows are unaffected.
func (s *SQLiteStore) decodeOrReset(ctx context.Context, raw rawState) (srs.ReviewState, error) {
	st, derr := raw.decode()
	if derr == nil {
		return st, nil
	}

	loss := &StoreCorruptionError{Path: s.path, DeckID: raw.deckID, QuestionID: raw.questionID, Err: derr}
	slog.Error("review state unreadable, resetting; its schedule is lost",
		"deck_id", raw.deckID,
		"question_id", raw.questionID,
		"error", loss,
	)
	fresh := s.factory.NewState(raw.deckID, raw.questionID, time.Now())
	if err := s.writeState(ctx, s.db, fresh); err != nil {
		return srs.ReviewState{}, fmt.Errorf("reset review state: %w", err)
	}
	return fresh, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) writeState(ctx context.Context, db execer, st srs.ReviewState) error {
	var last any
	if st.LastReviewed != nil {
		last = st.LastReviewed.UTC().Format(timeLayout)
	}
	r, err := db.ExecContext(ctx,
		`UPDATE review_states
		 SET interval_days = ?, easiness_factor = ?, due_date = ?, repetition_count = ?, last_reviewed = ?
		 WHERE deck_id = ? AND question_id = ?`,
		st.IntervalDays, st.EasinessFactor, st.DueDate.Format(dateLayout), st.RepetitionCount, last,
		st.DeckID, st.QuestionID,
	)
	if err != nil {
		return err
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: question %s/%s", ErrNotFound, st.DeckID, st.QuestionID)
	}
	return nil
}

func (s *SQLiteStore) SaveReview(ctx context.Context, st srs.ReviewState, a Attempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	defer tx.Rollback()

	if err := s.writeState(ctx, tx, st); err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	a.DeckID, a.QuestionID = st.DeckID, st.QuestionID
	if err := insertAttempt(ctx, tx, a); err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save review: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendAttempt(ctx context.Context, a Attempt) error {
	if err := insertAttempt(ctx, s.db, a); err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

func insertAttempt(ctx context.Context, db execer, a Attempt) error {
	mode := a.Mode
	if mode == "" {
		mode = ModeReview
	}
	r, err := db.ExecContext(ctx,
		`INSERT INTO attempts (deck_id, question_id, answered_at, given_answer, correct, response_ms, mode)
		 SELECT ?, ?, ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM questions WHERE deck_id = ? AND question_id = ?)`,
		a.DeckID, a.QuestionID, a.AnsweredAt.UTC().Format(timeLayout), a.GivenAnswer, a.Correct,
		a.ResponseTime.Milliseconds(), mode,
		a.DeckID, a.QuestionID,
	)
	if err != nil {
		return err
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: question %s/%s", ErrNotFound, a.DeckID, a.QuestionID)
	}
	return nil
}

const sqliteScope = `(? = '' OR q.deck_id = ?) AND (? = '' OR q.category = ?)`

func scopeArgs(scope Scope) []any {
	return []any{scope.DeckID, scope.DeckID, scope.Category, scope.Category}
}

func (s *SQLiteStore) Summary(ctx context.Context, scope Scope) (Summary, error) {
	var sum Summary
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN s.repetition_count > 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(s.easiness_factor), 0)
		 FROM review_states s
		 JOIN questions q ON q.deck_id = s.deck_id AND q.question_id = s.question_id
		 WHERE q.active = 1 AND `+sqliteScope,
		scopeArgs(scope)...,
	).Scan(&sum.Questions, &sum.Learned, &sum.AvgEasiness); err != nil {
		return sum, fmt.Errorf("summarize states: %w", err)
	}

	var avgMS float64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(a.correct), 0), COALESCE(AVG(a.response_ms), 0)
		 FROM attempts a
		 JOIN questions q ON q.deck_id = a.deck_id AND q.question_id = a.question_id
		 WHERE `+sqliteScope,
		scopeArgs(scope)...,
	).Scan(&sum.Attempts, &sum.CorrectAttempts, &avgMS); err != nil {
		return sum, fmt.Errorf("summarize attempts: %w", err)
	}
	sum.Accuracy = accuracy(sum.CorrectAttempts, sum.Attempts)
	sum.AvgResponseTime = time.Duration(avgMS * float64(time.Millisecond))
	return sum, nil
}

func (s *SQLiteStore) ProblemQuestions(ctx context.Context, scope Scope, minAttempts, limit int) ([]ProblemQuestion, error) {
	if limit <= 0 {
		limit = -1
	}
	args := append(scopeArgs(scope), minAttempts, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.deck_id, q.question_id, q.text, q.category, COUNT(*), SUM(a.correct)
		 FROM attempts a
		 JOIN questions q ON q.deck_id = a.deck_id AND q.question_id = a.question_id
		 WHERE q.active = 1 AND `+sqliteScope+`
		 GROUP BY q.deck_id, q.question_id, q.text, q.category
		 HAVING COUNT(*) >= ?
		 ORDER BY CAST(SUM(a.correct) AS REAL) / COUNT(*) ASC, COUNT(*) DESC, q.deck_id, q.question_id
		 LIMIT ?`,
		args...,
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

func (s *SQLiteStore) Attempts(ctx context.Context, scope Scope) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.deck_id, a.question_id, a.answered_at, a.given_answer, a.correct, a.response_ms, a.mode
		 FROM attempts a
		 JOIN questions q ON q.deck_id = a.deck_id AND q.question_id = a.question_id
		 WHERE `+sqliteScope+`
		 ORDER BY a.id`,
		scopeArgs(scope)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a          Attempt
			answeredAt string
			ms         int64
		)
		if err := rows.Scan(&a.DeckID, &a.QuestionID, &answeredAt, &a.GivenAnswer, &a.Correct, &ms, &a.Mode); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		t, err := time.Parse(timeLayout, answeredAt)
		if err != nil {
			slog.Warn("attempt has unreadable timestamp", "deck_id", a.DeckID, "question_id", a.QuestionID, "value", answeredAt)
		}
		a.AnsweredAt = t
		a.ResponseTime = time.Duration(ms) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"attempts", "review_states", "questions", "decks"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	slog.Info("review store reset", "path", s.path)
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
