// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/readaloud/internal/align"
	"github.com/verte-zerg/readaloud/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store wraps SQLite access for attempt data.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			learner_id TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			card_index INTEGER NOT NULL,
			expected_text TEXT NOT NULL,
			lang TEXT NOT NULL,
			confidence REAL NOT NULL,
			word_accuracy REAL NOT NULL,
			phoneme_accuracy REAL NOT NULL,
			fluency INTEGER NOT NULL,
			wpm INTEGER NOT NULL,
			pronunciation INTEGER NOT NULL,
			average INTEGER NOT NULL,
			label TEXT NOT NULL,
			remarks TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS attempt_words (
			attempt_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			expected TEXT NOT NULL,
			matched TEXT NOT NULL,
			similarity REAL NOT NULL,
			sounds_alike INTEGER NOT NULL,
			PRIMARY KEY (attempt_id, position)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_recorded_at ON attempts(recorded_at);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_learner ON attempts(learner_id, lang);`,
		`CREATE INDEX IF NOT EXISTS idx_attempt_words_expected ON attempt_words(expected);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveAttempt stores a completed attempt and its word alignment.
// A missing ID is filled with a new UUID.
func (s *Store) SaveAttempt(ctx context.Context, rec model.AttemptRecord) (err error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	r := rec.Report
	_, err = tx.ExecContext(ctx,
		`INSERT INTO attempts (id, learner_id, recorded_at, card_index, expected_text, lang, confidence,
			word_accuracy, phoneme_accuracy, fluency, wpm, pronunciation, average, label, remarks)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.LearnerID,
		rec.RecordedAt.UTC().Format(timeLayout),
		rec.CardIndex,
		rec.ExpectedText,
		string(rec.Language),
		rec.Confidence,
		r.WordAccuracy,
		r.PhonemeAccuracy,
		r.FluencyScore,
		r.WordsPerMinute,
		r.PronunciationScore,
		r.AverageScore,
		string(r.AverageLabel),
		r.Remarks,
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}

	if len(rec.Words) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT INTO attempt_words (attempt_id, position, expected, matched, similarity, sounds_alike)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if perr != nil {
			return fmt.Errorf("failed to prepare word insert: %w", perr)
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, w := range rec.Words {
			alike := 0
			if w.SoundsAlike {
				alike = 1
			}
			if _, err = stmt.ExecContext(ctx, rec.ID, i, w.ExpectedWord, w.MatchedWord, w.SimilarityPercent, alike); err != nil {
				return fmt.Errorf("failed to insert attempt word: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attempt: %w", err)
	}
	return nil
}

// filterSQL builds the WHERE clause and the optional most-recent limit shared
// by the listing queries.
func filterSQL(f model.AttemptFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}
	if f.LearnerID != "" {
		clauses = append(clauses, "learner_id = ?")
		args = append(args, f.LearnerID)
	}
	if f.Language != "" {
		clauses = append(clauses, "lang = ?")
		args = append(args, string(f.Language))
	}
	if f.Since != nil {
		clauses = append(clauses, "recorded_at >= ?")
		args = append(args, f.Since.UTC().Format(timeLayout))
	}
	query := fmt.Sprintf(`SELECT * FROM attempts WHERE %s ORDER BY recorded_at DESC`, strings.Join(clauses, " AND "))
	if f.Last > 0 {
		query += " LIMIT ?"
		args = append(args, f.Last)
	}
	return query, args
}

// ListAttempts returns matching attempts, oldest first. Filter.Last keeps
// only the most recent attempts.
func (s *Store) ListAttempts(ctx context.Context, f model.AttemptFilter) ([]model.AttemptRecord, error) {
	inner, args := filterSQL(f)
	query := fmt.Sprintf(`SELECT id, learner_id, recorded_at, card_index, expected_text, lang, confidence,
			word_accuracy, phoneme_accuracy, fluency, wpm, pronunciation, average, label, remarks
		FROM (%s)
		ORDER BY recorded_at ASC`, inner)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var out []model.AttemptRecord
	for rows.Next() {
		var (
			rec        model.AttemptRecord
			recordedAt string
			lang       string
			label      string
		)
		r := &rec.Report
		if err := rows.Scan(&rec.ID, &rec.LearnerID, &recordedAt, &rec.CardIndex, &rec.ExpectedText, &lang, &rec.Confidence,
			&r.WordAccuracy, &r.PhonemeAccuracy, &r.FluencyScore, &r.WordsPerMinute, &r.PronunciationScore,
			&r.AverageScore, &label, &r.Remarks); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		parsed, err := time.Parse(timeLayout, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse attempt time: %w", err)
		}
		rec.RecordedAt = parsed
		rec.Language = model.Language(lang)
		r.AverageLabel = model.Label(label)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return out, nil
}

// CardAggregates groups matching attempts per card, in card order.
func (s *Store) CardAggregates(ctx context.Context, f model.AttemptFilter) ([]model.CardAggregate, error) {
	inner, args := filterSQL(f)
	query := fmt.Sprintf(`SELECT card_index, expected_text, COUNT(*), AVG(average), AVG(fluency), MAX(average)
		FROM (%s)
		GROUP BY card_index, expected_text
		ORDER BY card_index ASC, expected_text ASC`, inner)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate cards: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var out []model.CardAggregate
	for rows.Next() {
		var agg model.CardAggregate
		if err := rows.Scan(&agg.CardIndex, &agg.ExpectedText, &agg.Attempts, &agg.AvgScore, &agg.AvgFluency, &agg.BestScore); err != nil {
			return nil, fmt.Errorf("failed to scan card aggregate: %w", err)
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to aggregate cards: %w", err)
	}
	return out, nil
}

// WeakCards aggregates the most recent window attempts of a learner and
// returns cards weakest first.
func (s *Store) WeakCards(ctx context.Context, learnerID string, lang model.Language, window int) ([]model.CardAggregate, error) {
	if window <= 0 {
		return nil, nil
	}
	aggs, err := s.CardAggregates(ctx, model.AttemptFilter{LearnerID: learnerID, Language: lang, Last: window})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(aggs, func(i, j int) bool {
		if aggs[i].AvgScore != aggs[j].AvgScore {
			return aggs[i].AvgScore < aggs[j].AvgScore
		}
		return aggs[i].CardIndex < aggs[j].CardIndex
	})
	return aggs, nil
}

// WordAggregates summarizes how each expected word was read across matching
// attempts. A word counts as missed when it did not reach a soft match.
func (s *Store) WordAggregates(ctx context.Context, f model.AttemptFilter) ([]model.WordAggregate, error) {
	inner, args := filterSQL(f)
	query := fmt.Sprintf(`SELECT w.expected, COUNT(*), SUM(CASE WHEN w.similarity < ? THEN 1 ELSE 0 END), SUM(w.similarity)
		FROM attempt_words w
		JOIN (%s) a ON a.id = w.attempt_id
		GROUP BY w.expected
		ORDER BY w.expected ASC`, inner)
	rows, err := s.db.QueryContext(ctx, query, append([]any{align.SoftThreshold}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate words: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var out []model.WordAggregate
	for rows.Next() {
		var agg model.WordAggregate
		if err := rows.Scan(&agg.Word, &agg.Attempts, &agg.Misses, &agg.SimilaritySum); err != nil {
			return nil, fmt.Errorf("failed to scan word aggregate: %w", err)
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to aggregate words: %w", err)
	}
	return out, nil
}

// LearnerCounts returns the number of stored attempts per learner.
func (s *Store) LearnerCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT learner_id, COUNT(*) FROM attempts GROUP BY learner_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	out := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan attempt count: %w", err)
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	return out, nil
}
