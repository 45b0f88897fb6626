// Package sqlite provides a SQLite-backed storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/mcoot/noughts/internal/model"
	"github.com/mcoot/noughts/internal/storage"
	"github.com/mcoot/noughts/internal/storage/sqlite/migrations"
)

// Store persists noughts state in SQLite
type Store struct {
	sqlDB *sql.DB
}

// Ensure Store implements the interface
var _ storage.Storage = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes writers so conditional updates never see SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// User operations

func (s *Store) SaveUser(ctx context.Context, user *model.User) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, full_name, email, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET full_name = excluded.full_name, email = excluded.email`,
		string(user.ID), user.FullName, user.Email, toMillis(user.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, full_name, email, created_at FROM users WHERE id = ?`, string(id))
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, full_name, email, created_at FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Credential operations

func (s *Store) SaveCredentials(ctx context.Context, creds *model.Credentials) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO credentials (user_id, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   email = excluded.email,
		   password_hash = excluded.password_hash,
		   updated_at = excluded.updated_at`,
		string(creds.UserID), strings.ToLower(creds.Email), creds.PasswordHash,
		toMillis(creds.CreatedAt), toMillis(creds.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrEmailTaken
		}
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *Store) GetCredentialsByEmail(ctx context.Context, email string) (*model.Credentials, error) {
	var (
		creds              model.Credentials
		userID             string
		createdAt, updated int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT user_id, email, password_hash, created_at, updated_at FROM credentials WHERE email = ?`,
		strings.ToLower(email),
	).Scan(&userID, &creds.Email, &creds.PasswordHash, &createdAt, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrUserNotFound
		}
		return nil, fmt.Errorf("get credentials: %w", err)
	}
	creds.UserID = model.UserID(userID)
	creds.CreatedAt = fromMillis(createdAt)
	creds.UpdatedAt = fromMillis(updated)
	return &creds, nil
}

// Challenge operations

const challengeColumns = `id, challenger, challenged, status, game_id, created_at, updated_at`

func (s *Store) CreateChallenge(ctx context.Context, challenge *model.Challenge) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO challenges (id, challenger, challenged, pair_key, status, game_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(challenge.ID), string(challenge.Challenger), string(challenge.Challenged),
		challenge.PairKey(), string(challenge.Status), string(challenge.GameID),
		toMillis(challenge.CreatedAt), toMillis(challenge.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrDuplicateChallenge
		}
		return fmt.Errorf("create challenge: %w", err)
	}
	return nil
}

func (s *Store) GetChallenge(ctx context.Context, id model.ChallengeID) (*model.Challenge, error) {
	return getChallenge(ctx, s.sqlDB, id)
}

func (s *Store) TransitionChallenge(ctx context.Context, id model.ChallengeID, from, to model.ChallengeStatus, gameID model.GameID, at time.Time) (*model.Challenge, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE challenges
		 SET status = ?, game_id = CASE WHEN ? = '' THEN game_id ELSE ? END, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(to), string(gameID), string(gameID), toMillis(at), string(id), string(from),
	)
	if err != nil {
		return nil, fmt.Errorf("transition challenge: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("transition challenge: %w", err)
	}

	c, err := getChallenge(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, model.ErrChallengeAlreadyResolved
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return c, nil
}

func (s *Store) ListChallengesForUser(ctx context.Context, userID model.UserID) ([]*model.Challenge, error) {
	return queryChallenges(ctx, s.sqlDB,
		`SELECT `+challengeColumns+` FROM challenges WHERE challenger = ? OR challenged = ? ORDER BY created_at DESC`,
		string(userID), string(userID))
}

func (s *Store) ListPendingChallenges(ctx context.Context) ([]*model.Challenge, error) {
	return queryChallenges(ctx, s.sqlDB,
		`SELECT `+challengeColumns+` FROM challenges WHERE status = ? ORDER BY created_at`,
		string(model.ChallengePending))
}

// Game operations

func (s *Store) CreateGame(ctx context.Context, game *model.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO games (id, player_x, player_o, status, version, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(game.ID), string(game.PlayerX), string(game.PlayerO), string(game.Status),
		game.Version, string(data), toMillis(game.CreatedAt), toMillis(game.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("game %s already exists", game.ID)
		}
		return fmt.Errorf("create game: %w", err)
	}
	return nil
}

func (s *Store) GetGame(ctx context.Context, id model.GameID) (*model.Game, error) {
	var data string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT data FROM games WHERE id = ?`, string(id)).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrGameNotFound
		}
		return nil, fmt.Errorf("get game: %w", err)
	}
	return decodeGame(data)
}

func (s *Store) UpdateGame(ctx context.Context, game *model.Game, expectedVersion int64) error {
	next := game.Clone()
	next.Version = expectedVersion + 1
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE games SET status = ?, version = ?, data = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(next.Status), next.Version, string(data), toMillis(next.UpdatedAt),
		string(game.ID), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	if affected == 0 {
		var exists int
		err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM games WHERE id = ?`, string(game.ID)).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrGameNotFound
		}
		if err != nil {
			return fmt.Errorf("update game: %w", err)
		}
		return model.ErrVersionConflict
	}

	game.Version = next.Version
	return nil
}

func (s *Store) DeleteGame(ctx context.Context, id model.GameID) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}

func (s *Store) ListGamesForUser(ctx context.Context, userID model.UserID) ([]*model.Game, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT data FROM games WHERE player_x = ? OR player_o = ? ORDER BY created_at DESC`,
		string(userID), string(userID))
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	games := []*model.Game{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		game, err := decodeGame(data)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	return games, rows.Err()
}

// Session revocation

func (s *Store) RevokeSession(ctx context.Context, sessionID string, expiresAt time.Time) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO revoked_sessions (id, expires_at) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET expires_at = excluded.expires_at`,
		sessionID, toMillis(expiresAt))
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *Store) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	var found int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM revoked_sessions WHERE id = ?`, sessionID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revoked session: %w", err)
	}
	return true, nil
}

func (s *Store) PurgeRevokedSessions(ctx context.Context, before time.Time) (int, error) {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM revoked_sessions WHERE expires_at < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("purge revoked sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Ping checks the database handle
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// helpers

type scanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanUser(row scanner) (*model.User, error) {
	var (
		user      model.User
		id        string
		createdAt int64
	)
	if err := row.Scan(&id, &user.FullName, &user.Email, &createdAt); err != nil {
		return nil, err
	}
	user.ID = model.UserID(id)
	user.CreatedAt = fromMillis(createdAt)
	return &user, nil
}

func scanChallenge(row scanner) (*model.Challenge, error) {
	var (
		id, challenger, challenged, status, gameID string
		createdAt, updatedAt                       int64
	)
	if err := row.Scan(&id, &challenger, &challenged, &status, &gameID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return &model.Challenge{
		ID:         model.ChallengeID(id),
		Challenger: model.UserID(challenger),
		Challenged: model.UserID(challenged),
		Status:     model.ChallengeStatus(status),
		GameID:     model.GameID(gameID),
		CreatedAt:  fromMillis(createdAt),
		UpdatedAt:  fromMillis(updatedAt),
	}, nil
}

func getChallenge(ctx context.Context, q querier, id model.ChallengeID) (*model.Challenge, error) {
	row := q.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id = ?`, string(id))
	c, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return c, nil
}

func queryChallenges(ctx context.Context, q querier, query string, args ...any) ([]*model.Challenge, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	challenges := []*model.Challenge{}
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		challenges = append(challenges, c)
	}
	return challenges, rows.Err()
}

func decodeGame(data string) (*model.Game, error) {
	var game model.Game
	if err := json.Unmarshal([]byte(data), &game); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	return &game, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
