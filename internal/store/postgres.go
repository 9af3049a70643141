package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	query, args, err := psql.
		Select("id", "display_name", "email", "password_hash", "created_at", "updated_at").
		From("users").
		Where(sq.Eq{"LOWER(email)": strings.ToLower(strings.TrimSpace(email))}).
		ToSql()
	if err != nil {
		return User{}, fmt.Errorf("build user lookup: %w", err)
	}
	return s.scanUser(s.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	query, args, err := psql.
		Insert("users").
		Columns("id", "display_name", "email", "password_hash").
		Values(user.ID, user.DisplayName, strings.TrimSpace(user.Email), user.PasswordHash).
		ToSql()
	if err != nil {
		return fmt.Errorf("build user insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// SaveSession, LookupSession and DeleteSession back the session store when
// Redis is not configured.
func (s *PostgresStore) SaveSession(ctx context.Context, sessionHash string, record SessionRecord, expiresAt time.Time) error {
	query, args, err := psql.
		Insert("sessions").
		Columns("session_hash", "user_id", "display_name", "expires_at").
		Values(sessionHash, record.UserID, record.DisplayName, expiresAt).
		Suffix("ON CONFLICT (session_hash) DO UPDATE SET expires_at = EXCLUDED.expires_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build session insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupSession(ctx context.Context, sessionHash string) (SessionRecord, error) {
	query, args, err := psql.
		Select("user_id", "display_name", "created_at").
		From("sessions").
		Where(sq.Eq{"session_hash": sessionHash}).
		Where(sq.Expr("expires_at > NOW()")).
		ToSql()
	if err != nil {
		return SessionRecord{}, fmt.Errorf("build session lookup: %w", err)
	}
	var record SessionRecord
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&record.UserID, &record.DisplayName, &record.CreatedAt); err != nil {
		return SessionRecord{}, err
	}
	return record, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, sessionHash string) error {
	query, args, err := psql.
		Delete("sessions").
		Where(sq.Eq{"session_hash": sessionHash}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build session delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListMessages returns the whole collection in storage order.
func (s *PostgresStore) ListMessages(ctx context.Context) ([]Message, error) {
	query, args, err := psql.
		Select("id", "author", "body", "created_at").
		From("messages").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build message list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return scanMessages(rows)
}

// SearchMessages matches query against author and body, newest first.
func (s *PostgresStore) SearchMessages(ctx context.Context, query string, limit int) ([]Message, error) {
	pattern := "%" + likeEscaper.Replace(strings.TrimSpace(query)) + "%"
	stmt, args, err := psql.
		Select("id", "author", "body", "created_at").
		From("messages").
		Where(sq.Or{sq.ILike{"author": pattern}, sq.ILike{"body": pattern}}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build message search: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	return scanMessages(rows)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		if err := rows.Scan(&item.ID, &item.Author, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, item Message) error {
	query, args, err := psql.
		Insert("messages").
		Columns("id", "author", "body", "created_at").
		Values(item.ID, item.Author, item.Body, item.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build message insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
