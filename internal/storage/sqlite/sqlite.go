// sqlite - хранилище identity и refresh-токенов поверх modernc.org/sqlite
// для однонодовых развёртываний и локальной разработки.
//
// Время хранится как unix-наносекунды (INTEGER), UUID - как текст.
// Пул ограничен одним соединением: SQLite сериализует запись, а единственное
// соединение исключает SQLITE_BUSY при конкурентном отзыве.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pribylovaa/conference-auth/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Storage struct {
	db *sql.DB
}

// New открывает файл БД по пути path, применяет миграции и возвращает хранилище.
func New(ctx context.Context, path string) (*Storage, error) {
	const op = "storage.sqlite.New"

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

// NewFromDB оборачивает уже открытое соединение без миграций.
func NewFromDB(db *sql.DB) *Storage {
	return &Storage{db: db}
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return err
	}

	_, err = provider.Up(ctx)
	return err
}

// Close закрывает соединение.
func (s *Storage) Close() {
	_ = s.db.Close()
}

// isUniqueViolation распознаёт нарушение UNIQUE/PRIMARY KEY.
func isUniqueViolation(err error) bool {
	var sqliteErr *moderncsqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	default:
		return false
	}
}

var _ storage.Storage = (*Storage)(nil)
