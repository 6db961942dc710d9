// Package users: реестр пользователей бота поверх database/sql.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"tgstream/internal/model"
)

var (
	ErrUserNotFound      = model.ErrUserNotFound
	ErrUnsupportedDriver = model.ErrUnsupportedDriver
)

type User struct {
	ID           int64
	AccessHash   int64
	Name         string
	ShortenerAPI string // ключ API сокращателя ссылок, пусто = не настроен
	BaseSite     string // домен сокращателя
	CreatedAt    time.Time
}

// Shortener сообщает, настроен ли у пользователя сокращатель ссылок.
func (u User) Shortener() bool {
	return u.ShortenerAPI != "" && u.BaseSite != ""
}

// Open подключается к базе указанного драйвера (sqlite3 или mysql).
func Open(driver, dsn string) (*sql.DB, error) {
	driver, err := normalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s dsn must be provided", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		// одна база в памяти видна только своему соединению
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func normalizeDriver(driver string) (string, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	case "mysql":
		return "mysql", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
}

type Store struct {
	db     *sql.DB
	driver string
}

func New(db *sql.DB, driver string) (*Store, error) {
	driver, err := normalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, driver: driver}, nil
}

// Migrate создаёт таблицу пользователей, если её ещё нет.
func (s *Store) Migrate(ctx context.Context) error {
	var stmt string
	switch s.driver {
	case "sqlite3":
		stmt = `CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			access_hash INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL DEFAULT '',
			shortener_api TEXT NOT NULL DEFAULT '',
			base_site TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`
	case "mysql":
		stmt = `CREATE TABLE IF NOT EXISTS users (
			id BIGINT NOT NULL,
			access_hash BIGINT NOT NULL DEFAULT 0,
			name VARCHAR(255) NOT NULL DEFAULT '',
			shortener_api VARCHAR(255) NOT NULL DEFAULT '',
			base_site VARCHAR(255) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			PRIMARY KEY (id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	return nil
}

// AddUser регистрирует пользователя. Повторная регистрация ничего не меняет;
// created сообщает, был ли пользователь добавлен этим вызовом.
func (s *Store) AddUser(ctx context.Context, id, accessHash int64, name string) (created bool, err error) {
	insert := "INSERT OR IGNORE"
	if s.driver == "mysql" {
		insert = "INSERT IGNORE"
	}
	res, err := s.db.ExecContext(ctx,
		insert+` INTO users (id, access_hash, name, created_at) VALUES (?, ?, ?, ?)`,
		id, accessHash, name, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("add user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add user %d: %w", id, err)
	}
	return n > 0, nil
}

func (s *Store) IsUserExist(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("check user %d: %w", id, err)
	}
	return true, nil
}

func (s *Store) TotalUsersCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

const selectUser = `SELECT id, access_hash, name, shortener_api, base_site, created_at FROM users`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.AccessHash, &u.Name, &u.ShortenerAPI, &u.BaseSite, &u.CreatedAt)
	return u, err
}

// AllUsers возвращает всех пользователей в порядке регистрации.
func (s *Store) AllUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, selectUser+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return User{}, ErrUserNotFound
	case err != nil:
		return User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// DeleteUser удаляет пользователя. Отсутствие пользователя не ошибка.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	return nil
}

// UpdateShortener сохраняет настройки сокращателя. Пустые значения их сбрасывают.
func (s *Store) UpdateShortener(ctx context.Context, id int64, apiKey, baseSite string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET shortener_api = ?, base_site = ? WHERE id = ?`, apiKey, baseSite, id)
	if err != nil {
		return fmt.Errorf("update shortener of user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update shortener of user %d: %w", id, err)
	}
	if n == 0 {
		// mysql не считает строку изменённой, если значения совпали
		if ok, err := s.IsUserExist(ctx, id); err != nil || ok {
			return err
		}
		return ErrUserNotFound
	}
	return nil
}
