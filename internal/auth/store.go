package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nao1215/ecommerce/pkg/sqlitedb"
)

var (
	// ErrNotFound は利用者が存在しないことを表す。
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate は同じメールアドレスの利用者が既に存在することを表す。
	ErrDuplicate = errors.New("user already exists")
)

// User は登録済みの利用者。
type User struct {
	// ID は利用者の一意識別子。
	ID int
	// Name は氏名。
	Name string
	// PhoneNumber は電話番号。
	PhoneNumber string
	// Address は住所。
	Address string
	// Email はメールアドレス。
	Email string
	// PasswordHash はbcryptでハッシュ化したパスワード。
	PasswordHash string
	// Role はロール。
	Role string
}

// Store は利用者テーブルへのアクセスを提供する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewStore は新しい Store を生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create は利用者を登録し、採番されたIDを返す。
// メールアドレスが登録済みの場合は ErrDuplicate を返す。
func (s *Store) Create(ctx context.Context, u User) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (name, phone_number, address, email, password_hash, role)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.Name, u.PhoneNumber, u.Address, u.Email, u.PasswordHash, u.Role,
	)
	if sqlitedb.IsUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("利用者の登録に失敗: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("採番IDの取得に失敗: %w", err)
	}
	return int(id), nil
}

// GetByID はIDで利用者を取得する。
func (s *Store) GetByID(ctx context.Context, id int) (User, error) {
	return s.getOne(ctx, "WHERE id = ?", id)
}

// GetByEmail はメールアドレスで利用者を取得する。
func (s *Store) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.getOne(ctx, "WHERE email = ?", email)
}

// getOne は条件に一致する1件を取得する。
func (s *Store) getOne(ctx context.Context, where string, arg any) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone_number, address, email, password_hash, role
		FROM users `+where, arg,
	).Scan(&u.ID, &u.Name, &u.PhoneNumber, &u.Address, &u.Email, &u.PasswordHash, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("利用者の取得に失敗: %w", err)
	}
	return u, nil
}
