package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nao1215/ecommerce/pkg/sqlitedb"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound は商品が存在しないことを表す。
	ErrNotFound = errors.New("product not found")
	// ErrDuplicate は同じ名前の商品が既に存在することを表す。
	ErrDuplicate = errors.New("product already exists")
)

// Product はカタログの1商品。
type Product struct {
	// ID は商品の一意識別子。
	ID int
	// Name は商品名。
	Name string
	// Quantity は在庫数。
	Quantity int
	// Price は単価。
	Price decimal.Decimal
}

// Store は商品テーブルへのアクセスを提供する。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewStore は新しい Store を生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// List は全商品をID順に返す。
func (s *Store) List(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, quantity, price FROM products ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Quantity, &p.Price); err != nil {
			return nil, fmt.Errorf("商品の読み取りに失敗: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗: %w", err)
	}
	return products, nil
}

// Get はIDで商品を取得する。
func (s *Store) Get(ctx context.Context, id int) (Product, error) {
	var p Product
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, quantity, price FROM products WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.Quantity, &p.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("商品の取得に失敗: %w", err)
	}
	return p, nil
}

// Create は商品を登録し、採番されたIDを返す。
// p.ID が0より大きい場合はそのIDで登録する。
func (s *Store) Create(ctx context.Context, p Product) (int, error) {
	var id any
	if p.ID > 0 {
		id = p.ID
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO products (id, name, quantity, price) VALUES (?, ?, ?, ?)",
		id, p.Name, p.Quantity, p.Price.String(),
	)
	if sqlitedb.IsUniqueViolation(err) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("商品の登録に失敗: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("採番IDの取得に失敗: %w", err)
	}
	return int(newID), nil
}

// Update は商品の名前、在庫数、単価を更新する。
func (s *Store) Update(ctx context.Context, p Product) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = ?, quantity = ?, price = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`,
		p.Name, p.Quantity, p.Price.String(), p.ID,
	)
	if sqlitedb.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("商品の更新に失敗: %w", err)
	}
	return requireAffected(res)
}

// Delete はIDで商品を削除する。
func (s *Store) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("商品の削除に失敗: %w", err)
	}
	return requireAffected(res)
}

// requireAffected は1行も変更されなかった場合に ErrNotFound を返す。
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("変更行数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
