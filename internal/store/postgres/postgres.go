package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"graphi/backend/internal/domain"
	"graphi/backend/internal/store"
)

//go:embed schema.sql
var Schema string

var _ store.Repository = (*Store)(nil)

// maxTxAttempts bounds retries of serialization failures.
const maxTxAttempts = 3

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// ApplySchema creates missing tables and indexes.
func (s *Store) ApplySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, preferred_currency, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, strings.ToLower(strings.TrimSpace(user.Email)), user.Name, user.PreferredCurrency, user.PasswordHash, nowIfZero(user.CreatedAt))
	if isUniqueViolation(err) {
		return store.ErrConflict.WithDetail("email %s is taken", user.Email)
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) getUser(ctx context.Context, column string, value string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, preferred_currency, password_hash, created_at
		FROM users
		WHERE `+column+` = $1
	`, value).Scan(&user.ID, &user.Email, &user.Name, &user.PreferredCurrency, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithDetail("user %s not found", value)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

const storeColumns = `id, owner_id, name, type, email, default_currency, passkey_hash, signature, created_at, updated_at`

func scanStore(row interface{ Scan(...any) error }) (*domain.Store, error) {
	var shop domain.Store
	err := row.Scan(&shop.ID, &shop.OwnerID, &shop.Name, &shop.Type, &shop.Email, &shop.DefaultCurrency,
		&shop.PasskeyHash, &shop.Signature, &shop.CreatedAt, &shop.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

func (s *Store) CreateStore(ctx context.Context, shop domain.Store) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (`+storeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, shop.ID, shop.OwnerID, shop.Name, shop.Type, shop.Email, shop.DefaultCurrency, shop.PasskeyHash,
		shop.Signature, nowIfZero(shop.CreatedAt), nowIfZero(shop.UpdatedAt))
	if isUniqueViolation(err) {
		return store.ErrConflict.WithDetail("store named %q already exists", shop.Name)
	}
	return err
}

func (s *Store) UpdateStore(ctx context.Context, shop domain.Store) error {
	return saveStore(ctx, s.db, shop)
}

func saveStore(ctx context.Context, q querier, shop domain.Store) error {
	res, err := q.ExecContext(ctx, `
		UPDATE stores
		SET name = $2, type = $3, email = $4, default_currency = $5, passkey_hash = $6, signature = $7, updated_at = $8
		WHERE id = $1
	`, shop.ID, shop.Name, shop.Type, shop.Email, shop.DefaultCurrency, shop.PasskeyHash, shop.Signature, nowIfZero(shop.UpdatedAt))
	if isUniqueViolation(err) {
		return store.ErrConflict.WithDetail("store named %q already exists", shop.Name)
	}
	return expectRow(res, err, "store", shop.ID)
}

func (s *Store) GetStore(ctx context.Context, id string) (*domain.Store, error) {
	return getStore(ctx, s.db, id, "")
}

func getStore(ctx context.Context, q querier, id string, lock string) (*domain.Store, error) {
	shop, err := scanStore(q.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM stores WHERE id = $1 `+lock, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithDetail("store %s not found", id)
	}
	return shop, err
}

func (s *Store) ListStoresByOwner(ctx context.Context, ownerID string) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+storeColumns+` FROM stores WHERE owner_id = $1 ORDER BY name`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Store, 0, 8)
	for rows.Next() {
		shop, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *shop)
	}
	return result, rows.Err()
}

const productColumns = `p.id, p.store_id, p.name, p.description, p.price_amount, p.price_currency, p.quantity,
	p.category, p.group_id, p.brand_id, p.color, p.size, p.weight, p.added_at, p.updated_at`

func productScanTargets(p *domain.Product, groupID, brandID *sql.NullString) []any {
	return []any{&p.ID, &p.StoreID, &p.Name, &p.Description, &p.Price.Amount, &p.Price.Currency, &p.Quantity,
		&p.Category, groupID, brandID, &p.Color, &p.Size, &p.Weight, &p.AddedAt, &p.UpdatedAt}
}

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	var groupID, brandID sql.NullString
	if err := row.Scan(productScanTargets(&p, &groupID, &brandID)...); err != nil {
		return nil, err
	}
	p.GroupID, p.BrandID = groupID.String, brandID.String
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, store_id, name, description, price_amount, price_currency, quantity,
			category, group_id, brand_id, color, size, weight, added_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, p.ID, p.StoreID, p.Name, p.Description, p.Price.Amount, p.Price.Currency, p.Quantity, p.Category,
		nullString(p.GroupID), nullString(p.BrandID), p.Color, p.Size, p.Weight, nowIfZero(p.AddedAt), nowIfZero(p.UpdatedAt))
	if isUniqueViolation(err) {
		return store.ErrConflict.WithDetail("product %s already exists", p.ID)
	}
	return err
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) error {
	return saveProduct(ctx, s.db, p)
}

func saveProduct(ctx context.Context, q querier, p domain.Product) error {
	res, err := q.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, price_amount = $4, price_currency = $5, quantity = $6, category = $7,
			group_id = $8, brand_id = $9, color = $10, size = $11, weight = $12, updated_at = $13
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Price.Amount, p.Price.Currency, p.Quantity, p.Category,
		nullString(p.GroupID), nullString(p.BrandID), p.Color, p.Size, p.Weight, nowIfZero(p.UpdatedAt))
	return expectRow(res, err, "product", p.ID)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, id, "")
}

func getProduct(ctx context.Context, q querier, id string, lock string) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1 `+lock, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithDetail("product %s not found", id)
	}
	return p, err
}

func (s *Store) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	return listProducts(ctx, s.db, storeID, "")
}

func listProducts(ctx context.Context, q querier, storeID string, lock string) ([]domain.Product, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		WHERE p.store_id = $1
		ORDER BY p.name, p.id
		`+lock, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (s *Store) CreateGroup(ctx context.Context, group domain.ProductGroup) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_groups (id, store_id, name, created_at) VALUES ($1,$2,$3,$4)
	`, group.ID, group.StoreID, group.Name, nowIfZero(group.CreatedAt))
	if isUniqueViolation(err) {
		return store.ErrConflict.WithDetail("group %q already exists", group.Name)
	}
	return err
}

func (s *Store) CreateBrand(ctx context.Context, brand domain.ProductBrand) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_brands (id, store_id, name, created_at) VALUES ($1,$2,$3,$4)
	`, brand.ID, brand.StoreID, brand.Name, nowIfZero(brand.CreatedAt))
	if isUniqueViolation(err) {
		return store.ErrConflict.WithDetail("brand %q already exists", brand.Name)
	}
	return err
}

func (s *Store) ListGroups(ctx context.Context, storeID string) ([]domain.ProductGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, created_at FROM product_groups WHERE store_id = $1 ORDER BY name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ProductGroup, 0, 8)
	for rows.Next() {
		var g domain.ProductGroup
		if err := rows.Scan(&g.ID, &g.StoreID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

func (s *Store) ListBrands(ctx context.Context, storeID string) ([]domain.ProductBrand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, created_at FROM product_brands WHERE store_id = $1 ORDER BY name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ProductBrand, 0, 8)
	for rows.Next() {
		var b domain.ProductBrand
		if err := rows.Scan(&b.ID, &b.StoreID, &b.Name, &b.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

const saleColumns = `s.id, s.store_id, s.product_id, s.quantity, s.payment_method, s.unit_price_amount,
	s.unit_price_currency, s.made_at, s.updated_at`

func saleScanTargets(sale *domain.Sale, unitPrice *decimal.NullDecimal) []any {
	return []any{&sale.ID, &sale.StoreID, &sale.ProductID, &sale.Quantity, &sale.PaymentMethod, unitPrice,
		&sale.UnitPrice.Currency, &sale.MadeAt, &sale.UpdatedAt}
}

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	var sale domain.Sale
	var unitPrice decimal.NullDecimal
	if err := row.Scan(saleScanTargets(&sale, &unitPrice)...); err != nil {
		return nil, err
	}
	if unitPrice.Valid {
		sale.UnitPrice.Amount = unitPrice.Decimal
	} else {
		sale.UnitPrice = domain.Money{}
	}
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return getSale(ctx, s.db, id, "")
}

func getSale(ctx context.Context, q querier, id string, lock string) (*domain.Sale, error) {
	sale, err := scanSale(q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales s WHERE s.id = $1 `+lock, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithDetail("sale %s not found", id)
	}
	return sale, err
}

// ListSoldItems pushes the store, sale and product attribute criteria into
// SQL. Calendar dates and times of day depend on the filter's location, so
// the final match runs in Go.
func (s *Store) ListSoldItems(ctx context.Context, filter domain.SaleFilter) ([]domain.SoldItem, error) {
	if len(filter.StoreIDs) == 0 {
		return []domain.SoldItem{}, nil
	}

	where := []string{"s.store_id = ANY($1)"}
	args := []any{filter.StoreIDs}
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if len(filter.ProductIDs) > 0 {
		add("s.product_id = ANY($%d)", filter.ProductIDs)
	}
	if len(filter.Categories) > 0 {
		categories := make([]string, len(filter.Categories))
		for i, c := range filter.Categories {
			categories[i] = strings.ToLower(strings.TrimSpace(c))
		}
		add("lower(p.category) = ANY($%d)", categories)
	}
	if len(filter.BrandIDs) > 0 {
		add("p.brand_id = ANY($%d)", filter.BrandIDs)
	}
	if len(filter.GroupIDs) > 0 {
		add("p.group_id = ANY($%d)", filter.GroupIDs)
	}
	if filter.Color != "" {
		add("lower(p.color) = lower($%d)", filter.Color)
	}
	if filter.Size != "" {
		add("p.size = $%d", filter.Size)
	}
	if filter.Weight != nil {
		add("p.weight = $%d", *filter.Weight)
	}
	if filter.MinPrice != nil {
		add("p.price_amount >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		add("p.price_amount <= $%d", *filter.MaxPrice)
	}
	if len(filter.PaymentMethods) > 0 {
		add("s.payment_method = ANY($%d)", filter.PaymentMethods)
	}
	if filter.MinQuantity != nil {
		add("s.quantity >= $%d", *filter.MinQuantity)
	}
	if filter.MaxQuantity != nil {
		add("s.quantity <= $%d", *filter.MaxQuantity)
	}
	if filter.Window != nil {
		add("s.made_at >= $%d", filter.Window.Start)
		add("s.made_at <= $%d", filter.Window.End)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`, `+productColumns+`
		FROM sales s
		JOIN products p ON p.id = s.product_id
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY s.made_at, s.id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SoldItem, 0, 64)
	for rows.Next() {
		var item domain.SoldItem
		var unitPrice decimal.NullDecimal
		var groupID, brandID sql.NullString
		targets := append(saleScanTargets(&item.Sale, &unitPrice), productScanTargets(&item.Product, &groupID, &brandID)...)
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		if unitPrice.Valid {
			item.Sale.UnitPrice.Amount = unitPrice.Decimal
		} else {
			item.Sale.UnitPrice = domain.Money{}
		}
		item.Product.GroupID, item.Product.BrandID = groupID.String, brandID.String
		if filter.Match(item.Sale, item.Product) {
			result = append(result, item)
		}
	}
	return result, rows.Err()
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.inTx(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (s *Store) inTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func expectRow(res sql.Result, err error, kind string, id string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound.WithDetail("%s %s not found", kind, id)
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}
