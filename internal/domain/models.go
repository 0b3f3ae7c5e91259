package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentCash         = "cash"
	PaymentCard         = "card"
	PaymentBankTransfer = "bank_transfer"
)

var PaymentMethods = []string{PaymentCash, PaymentCard, PaymentBankTransfer}

// ParsePaymentMethod accepts the canonical values plus the hyphenated
// "bank-transfer" spelling.
func ParsePaymentMethod(raw string) (string, bool) {
	method := strings.ToLower(strings.TrimSpace(raw))
	method = strings.ReplaceAll(method, "-", "_")
	if slices.Contains(PaymentMethods, method) {
		return method, true
	}
	return "", false
}

var ProductCategories = []string{
	"fashion", "electronics", "food", "beauty", "health",
	"home", "books", "sports", "automobile", "others",
}

var StoreTypes = []string{
	"grocery", "medical", "market", "mart", "mall", "provision", "pharmacy",
	"restaurant", "clothing", "electronics", "auto", "gift", "other",
}

func ValidCategory(category string) bool {
	return slices.Contains(ProductCategories, strings.ToLower(category))
}

func ValidStoreType(storeType string) bool {
	return slices.Contains(StoreTypes, strings.ToLower(storeType))
}

type User struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	PreferredCurrency string    `json:"preferred_currency"`
	PasswordHash      string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
}

func (u User) Currency() string {
	if u.PreferredCurrency == "" {
		return DefaultCurrency
	}
	return u.PreferredCurrency
}

type Store struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	Email           string    `json:"email,omitempty"`
	DefaultCurrency string    `json:"default_currency"`
	PasskeyHash     string    `json:"-"`
	Signature       string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (s Store) OwnedBy(userID string) bool {
	return userID != "" && s.OwnerID == userID
}

func (s Store) HasPasskey() bool {
	return s.PasskeyHash != ""
}

type ProductGroup struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductBrand struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID          string              `json:"id"`
	StoreID     string              `json:"store_id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Price       Money               `json:"price"`
	Quantity    int                 `json:"quantity"`
	Category    string              `json:"category,omitempty"`
	GroupID     string              `json:"group_id,omitempty"`
	BrandID     string              `json:"brand_id,omitempty"`
	Color       string              `json:"color,omitempty"`
	Size        string              `json:"size,omitempty"`
	Weight      decimal.NullDecimal `json:"weight"`
	AddedAt     time.Time           `json:"added_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type Sale struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ProductID     string    `json:"product_id"`
	Quantity      int       `json:"quantity"`
	PaymentMethod string    `json:"payment_method"`
	UnitPrice     Money     `json:"unit_price"`
	MadeAt        time.Time `json:"made_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SoldItem pairs a sale with the product it references.
type SoldItem struct {
	Sale    Sale
	Product Product
}

type Aggregate struct {
	Count int `json:"count"`
	// Quantity is the total number of units sold.
	Quantity int   `json:"quantity"`
	Revenue  Money `json:"revenue"`
}

type ProductRanking struct {
	Product Product `json:"product"`
	Sales   int     `json:"sales"`
}

type StoreRanking struct {
	Store Store `json:"store"`
	Sales int   `json:"sales"`
}

// Interval is a closed time window.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && !t.After(i.End)
}
