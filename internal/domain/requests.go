package domain

import "github.com/shopspring/decimal"

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

type RegisterRequest struct {
	Email             string `json:"email" validate:"required,email"`
	Name              string `json:"name" validate:"max=120"`
	Password          string `json:"password" validate:"required,min=8"`
	PreferredCurrency string `json:"preferred_currency" validate:"omitempty,currency"`
}

type StoreCreateRequest struct {
	Name            string `json:"name" validate:"required,max=50"`
	Type            string `json:"type" validate:"omitempty,storetype"`
	Email           string `json:"email" validate:"omitempty,email"`
	DefaultCurrency string `json:"default_currency" validate:"omitempty,currency"`
	Passkey         string `json:"passkey" validate:"omitempty,min=4"`
}

type StoreUpdateRequest struct {
	Name  *string `json:"name" validate:"omitempty,max=50"`
	Type  *string `json:"type" validate:"omitempty,storetype"`
	Email *string `json:"email" validate:"omitempty,email"`
}

type PasskeyRequest struct {
	Passkey string `json:"passkey"`
}

type CurrencyChangeRequest struct {
	Currency string `json:"currency" validate:"required,currency"`
}

type ProductCreateRequest struct {
	Name        string              `json:"name" validate:"required,max=100"`
	Description string              `json:"description" validate:"max=500"`
	Price       decimal.Decimal     `json:"price"`
	Currency    string              `json:"currency" validate:"omitempty,currency"`
	Quantity    int                 `json:"quantity" validate:"gte=0"`
	Category    string              `json:"category" validate:"omitempty,category"`
	GroupID     string              `json:"group_id"`
	BrandID     string              `json:"brand_id"`
	Color       string              `json:"color" validate:"max=50"`
	Size        string              `json:"size" validate:"max=50"`
	Weight      decimal.NullDecimal `json:"weight"`
}

type ProductUpdateRequest struct {
	Name        *string          `json:"name" validate:"omitempty,max=100"`
	Description *string          `json:"description" validate:"omitempty,max=500"`
	Price       *decimal.Decimal `json:"price"`
	Quantity    *int             `json:"quantity" validate:"omitempty,gte=0"`
	Category    *string          `json:"category" validate:"omitempty,category"`
	Color       *string          `json:"color" validate:"omitempty,max=50"`
	Size        *string          `json:"size" validate:"omitempty,max=50"`
}

type NamedRequest struct {
	Name string `json:"name" validate:"required,max=50"`
}

type SaleCreateRequest struct {
	ProductID     string `json:"product_id" validate:"required"`
	Quantity      int    `json:"quantity"`
	PaymentMethod string `json:"payment_method" validate:"required"`
}

type SaleUpdateRequest struct {
	Quantity      int    `json:"quantity"`
	PaymentMethod string `json:"payment_method" validate:"required"`
}
