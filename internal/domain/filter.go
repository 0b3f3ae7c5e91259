package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, err := time.Parse(layout, strings.TrimSpace(raw))
		if err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time %q, expected HH:MM[:SS]", raw)
}

func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

func (t TimeOfDay) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.seconds() < other.seconds()
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Date is a calendar day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return DateOf(t), nil
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmpInt(d.Year, other.Year)
	case d.Month != other.Month:
		return cmpInt(int(d.Month), int(other.Month))
	default:
		return cmpInt(d.Day, other.Day)
	}
}

// Start is midnight of d in loc.
func (d Date) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// SaleFilter selects sales. An empty StoreIDs slice matches no store; callers
// resolve the store scope before building a filter.
type SaleFilter struct {
	StoreIDs       []string
	ProductIDs     []string
	Categories     []string
	PaymentMethods []string
	BrandIDs       []string
	GroupIDs       []string

	// Color is compared case-insensitively. Size must match exactly.
	Color  string
	Size   string
	Weight *decimal.Decimal

	// MinPrice and MaxPrice bound the product's current price amount.
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal

	// Date wins over FromDate/ToDate when set.
	Date     *Date
	FromDate *Date
	ToDate   *Date
	FromTime *TimeOfDay
	ToTime   *TimeOfDay
	Window   *Interval

	MinQuantity *int
	MaxQuantity *int

	// Location is used to read calendar dates and times of day. Defaults to UTC.
	Location *time.Location
}

func (f SaleFilter) location() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

// Match reports whether a sale (with its product) satisfies every criterion.
func (f SaleFilter) Match(sale Sale, product Product) bool {
	if !slices.Contains(f.StoreIDs, sale.StoreID) {
		return false
	}
	if len(f.ProductIDs) > 0 && !slices.Contains(f.ProductIDs, sale.ProductID) {
		return false
	}
	if len(f.Categories) > 0 && !slices.ContainsFunc(f.Categories, func(c string) bool {
		return strings.EqualFold(strings.TrimSpace(c), product.Category)
	}) {
		return false
	}
	if len(f.BrandIDs) > 0 && !slices.Contains(f.BrandIDs, product.BrandID) {
		return false
	}
	if len(f.GroupIDs) > 0 && !slices.Contains(f.GroupIDs, product.GroupID) {
		return false
	}
	if f.Color != "" && !strings.EqualFold(f.Color, product.Color) {
		return false
	}
	if f.Size != "" && f.Size != product.Size {
		return false
	}
	if f.Weight != nil && (!product.Weight.Valid || !product.Weight.Decimal.Equal(*f.Weight)) {
		return false
	}
	if f.MinPrice != nil && product.Price.Amount.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && product.Price.Amount.GreaterThan(*f.MaxPrice) {
		return false
	}
	if len(f.PaymentMethods) > 0 && !slices.Contains(f.PaymentMethods, sale.PaymentMethod) {
		return false
	}
	if f.MinQuantity != nil && sale.Quantity < *f.MinQuantity {
		return false
	}
	if f.MaxQuantity != nil && sale.Quantity > *f.MaxQuantity {
		return false
	}
	if f.Window != nil && !f.Window.Contains(sale.MadeAt) {
		return false
	}

	local := sale.MadeAt.In(f.location())
	day := DateOf(local)
	if f.Date != nil {
		if day.Compare(*f.Date) != 0 {
			return false
		}
	} else {
		if f.FromDate != nil && day.Compare(*f.FromDate) < 0 {
			return false
		}
		if f.ToDate != nil && day.Compare(*f.ToDate) > 0 {
			return false
		}
	}

	clock := TimeOfDayOf(local)
	if f.FromTime != nil && clock.Before(*f.FromTime) {
		return false
	}
	if f.ToTime != nil && f.ToTime.Before(clock) {
		return false
	}
	return true
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
