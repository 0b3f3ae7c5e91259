package aggregate

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/domain"
)

// maxDecimalPlaces is the largest precision accepted for revenue rounding.
const maxDecimalPlaces = 28

// Config is a parsed filter configuration. The zero value selects every sale
// in every store the user owns and rounds revenue to two places.
type Config struct {
	StoreIDs       []string
	Categories     []string
	ProductIDs     []string
	PaymentMethods []string
	BrandIDs       []string
	GroupIDs       []string

	// Color matches case-insensitively. Size matches exactly.
	Color  string
	Size   string
	Weight *decimal.Decimal

	// MinPrice and MaxPrice bound the product's current list price.
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal

	Date     *domain.Date
	FromDate *domain.Date
	ToDate   *domain.Date
	FromTime *domain.TimeOfDay
	ToTime   *domain.TimeOfDay

	// Timeframe is a relative window such as "past 7 days", resolved against
	// the engine clock when the query runs.
	Timeframe string

	MinQuantity *int
	MaxQuantity *int

	// MaxDecimalPlaces is nil for the default of two places.
	MaxDecimalPlaces *int32
}

// Places is the rounding precision applied to revenue.
func (c Config) Places() int32 {
	if c.MaxDecimalPlaces == nil {
		return domain.DefaultDecimalPlaces
	}
	return *c.MaxDecimalPlaces
}

// DecimalPlaces returns a pointer suitable for Config.MaxDecimalPlaces.
func DecimalPlaces(n int32) *int32 {
	return &n
}

// ParseFilters reads the string-keyed filter map accepted by the stats
// endpoints. Unknown keys are ignored.
func ParseFilters(raw map[string]any) (Config, error) {
	var cfg Config
	var err error

	if cfg.StoreIDs, err = stringList(raw, "storeIds"); err != nil {
		return Config{}, err
	}
	if cfg.ProductIDs, err = stringList(raw, "productIds"); err != nil {
		return Config{}, err
	}
	if cfg.Categories, err = stringList(raw, "categories"); err != nil {
		return Config{}, err
	}
	cfg.Categories = lowerAll(cfg.Categories)

	if cfg.BrandIDs, err = stringList(raw, "brands"); err != nil {
		return Config{}, err
	}
	if cfg.GroupIDs, err = stringList(raw, "groups"); err != nil {
		return Config{}, err
	}
	color, _, err := stringField(raw, "color")
	if err != nil {
		return Config{}, err
	}
	cfg.Color = strings.ToLower(strings.TrimSpace(color))
	size, _, err := stringField(raw, "size")
	if err != nil {
		return Config{}, err
	}
	cfg.Size = strings.TrimSpace(size)
	if cfg.Weight, err = decimalField(raw, "weight"); err != nil {
		return Config{}, err
	}
	if cfg.MinPrice, err = decimalField(raw, "minPrice"); err != nil {
		return Config{}, err
	}
	if cfg.MaxPrice, err = decimalField(raw, "maxPrice"); err != nil {
		return Config{}, err
	}

	methods, err := stringList(raw, "paymentMethods")
	if err != nil {
		return Config{}, err
	}
	for _, m := range methods {
		method, ok := domain.ParsePaymentMethod(m)
		if !ok {
			return Config{}, apperr.Validation("paymentMethods: unknown payment method %q", m)
		}
		cfg.PaymentMethods = append(cfg.PaymentMethods, method)
	}

	if cfg.Date, err = dateField(raw, "date"); err != nil {
		return Config{}, err
	}
	if cfg.FromDate, err = dateField(raw, "fromDate"); err != nil {
		return Config{}, err
	}
	if cfg.ToDate, err = dateField(raw, "toDate"); err != nil {
		return Config{}, err
	}
	if cfg.FromTime, err = timeField(raw, "fromTime"); err != nil {
		return Config{}, err
	}
	if cfg.ToTime, err = timeField(raw, "toTime"); err != nil {
		return Config{}, err
	}

	if v, ok := raw["timeframe"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return Config{}, apperr.Validation("timeframe: expected a string")
		}
		cfg.Timeframe = strings.TrimSpace(s)
	}

	if cfg.MinQuantity, err = intField(raw, "minQuantity"); err != nil {
		return Config{}, err
	}
	if cfg.MaxQuantity, err = intField(raw, "maxQuantity"); err != nil {
		return Config{}, err
	}

	places, err := intField(raw, "maxDecimalPlaces")
	if err != nil {
		return Config{}, err
	}
	if places != nil {
		if *places < 0 || *places > maxDecimalPlaces {
			return Config{}, apperr.Validation("maxDecimalPlaces: must be between 0 and %d", maxDecimalPlaces)
		}
		cfg.MaxDecimalPlaces = DecimalPlaces(int32(*places))
	}
	return cfg, nil
}

func stringList(raw map[string]any, key string) ([]string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, apperr.Validation("%s: expected a list of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{list}, nil
	default:
		return nil, apperr.Validation("%s: expected a list of strings", key)
	}
}

func stringField(raw map[string]any, key string) (string, bool, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, apperr.Validation("%s: expected a string", key)
	}
	return s, true, nil
}

func dateField(raw map[string]any, key string) (*domain.Date, error) {
	s, ok, err := stringField(raw, key)
	if err != nil || !ok {
		return nil, err
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return nil, apperr.Validation("%s: %v", key, err)
	}
	return &d, nil
}

func timeField(raw map[string]any, key string) (*domain.TimeOfDay, error) {
	s, ok, err := stringField(raw, key)
	if err != nil || !ok {
		return nil, err
	}
	t, err := domain.ParseTimeOfDay(s)
	if err != nil {
		return nil, apperr.Validation("%s: %v", key, err)
	}
	return &t, nil
}

func intField(raw map[string]any, key string) (*int, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	var n int
	switch num := v.(type) {
	case int:
		n = num
	case int64:
		n = int(num)
	case float64:
		if num != math.Trunc(num) || math.Abs(num) > math.MaxInt32 {
			return nil, apperr.Validation("%s: expected an integer", key)
		}
		n = int(num)
	case json.Number:
		i, err := num.Int64()
		if err != nil {
			return nil, apperr.Validation("%s: expected an integer", key)
		}
		n = int(i)
	default:
		return nil, apperr.Validation("%s: expected an integer", key)
	}
	return &n, nil
}

// lowerAll trims and lower-cases tags for case-insensitive matching.
func lowerAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

func decimalField(raw map[string]any, key string) (*decimal.Decimal, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	var (
		d   decimal.Decimal
		err error
	)
	switch num := v.(type) {
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(num))
	case json.Number:
		d, err = decimal.NewFromString(num.String())
	case float64:
		d = decimal.NewFromFloat(num)
	case int:
		d = decimal.NewFromInt(int64(num))
	case int64:
		d = decimal.NewFromInt(num)
	default:
		return nil, apperr.Validation("%s: expected a number", key)
	}
	if err != nil {
		return nil, apperr.Validation("%s: expected a number", key)
	}
	return &d, nil
}

// cacheKey is stable for equal configurations regardless of list order.
func (c Config) cacheKey() string {
	sorted := func(in []string) string {
		out := append([]string(nil), in...)
		sort.Strings(out)
		return strings.Join(out, ",")
	}
	parts := []string{
		"s=" + sorted(c.StoreIDs),
		"c=" + sorted(lowerAll(c.Categories)),
		"p=" + sorted(c.ProductIDs),
		"m=" + sorted(c.PaymentMethods),
		"b=" + sorted(c.BrandIDs),
		"g=" + sorted(c.GroupIDs),
		"col=" + strings.ToLower(c.Color),
		"sz=" + c.Size,
		"tf=" + strings.ToLower(c.Timeframe),
	}
	for _, d := range []struct {
		tag   string
		value *decimal.Decimal
	}{{"w", c.Weight}, {"minp", c.MinPrice}, {"maxp", c.MaxPrice}} {
		if d.value != nil {
			parts = append(parts, d.tag+"="+d.value.String())
		}
	}
	if c.Date != nil {
		parts = append(parts, "d="+c.Date.String())
	}
	if c.FromDate != nil {
		parts = append(parts, "fd="+c.FromDate.String())
	}
	if c.ToDate != nil {
		parts = append(parts, "td="+c.ToDate.String())
	}
	if c.FromTime != nil {
		parts = append(parts, "ft="+c.FromTime.String())
	}
	if c.ToTime != nil {
		parts = append(parts, "tt="+c.ToTime.String())
	}
	if c.MinQuantity != nil {
		parts = append(parts, fmt.Sprintf("minq=%d", *c.MinQuantity))
	}
	if c.MaxQuantity != nil {
		parts = append(parts, fmt.Sprintf("maxq=%d", *c.MaxQuantity))
	}
	return strings.Join(parts, "|")
}
