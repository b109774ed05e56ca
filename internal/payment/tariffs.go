package payment

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/and161185/clubpay/internal/model"
)

// DefaultHourlyRate is used for custom hours when no tariff publishes a rate (kopecks per hour).
const DefaultHourlyRate = 15000

// ParseTariffs converts raw store rows into purchasable tariffs. Rows whose price or
// duration is missing, non-numeric, fractional or not positive are dropped.
func ParseTariffs(raw []model.RawTariff) []model.Tariff {
	out := make([]model.Tariff, 0, len(raw))
	for _, r := range raw {
		t, ok := parseTariff(r)
		if ok {
			out = append(out, t)
		}
	}
	return out
}

func parseTariff(r model.RawTariff) (model.Tariff, bool) {
	price, ok := toPositiveInt(r.Price)
	if !ok {
		return model.Tariff{}, false
	}
	dur, ok := toPositiveInt(r.DurationMinutes)
	if !ok || dur > math.MaxInt32 {
		return model.Tariff{}, false
	}
	typ := model.TariffType(r.Type)
	if typ != model.TariffHourly && typ != model.TariffPackage {
		return model.Tariff{}, false
	}
	t := model.Tariff{
		ID:              r.ID,
		Name:            r.Name,
		Type:            typ,
		Price:           price,
		DurationMinutes: int(dur),
	}
	if r.Description != nil {
		t.Description = *r.Description
	}
	if rate, ok := toPositiveInt(r.HourlyRate); ok {
		t.HourlyRate = rate
	}
	return t, true
}

// HourlyRate returns the first published hourly rate, or DefaultHourlyRate.
func HourlyRate(tariffs []model.Tariff) int64 {
	for _, t := range tariffs {
		if t.HourlyRate > 0 {
			return t.HourlyRate
		}
	}
	return DefaultHourlyRate
}

func toPositiveInt(v any) (int64, bool) {
	var n int64
	switch x := v.(type) {
	case nil:
		return 0, false
	case int:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case string:
		return stringToInt(x)
	case json.Number:
		return stringToInt(x.String())
	case pgtype.Numeric:
		return numericToInt(x)
	case *pgtype.Numeric:
		if x == nil {
			return 0, false
		}
		return numericToInt(*x)
	default:
		return 0, false
	}
	return n, n > 0
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f <= 0 || f > math.MaxInt64/2 {
		return 0, false
	}
	return int64(f), true
}

func stringToInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, n > 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return floatToInt(f)
}

func numericToInt(n pgtype.Numeric) (int64, bool) {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return 0, false
	}
	v := new(big.Int).Set(n.Int)
	if n.Exp > 0 {
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	} else if n.Exp < 0 {
		div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil)
		q, r := new(big.Int).QuoRem(v, div, new(big.Int))
		if r.Sign() != 0 {
			return 0, false
		}
		v = q
	}
	if !v.IsInt64() {
		return 0, false
	}
	i := v.Int64()
	return i, i > 0
}
