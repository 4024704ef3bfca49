package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/stockscan/stockscan-backend/pkg/errors"
)

// ParseQuantity accepts integer values in the shapes a decoded JSON body or a
// form field can take. Negative, fractional and non-numeric values are
// rejected with INVALID_QUANTITY. Nothing is clamped.
func ParseQuantity(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return checkNonNegative(int64(v), raw)
	case int32:
		return checkNonNegative(int64(v), raw)
	case int64:
		return checkNonNegative(v, raw)
	case uint:
		if uint64(v) > math.MaxInt32 {
			return 0, invalid(raw)
		}
		return int(v), nil
	case float32:
		return fromFloat(float64(v), raw)
	case float64:
		return fromFloat(v, raw)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return checkNonNegative(n, raw)
		}
		f, err := v.Float64()
		if err != nil {
			return 0, invalid(raw)
		}
		return fromFloat(f, raw)
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return checkNonNegative(n, raw)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, invalid(raw)
		}
		return fromFloat(f, raw)
	}
	return 0, invalid(raw)
}

func fromFloat(f float64, raw any) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, invalid(raw)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, invalid(raw)
	}
	return checkNonNegative(int64(f), raw)
}

func checkNonNegative(n int64, raw any) (int, error) {
	if n < 0 || n > math.MaxInt32 {
		return 0, invalid(raw)
	}
	return int(n), nil
}

func invalid(raw any) error {
	return errors.InvalidQuantity(fmt.Sprintf("quantity must be a non-negative integer, got %v", raw))
}
