package firestore

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Monetary amounts and quantities persist as strings. Firestore numbers are
// IEEE doubles and would drift on repeated cost arithmetic.
func encodeDecimal(value decimal.Decimal) string {
	return value.String()
}

func decodeDecimal(value string) decimal.Decimal {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero
	}
	return parsed
}
