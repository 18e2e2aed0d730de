// Package units converts between on-chain integer amounts and the decimal
// strings shown to users. Conversions are exact for any magnitude.
package units

import (
	"fmt"
	"math/big"
	"strings"

	xerrors "StoryAgent-Kit/internal/errors"

	"github.com/shopspring/decimal"
)

// Format renders raw as a decimal string scaled down by 10^decimals. Trailing
// zeros are trimmed and zero renders as "0".
func Format(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}

// Parse converts a non-negative decimal string into its raw integer value
// scaled up by 10^decimals. Amounts with more fractional digits than the
// token supports are rejected instead of being truncated.
func Parse(amount string, decimals uint8) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "amount is required")
	}
	if strings.ContainsAny(trimmed, "eE") {
		return nil, xerrors.Newf(xerrors.CodeValidation, "amount %q must be a plain decimal number", amount)
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, fmt.Sprintf("amount %q is not a valid number", amount))
	}
	if value.IsNegative() {
		return nil, xerrors.Newf(xerrors.CodeValidation, "amount %q must not be negative", amount)
	}
	if -value.Exponent() > int32(decimals) {
		normalized := decimal.RequireFromString(value.String())
		if -normalized.Exponent() > int32(decimals) {
			return nil, xerrors.Newf(xerrors.CodeValidation,
				"amount %q has more than %d decimal places", amount, decimals)
		}
	}
	return value.Shift(int32(decimals)).BigInt(), nil
}

// IsPositive reports whether raw is strictly greater than zero.
func IsPositive(raw *big.Int) bool {
	return raw != nil && raw.Sign() > 0
}
