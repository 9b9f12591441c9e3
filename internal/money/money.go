package money

import (
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

const minorExp = -2

// Numeric converts an amount in minor units (kopecks, cents) to an exact decimal
// in major units.
func Numeric(minor int64) pgtype.Numeric {
	return pgtype.Numeric{Int: big.NewInt(minor), Exp: minorExp, Valid: true}
}

// Format renders an amount in minor units as a major-unit decimal string, e.g. 10000 -> "100.00".
func Format(minor int64) string {
	sign := ""
	abs := new(big.Int).Abs(big.NewInt(minor)).String()
	if minor < 0 {
		sign = "-"
	}

	for len(abs) < 3 {
		abs = "0" + abs
	}
	return sign + abs[:len(abs)-2] + "." + abs[len(abs)-2:]
}
