package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

var errNumericNaN = errors.New("postgres: NaN or infinite numeric")

// Decimal converts a scanned NUMERIC column.
func Decimal(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return decimal.Zero, errNumericNaN
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}

// Numeric converts d into a NUMERIC query argument.
func Numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}
