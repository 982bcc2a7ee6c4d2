package domain

import "github.com/shopspring/decimal"

// PointsCost is what a rider pays in points: price * partySize * pointsPerDollar, rounded up.
func PointsCost(f Flight, partySize int, pointsPerDollar int64) int64 {
	return f.Price().
		Mul(decimal.NewFromInt(int64(partySize))).
		Mul(decimal.NewFromInt(pointsPerDollar)).
		Ceil().
		IntPart()
}

// PointsOwed is what a completed booking earns, rounded down.
func PointsOwed(f Flight, partySize int, awardPointsPerDollar int64) int64 {
	return f.Price().
		Mul(decimal.NewFromInt(int64(partySize))).
		Mul(decimal.NewFromInt(awardPointsPerDollar)).
		Floor().
		IntPart()
}
