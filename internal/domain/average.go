package domain

import (
	"math"
	"strconv"
)

// NotEnoughData is reported instead of an average when the sample is too small.
const NotEnoughData = "Not Enough Data"

// MinSampleSize is the number of observations a group needs before its averages are published.
const MinSampleSize = 20

// Average is a mean speed that may be withheld.
type Average struct {
	Value float64
	Valid bool
}

// NewAverage returns a valid Average when count reaches MinSampleSize.
func NewAverage(value float64, count int64) Average {
	if count < MinSampleSize {
		return Average{}
	}
	return Average{Value: value, Valid: true}
}

// Rounded returns the value rounded to two decimals.
func (a Average) Rounded() float64 {
	return math.Round(a.Value*100) / 100
}

func (a Average) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte(strconv.Quote(NotEnoughData)), nil
	}
	return []byte(strconv.FormatFloat(a.Rounded(), 'f', -1, 64)), nil
}

func (a Average) String() string {
	if !a.Valid {
		return NotEnoughData
	}
	return strconv.FormatFloat(a.Rounded(), 'f', 2, 64)
}
