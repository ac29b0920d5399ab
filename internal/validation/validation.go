package validation

import (
	"errors"
	"fmt"
	"math"

	"github.com/kjstillabower/temperature-heatmap-service/internal/models"
)

// ErrNoRecords is returned when the dataset has no monthly records.
var ErrNoRecords = errors.New("dataset has no records")

// ErrMonthOutOfRange is returned when a record's month is outside 1..12.
var ErrMonthOutOfRange = errors.New("month out of range")

// ErrInvalidYear is returned when a record's year is not positive.
var ErrInvalidYear = errors.New("invalid year")

// ErrNonFiniteTemperature is returned when the base temperature or a record's
// absolute temperature is NaN or infinite.
var ErrNonFiniteTemperature = errors.New("temperature is not finite")

// ValidateDataset checks every record before the chart is built and rejects the
// whole dataset on the first offending record. The returned error wraps one of the
// package sentinels and names the record index.
func ValidateDataset(ds models.Dataset) error {
	if !isFinite(ds.BaseTemperature) {
		return fmt.Errorf("baseTemperature: %w", ErrNonFiniteTemperature)
	}
	if len(ds.MonthlyVariance) == 0 {
		return ErrNoRecords
	}
	for i, r := range ds.MonthlyVariance {
		if err := ValidateRecord(r, ds.BaseTemperature); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// ValidateRecord checks a single record against the dataset's base temperature.
func ValidateRecord(r models.TemperatureRecord, base float64) error {
	if r.Month < 1 || r.Month > 12 {
		return fmt.Errorf("%w: %d", ErrMonthOutOfRange, r.Month)
	}
	if r.Year <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidYear, r.Year)
	}
	if !isFinite(r.Variance + base) {
		return fmt.Errorf("year %d month %d: %w", r.Year, r.Month, ErrNonFiniteTemperature)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
