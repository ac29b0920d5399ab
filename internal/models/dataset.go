package models

import "time"

// TemperatureRecord is one month of the series: the offset from the dataset's
// base temperature for (Year, Month). Month is 1-based.
type TemperatureRecord struct {
	Year     int     `json:"year"`
	Month    int     `json:"month"`
	Variance float64 `json:"variance"`
}

// Dataset is the decoded global-temperature document plus fetch metadata.
type Dataset struct {
	BaseTemperature float64             `json:"baseTemperature"`
	MonthlyVariance []TemperatureRecord `json:"monthlyVariance"`
	Source          string              `json:"source,omitempty"`
	FetchedAt       time.Time           `json:"fetchedAt"`
	Stale           bool                `json:"stale,omitempty"` // Indicates data served from stale cache
}

// Temperature returns the absolute temperature of r (variance + base).
func (d Dataset) Temperature(r TemperatureRecord) float64 {
	return r.Variance + d.BaseTemperature
}

// Temperatures returns the absolute temperature of every record in input order.
func (d Dataset) Temperatures() []float64 {
	out := make([]float64, len(d.MonthlyVariance))
	for i, r := range d.MonthlyVariance {
		out[i] = d.Temperature(r)
	}
	return out
}
