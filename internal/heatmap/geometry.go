package heatmap

import (
	"gonum.org/v1/gonum/floats"

	"github.com/kjstillabower/temperature-heatmap-service/internal/models"
)

// monthRows is the number of grid rows, one per calendar month.
const monthRows = 12

// Geometry is the size of one grid cell for a dataset on a given plot area.
type Geometry struct {
	CellWidth     float64 `json:"cellWidth"`
	CellHeight    float64 `json:"cellHeight"`
	DistinctYears int     `json:"distinctYears"`
}

// ComputeGeometry divides the plot into one column per distinct year and one row
// per month. A dataset with at most one year yields a single full-width column.
func ComputeGeometry(ds models.Dataset, plotWidth, plotHeight float64) Geometry {
	years := distinctYears(ds.MonthlyVariance)
	cols := years
	if cols < 1 {
		cols = 1
	}
	return Geometry{
		CellWidth:     plotWidth / float64(cols),
		CellHeight:    plotHeight / monthRows,
		DistinctYears: years,
	}
}

func distinctYears(records []models.TemperatureRecord) int {
	seen := make(map[int]struct{}, len(records)/monthRows+1)
	for _, r := range records {
		seen[r.Year] = struct{}{}
	}
	return len(seen)
}

// Extrema are the year and absolute-temperature bounds of a dataset.
type Extrema struct {
	MinYear        int     `json:"minYear"`
	MaxYear        int     `json:"maxYear"`
	MinTemperature float64 `json:"minTemperature"`
	MaxTemperature float64 `json:"maxTemperature"`
	MinVariance    float64 `json:"minVariance"`
	MaxVariance    float64 `json:"maxVariance"`
}

// ComputeExtrema scans ds once. ds must have at least one record.
func ComputeExtrema(ds models.Dataset) Extrema {
	variances := make([]float64, len(ds.MonthlyVariance))
	e := Extrema{MinYear: ds.MonthlyVariance[0].Year, MaxYear: ds.MonthlyVariance[0].Year}
	for i, r := range ds.MonthlyVariance {
		variances[i] = r.Variance
		e.MinYear = min(e.MinYear, r.Year)
		e.MaxYear = max(e.MaxYear, r.Year)
	}
	e.MinVariance = floats.Min(variances)
	e.MaxVariance = floats.Max(variances)
	e.MinTemperature = e.MinVariance + ds.BaseTemperature
	e.MaxTemperature = e.MaxVariance + ds.BaseTemperature
	return e
}
