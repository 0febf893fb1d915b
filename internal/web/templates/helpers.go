// Package templates holds the dashboard's HTML components.
//
// Components live in components.templ; components_templ.go is generated
// from it and committed.
package templates

//go:generate templ generate -f components.templ

import (
	"fmt"
	"math"
	"strings"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"

	"github.com/JonMunkholm/milesdash/internal/core"
)

// Tab names accepted by Dashboard.
const (
	TabOverview = "overview"
	TabPerson   = "person"
)

// DashboardData is everything the dashboard page renders.
type DashboardData struct {
	State       core.State
	Overview    core.OverviewView
	Person      core.PersonView
	Alert       *core.UserMessage
	Tab         string
	MaxFileSize int64
}

// Miles formats a mileage with thousands separators and one decimal.
func Miles(v float64) string {
	return humanize.CommafWithDigits(math.Round(v*10)/10, 1)
}

// topMiles is the largest total; totals arrive sorted descending.
func topMiles(totals []core.PersonTotal) float64 {
	if len(totals) == 0 {
		return 0
	}
	return totals[0].TotalMiles
}

func barWidth(v, top float64) int {
	if top <= 0 {
		return 0
	}
	return int(math.Round(v / top * 100))
}

func barStyle(v, top float64) templ.SafeCSS {
	return templ.SafeCSS(fmt.Sprintf("width:%d%%", barWidth(v, top)))
}

// Chart viewBox size; Series hardcodes the same numbers in its svg tag.
const (
	chartWidth  = 600
	chartHeight = 200
)

func polyline(points []core.SeriesPoint) string {
	top := 0.0
	for _, pt := range points {
		top = math.Max(top, pt.Miles)
	}
	var b strings.Builder
	step := 0.0
	if len(points) > 1 {
		step = float64(chartWidth) / float64(len(points)-1)
	}
	for i, pt := range points {
		y := float64(chartHeight)
		if top > 0 {
			y = chartHeight - pt.Miles/top*chartHeight
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%.1f,%.1f", float64(i)*step, y)
	}
	return b.String()
}
