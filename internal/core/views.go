package core

// Overview builds the overall analysis tab: cards over every record, totals
// per person for the bar chart, and the date-sorted line series.
func Overview(data Dataset) OverviewView {
	return OverviewView{
		Summary: Summarize(data),
		Totals:  TotalMilesPerPerson(data),
		Series:  series(SortByDate(data)),
	}
}

// BuildPersonView builds the per-person tab. An unknown person yields an
// empty series and zeroed summary rather than an error.
func BuildPersonView(data Dataset, person string) PersonView {
	filtered := FilterByPerson(data, person)
	return PersonView{
		Person:  person,
		Summary: Summarize(filtered),
		Series:  series(SortByDate(filtered)),
	}
}

func series(sorted Dataset) []SeriesPoint {
	points := make([]SeriesPoint, len(sorted))
	for i, r := range sorted {
		t, _ := ParseDate(r.Date)
		points[i] = SeriesPoint{
			Date:   r.Date,
			Label:  chartLabel(t),
			Time:   t,
			Person: r.Person,
			Miles:  r.Miles,
		}
	}
	return points
}
