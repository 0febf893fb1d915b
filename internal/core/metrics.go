package core

// metrics.go holds the pure aggregate functions behind the summary cards and
// charts. None of them mutate their input, and all of them are defined on an
// empty Dataset (numeric results fall back to 0, sequences to empty).

import (
	"sort"
	"time"
)

// TotalMiles returns the sum of miles over data.
func TotalMiles(data Dataset) float64 {
	var sum float64
	for _, r := range data {
		sum += r.Miles
	}
	return sum
}

// AverageMiles returns the arithmetic mean of miles, or 0 for no records.
func AverageMiles(data Dataset) float64 {
	if len(data) == 0 {
		return 0
	}
	return TotalMiles(data) / float64(len(data))
}

// MinMiles returns the smallest miles value, or 0 for no records.
func MinMiles(data Dataset) float64 {
	if len(data) == 0 {
		return 0
	}
	m := data[0].Miles
	for _, r := range data[1:] {
		if r.Miles < m {
			m = r.Miles
		}
	}
	return m
}

// MaxMiles returns the largest miles value, or 0 for no records.
func MaxMiles(data Dataset) float64 {
	if len(data) == 0 {
		return 0
	}
	m := data[0].Miles
	for _, r := range data[1:] {
		if r.Miles > m {
			m = r.Miles
		}
	}
	return m
}

// Summarize computes every card value in one call.
func Summarize(data Dataset) Summary {
	return Summary{
		Count:   len(data),
		Total:   TotalMiles(data),
		Average: AverageMiles(data),
		Min:     MinMiles(data),
		Max:     MaxMiles(data),
	}
}

// UniquePersons returns the distinct person values sorted ascending.
func UniquePersons(data Dataset) []string {
	seen := make(map[string]struct{}, len(data))
	persons := make([]string, 0)
	for _, r := range data {
		if _, ok := seen[r.Person]; ok {
			continue
		}
		seen[r.Person] = struct{}{}
		persons = append(persons, r.Person)
	}
	sort.Strings(persons)
	return persons
}

// FilterByPerson returns the records whose person matches exactly
// (case-sensitive), in their original relative order.
func FilterByPerson(data Dataset, person string) Dataset {
	out := make(Dataset, 0)
	for _, r := range data {
		if r.Person == person {
			out = append(out, r)
		}
	}
	return out
}

// TotalMilesPerPerson sums miles per person and sorts by total, highest
// first. Equal totals keep the order in which each person first appears.
func TotalMilesPerPerson(data Dataset) []PersonTotal {
	index := make(map[string]int)
	totals := make([]PersonTotal, 0)
	for _, r := range data {
		i, ok := index[r.Person]
		if !ok {
			i = len(totals)
			index[r.Person] = i
			totals = append(totals, PersonTotal{Person: r.Person})
		}
		totals[i].TotalMiles += r.Miles
	}

	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].TotalMiles > totals[j].TotalMiles
	})
	return totals
}

// SortByDate returns a copy of data ordered by parsed date, oldest first.
// The sort is stable, so records on the same date keep their file order and
// sorting an already sorted Dataset is a no-op.
func SortByDate(data Dataset) Dataset {
	type keyed struct {
		rec Record
		at  time.Time
	}

	items := make([]keyed, len(data))
	for i, r := range data {
		t, _ := ParseDate(r.Date)
		items[i] = keyed{rec: r, at: t}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].at.Before(items[j].at)
	})

	out := make(Dataset, len(items))
	for i, it := range items {
		out[i] = it.rec
	}
	return out
}
