package core

import (
	"math"
	"sort"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func sampleDataset() Dataset {
	return Dataset{
		{Date: "2024-01-03", Person: "Carol", Miles: 4},
		{Date: "2024-01-01", Person: "Alice", Miles: 5.5},
		{Date: "2024-01-02", Person: "Bob", Miles: 3.2},
		{Date: "01/01/2024", Person: "Bob", Miles: 2},
		{Date: "2024-01-02", Person: "Alice", Miles: 1},
		{Date: "2023-12-31", Person: "alice", Miles: 7},
	}
}

func TestAggregates(t *testing.T) {
	Convey("Given the two-row example dataset", t, func() {
		data := ParseCSV("date,person,miles\n2024-01-01,Alice,5.5\n2024-01-02,Bob,3.2").Records

		Convey("Then the card values match", func() {
			So(AverageMiles(data), ShouldAlmostEqual, 4.35, 1e-9)
			So(MinMiles(data), ShouldEqual, 3.2)
			So(MaxMiles(data), ShouldEqual, 5.5)
			So(TotalMiles(data), ShouldAlmostEqual, 8.7, 1e-9)
		})

		Convey("Then Summarize agrees with the individual functions", func() {
			s := Summarize(data)
			So(s.Count, ShouldEqual, 2)
			So(s.Average, ShouldEqual, AverageMiles(data))
			So(s.Min, ShouldEqual, MinMiles(data))
			So(s.Max, ShouldEqual, MaxMiles(data))
		})
	})

	Convey("Given any non-empty dataset", t, func() {
		data := sampleDataset()

		Convey("Then min <= average <= max", func() {
			So(MinMiles(data), ShouldBeLessThanOrEqualTo, AverageMiles(data))
			So(AverageMiles(data), ShouldBeLessThanOrEqualTo, MaxMiles(data))
		})

		Convey("Then a single record is its own min, max and average", func() {
			one := data[:1]
			So(MinMiles(one), ShouldEqual, 4)
			So(MaxMiles(one), ShouldEqual, 4)
			So(AverageMiles(one), ShouldEqual, 4)
		})
	})
}

func TestEmptyDataset(t *testing.T) {
	Convey("Given a header-only upload", t, func() {
		result := ParseCSV("date,person,miles")
		So(result.OK(), ShouldBeTrue)
		data := result.Records

		Convey("Then every function returns its fallback", func() {
			So(data, ShouldNotBeNil)
			So(data, ShouldBeEmpty)
			So(AverageMiles(data), ShouldEqual, 0)
			So(MinMiles(data), ShouldEqual, 0)
			So(MaxMiles(data), ShouldEqual, 0)
			So(TotalMiles(data), ShouldEqual, 0)
			So(UniquePersons(data), ShouldBeEmpty)
			So(UniquePersons(data), ShouldNotBeNil)
			So(FilterByPerson(data, "Alice"), ShouldBeEmpty)
			So(TotalMilesPerPerson(data), ShouldBeEmpty)
			So(SortByDate(data), ShouldBeEmpty)
			So(Summarize(data), ShouldResemble, Summary{})
		})
	})

	Convey("Given a nil dataset", t, func() {
		var data Dataset

		Convey("Then nothing panics and sequences are empty", func() {
			So(AverageMiles(data), ShouldEqual, 0)
			So(TotalMilesPerPerson(data), ShouldNotBeNil)
			So(SortByDate(data), ShouldNotBeNil)
		})
	})
}

func TestUniquePersons(t *testing.T) {
	Convey("Given records with repeated and case-distinct names", t, func() {
		data := sampleDataset()
		persons := UniquePersons(data)

		Convey("Then the names are sorted and distinct", func() {
			So(persons, ShouldResemble, []string{"Alice", "Bob", "Carol", "alice"})
			So(sort.StringsAreSorted(persons), ShouldBeTrue)

			seen := map[string]bool{}
			for _, r := range data {
				seen[r.Person] = true
			}
			So(len(persons), ShouldEqual, len(seen))
		})
	})
}

func TestFilterByPerson(t *testing.T) {
	Convey("Given a dataset", t, func() {
		data := sampleDataset()

		Convey("When filtering for Alice", func() {
			got := FilterByPerson(data, "Alice")

			Convey("Then only exact matches are kept, in file order", func() {
				So(got, ShouldResemble, Dataset{
					{Date: "2024-01-01", Person: "Alice", Miles: 5.5},
					{Date: "2024-01-02", Person: "Alice", Miles: 1},
				})
			})
		})

		Convey("Then the filtered length equals the match count for every person", func() {
			for _, p := range UniquePersons(data) {
				count := 0
				for _, r := range data {
					if r.Person == p {
						count++
					}
				}
				So(len(FilterByPerson(data, p)), ShouldEqual, count)
			}
		})

		Convey("Then an unknown person yields an empty result", func() {
			So(FilterByPerson(data, "Zed"), ShouldBeEmpty)
		})
	})
}

func TestTotalMilesPerPerson(t *testing.T) {
	Convey("Given a dataset", t, func() {
		data := sampleDataset()
		totals := TotalMilesPerPerson(data)

		Convey("Then totals are sorted highest first", func() {
			So(totals[0].Person, ShouldEqual, "alice")
			So(totals[0].TotalMiles, ShouldEqual, 7)
			for i := 1; i < len(totals); i++ {
				So(totals[i-1].TotalMiles, ShouldBeGreaterThanOrEqualTo, totals[i].TotalMiles)
			}
		})

		Convey("Then no miles are lost in grouping", func() {
			var sum float64
			for _, pt := range totals {
				sum += pt.TotalMiles
			}
			So(math.Abs(sum-TotalMiles(data)), ShouldBeLessThan, 1e-9)
			So(len(totals), ShouldEqual, len(UniquePersons(data)))
		})
	})

	Convey("Given tied totals", t, func() {
		data := Dataset{
			{Date: "2024-01-01", Person: "Bob", Miles: 2},
			{Date: "2024-01-01", Person: "Alice", Miles: 2},
			{Date: "2024-01-01", Person: "Carol", Miles: 3},
		}

		Convey("Then ties keep first-appearance order", func() {
			So(TotalMilesPerPerson(data), ShouldResemble, []PersonTotal{
				{Person: "Carol", TotalMiles: 3},
				{Person: "Bob", TotalMiles: 2},
				{Person: "Alice", TotalMiles: 2},
			})
		})
	})
}

func TestSortByDate(t *testing.T) {
	Convey("Given an unsorted dataset", t, func() {
		data := sampleDataset()
		original := append(Dataset(nil), data...)
		sorted := SortByDate(data)

		Convey("Then records are in ascending date order", func() {
			So(sorted[0].Date, ShouldEqual, "2023-12-31")
			for i := 1; i < len(sorted); i++ {
				prev, _ := ParseDate(sorted[i-1].Date)
				cur, _ := ParseDate(sorted[i].Date)
				So(prev.After(cur), ShouldBeFalse)
			}
		})

		Convey("Then mixed date spellings compare by value", func() {
			// "01/01/2024" and "2024-01-01" are the same day, kept in file order.
			So(sorted[1], ShouldResemble, Record{Date: "2024-01-01", Person: "Alice", Miles: 5.5})
			So(sorted[2], ShouldResemble, Record{Date: "01/01/2024", Person: "Bob", Miles: 2})
		})

		Convey("Then the input is not modified", func() {
			So(data, ShouldResemble, original)
		})

		Convey("Then sorting is idempotent", func() {
			So(SortByDate(sorted), ShouldResemble, sorted)
			So(SortByDate(SortByDate(data)), ShouldResemble, SortByDate(data))
		})
	})
}
