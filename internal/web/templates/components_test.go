package templates

import (
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/milesdash/internal/core"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var b strings.Builder
	if err := c.Render(context.Background(), &b); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return b.String()
}

func TestMiles(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1234.5, "1,234.5"},
		{3.25, "3.3"},
		{12, "12"},
	}
	for _, tt := range tests {
		if got := Miles(tt.in); !strings.HasPrefix(got, tt.want) {
			t.Errorf("Miles(%v) = %q, want prefix %q", tt.in, got, tt.want)
		}
	}
}

func TestPage(t *testing.T) {
	got := render(t, Page("Miles & <more>", templ.Raw("<p>inner</p>")))
	if !strings.HasPrefix(got, "<!doctype html>") {
		t.Errorf("page should start with a doctype: %.40s", got)
	}
	if !strings.Contains(got, "<title>Miles &amp; &lt;more&gt;</title>") {
		t.Errorf("title not escaped: %s", got)
	}
	if !strings.Contains(got, "<body><p>inner</p></body>") {
		t.Errorf("body not rendered inside <body>: %s", got)
	}
}

func TestRender_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var b strings.Builder
	if err := Dashboard(DashboardData{}).Render(ctx, &b); err == nil {
		t.Error("Render() with a cancelled context should fail")
	}
	if b.Len() != 0 {
		t.Errorf("cancelled render wrote %q", b.String())
	}
}

func TestErrorAlert(t *testing.T) {
	got := render(t, ErrorAlert("Row 1: <bad>", "Fix it", "ROW004"))
	if !strings.Contains(got, "Row 1: &lt;bad&gt;") {
		t.Errorf("message not escaped: %s", got)
	}
	if !strings.Contains(got, "<code>ROW004</code>") {
		t.Errorf("code missing: %s", got)
	}
	if !strings.Contains(got, "<span>Fix it</span>") {
		t.Errorf("action missing: %s", got)
	}

	got = render(t, ErrorAlert("Oops", "", ""))
	if strings.Contains(got, "<code>") || strings.Contains(got, "<span>") {
		t.Errorf("empty action and code should be omitted: %s", got)
	}
}

func TestTotalsTable(t *testing.T) {
	got := render(t, TotalsTable([]core.PersonTotal{
		{Person: "Bob", TotalMiles: 10},
		{Person: "Alice", TotalMiles: 5},
	}))
	for _, want := range []string{"1st", "2nd", `style="width:100%;"`, `style="width:50%;"`} {
		if !strings.Contains(got, want) {
			t.Errorf("totals table missing %q: %s", want, got)
		}
	}
}

func TestBarWidth(t *testing.T) {
	tests := []struct {
		v, top float64
		want   int
	}{
		{10, 10, 100},
		{1, 3, 33},
		{2, 3, 67},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := barWidth(tt.v, tt.top); got != tt.want {
			t.Errorf("barWidth(%v, %v) = %d, want %d", tt.v, tt.top, got, tt.want)
		}
	}
	if got := topMiles(nil); got != 0 {
		t.Errorf("topMiles(nil) = %v, want 0", got)
	}
}

func TestSeries(t *testing.T) {
	if got := render(t, Series("Miles", nil)); !strings.Contains(got, "No entries.") {
		t.Errorf("empty series = %s", got)
	}

	got := render(t, Series("Miles", []core.SeriesPoint{
		{Date: "2024-01-01", Label: "Jan 1", Person: "Bob", Miles: 2},
		{Date: "2024-01-02", Label: "Jan 2", Person: "Bob", Miles: 4},
	}))
	if !strings.Contains(got, `points="0.0,100.0 600.0,0.0"`) {
		t.Errorf("unexpected polyline: %s", got)
	}
	if !strings.Contains(got, `<td title="2024-01-02">Jan 2</td>`) {
		t.Errorf("label cell missing: %s", got)
	}
}

func TestDashboard_Empty(t *testing.T) {
	got := render(t, Page("Mileage Dashboard", Dashboard(DashboardData{MaxFileSize: 10 << 20})))
	if !strings.Contains(got, `enctype="multipart/form-data"`) {
		t.Error("empty dashboard should render the upload form")
	}
	if !strings.Contains(got, "10 MiB") {
		t.Errorf("size hint missing: %s", got)
	}
	if strings.Contains(got, "Replace CSV") {
		t.Error("empty dashboard should not offer Replace CSV")
	}
}

func TestDashboard_Overview(t *testing.T) {
	data := core.Dataset{
		{Date: "2024-01-01", Person: "Ann", Miles: 2},
		{Date: "2024-01-02", Person: "Bob", Miles: 4},
	}
	st := core.State{Dataset: data, Persons: []string{"Ann", "Bob"}, FileName: "a&b.csv"}
	got := render(t, Dashboard(DashboardData{
		State:    st,
		Overview: core.Overview(data),
		Alert:    &core.UserMessage{Message: "Heads up", Code: "ROW001"},
	}))
	for _, want := range []string{
		`role="alert"`,
		"<p>Loaded <strong>a&amp;b.csv</strong>: 2 records, 2 people.</p>",
		`<a href="/?tab=overview" class="active">Overall Analysis</a>`,
		`<a href="/?tab=person">Per Person</a>`,
		"Total miles per person",
		"Replace CSV",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("overview missing %q: %s", want, got)
		}
	}
	if strings.Contains(got, `enctype="multipart/form-data"`) {
		t.Error("loaded dashboard should not render the upload form")
	}
}

func TestDashboard_PersonTab(t *testing.T) {
	data := core.Dataset{{Date: "2024-01-01", Person: "Ann", Miles: 2}}
	st := core.State{Dataset: data, Persons: []string{"Ann"}, Selected: "Ann", FileName: "a.csv"}
	got := render(t, Dashboard(DashboardData{
		State:  st,
		Tab:    TabPerson,
		Person: core.BuildPersonView(data, "Ann"),
	}))
	if !strings.Contains(got, `<option value="Ann" selected>Ann</option>`) {
		t.Errorf("selector missing selected option: %s", got)
	}
	if !strings.Contains(got, `<a href="/?tab=person" class="active">Per Person</a>`) {
		t.Errorf("person tab link should be active: %s", got)
	}
	if strings.Contains(got, "Total miles per person") {
		t.Error("person tab should not render the totals table")
	}
}
