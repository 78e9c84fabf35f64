package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Window resolution rules
const (
	RuleToday         = "today"
	RuleYesterday     = "yesterday"
	RuleTrailingDays  = "trailing_days" // today minus Days through today
	RuleMonthToDate   = "month_to_date"
	RuleQuarterToDate = "quarter_to_date"
	RuleYearToDate    = "year_to_date"
	RuleLastMonth     = "last_month"
	RuleLastQuarter   = "last_quarter"
	RuleLastYear      = "last_year"
)

// DateLayout is the engine date format.
const DateLayout = "2006-01-02"

// DateRange is an inclusive calendar date range. Both ends are midnight in the
// location of the reference time used to resolve it.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Strings renders the range as [start, end] in DateLayout.
func (r DateRange) Strings() []string {
	return []string{r.Start.Format(DateLayout), r.End.Format(DateLayout)}
}

// TimeWindow is a named relative date range.
type TimeWindow struct {
	Name        string
	Aliases     []string
	EngineRange string
	Rule        string
	Days        int
}

// Resolve computes the concrete date range the window covers on now's date.
func (w TimeWindow) Resolve(now time.Time) DateRange {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch w.Rule {
	case RuleToday:
		return DateRange{Start: today, End: today}
	case RuleYesterday:
		y := today.AddDate(0, 0, -1)
		return DateRange{Start: y, End: y}
	case RuleTrailingDays:
		return DateRange{Start: today.AddDate(0, 0, -w.Days), End: today}
	case RuleMonthToDate:
		return DateRange{Start: firstOfMonth(today), End: today}
	case RuleQuarterToDate:
		return DateRange{Start: firstOfQuarter(today), End: today}
	case RuleYearToDate:
		return DateRange{Start: time.Date(today.Year(), 1, 1, 0, 0, 0, 0, today.Location()), End: today}
	case RuleLastMonth:
		end := firstOfMonth(today).AddDate(0, 0, -1)
		return DateRange{Start: firstOfMonth(end), End: end}
	case RuleLastQuarter:
		start := firstOfQuarter(today).AddDate(0, -3, 0)
		return DateRange{Start: start, End: firstOfQuarter(today).AddDate(0, 0, -1)}
	case RuleLastYear:
		loc := today.Location()
		return DateRange{
			Start: time.Date(today.Year()-1, 1, 1, 0, 0, 0, 0, loc),
			End:   time.Date(today.Year()-1, 12, 31, 0, 0, 0, 0, loc),
		}
	}
	// Unreachable for windows built by New, which rejects unknown rules.
	return DateRange{Start: today, End: today}
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func firstOfQuarter(t time.Time) time.Time {
	month := time.Month((int(t.Month())-1)/3*3 + 1)
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, t.Location())
}

var trailingDaysPattern = regexp.MustCompile(`^last_(\d+)_days$`)

// builtinWindows are the windows every engine understands natively, in the
// order they are listed when a catalog declares none.
var builtinWindows = []TimeWindow{
	{Name: "today", EngineRange: "today", Rule: RuleToday},
	{Name: "yesterday", EngineRange: "yesterday", Rule: RuleYesterday},
	{Name: "last_7_days", EngineRange: "last 7 days", Rule: RuleTrailingDays, Days: 7},
	{Name: "last_30_days", EngineRange: "last 30 days", Rule: RuleTrailingDays, Days: 30},
	{Name: "last_90_days", EngineRange: "last 90 days", Rule: RuleTrailingDays, Days: 90},
	{Name: "month_to_date", Aliases: []string{"mtd"}, EngineRange: "this month", Rule: RuleMonthToDate},
	{Name: "quarter_to_date", Aliases: []string{"qtd"}, EngineRange: "this quarter", Rule: RuleQuarterToDate},
	{Name: "year_to_date", Aliases: []string{"ytd"}, EngineRange: "this year", Rule: RuleYearToDate},
	{Name: "last_month", EngineRange: "last month", Rule: RuleLastMonth},
	{Name: "last_quarter", EngineRange: "last quarter", Rule: RuleLastQuarter},
	{Name: "last_year", EngineRange: "last year", Rule: RuleLastYear},
}

// DefaultTimeWindows returns the built-in window definitions.
func DefaultTimeWindows() []TimeWindowDefinition {
	defs := make([]TimeWindowDefinition, len(builtinWindows))
	for i, w := range builtinWindows {
		defs[i] = TimeWindowDefinition{
			Name:        w.Name,
			Aliases:     append([]string(nil), w.Aliases...),
			EngineRange: w.EngineRange,
			Rule:        w.Rule,
			Days:        w.Days,
		}
	}
	return defs
}

// buildTimeWindow fills defaults from the built-in table or from the
// last_<n>_days naming convention and checks the rule.
func buildTimeWindow(def TimeWindowDefinition) (TimeWindow, error) {
	w := TimeWindow{
		Name:        normalizeTerm(def.Name),
		EngineRange: def.EngineRange,
		Rule:        def.Rule,
		Days:        def.Days,
	}
	for _, a := range def.Aliases {
		w.Aliases = append(w.Aliases, normalizeTerm(a))
	}
	if w.Name == "" {
		return TimeWindow{}, fmt.Errorf("time window with empty name")
	}

	for _, b := range builtinWindows {
		if b.Name != w.Name {
			continue
		}
		if w.Rule == "" {
			w.Rule = b.Rule
			w.Days = b.Days
		}
		if w.EngineRange == "" {
			w.EngineRange = b.EngineRange
		}
		if len(def.Aliases) == 0 {
			w.Aliases = append([]string(nil), b.Aliases...)
		}
	}

	if m := trailingDaysPattern.FindStringSubmatch(w.Name); m != nil && w.Rule == "" {
		n, _ := strconv.Atoi(m[1])
		w.Rule = RuleTrailingDays
		w.Days = n
	}

	switch w.Rule {
	case RuleToday, RuleYesterday, RuleMonthToDate, RuleQuarterToDate, RuleYearToDate,
		RuleLastMonth, RuleLastQuarter, RuleLastYear:
	case RuleTrailingDays:
		if w.Days <= 0 {
			return TimeWindow{}, fmt.Errorf("time window %q: trailing_days requires days > 0", w.Name)
		}
	case "":
		return TimeWindow{}, fmt.Errorf("time window %q: no resolution rule", w.Name)
	default:
		return TimeWindow{}, fmt.Errorf("time window %q: unknown rule %q", w.Name, w.Rule)
	}

	if w.EngineRange == "" {
		if w.Rule == RuleTrailingDays {
			w.EngineRange = fmt.Sprintf("last %d days", w.Days)
		} else {
			w.EngineRange = ruleEngineRanges[w.Rule]
		}
	}
	return w, nil
}

var ruleEngineRanges = map[string]string{
	RuleToday:         "today",
	RuleYesterday:     "yesterday",
	RuleMonthToDate:   "this month",
	RuleQuarterToDate: "this quarter",
	RuleYearToDate:    "this year",
	RuleLastMonth:     "last month",
	RuleLastQuarter:   "last quarter",
	RuleLastYear:      "last year",
}
