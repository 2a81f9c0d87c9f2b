// Package demographics generates default patient profiles from small
// fixed sampling tables. It implements the engine's profile source, so
// every draw comes from the patient's own deterministic stream; the
// draw order below is a fixed contract shared with recorded runs.
package demographics

import (
	"fmt"
	"time"

	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/rng"
)

// Default age bounds for generated patients, in whole years at the run
// end date.
const (
	DefaultMinAge = 0
	DefaultMaxAge = 90
)

const defaultMaleRatio = 0.5

// Options configures the sampler. End anchors the age window: birth
// dates are uniform over [End - MaxAge years, End - MinAge years].
type Options struct {
	End       time.Time
	MinAge    int
	MaxAge    int
	MaleRatio float64 // 0 means the default even split
}

// Model is a fixed-table profile sampler. It is safe for concurrent use;
// all randomness comes from the per-call source.
type Model struct {
	opts Options
}

// New validates the sampling options.
func New(opts Options) (*Model, error) {
	if opts.End.IsZero() {
		return nil, fmt.Errorf("demographics: no end date to anchor ages")
	}
	if opts.MaxAge == 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.MinAge < 0 || opts.MaxAge < opts.MinAge {
		return nil, fmt.Errorf("demographics: bad age window [%d, %d]", opts.MinAge, opts.MaxAge)
	}
	if opts.MaleRatio == 0 {
		opts.MaleRatio = defaultMaleRatio
	}
	if opts.MaleRatio < 0 || opts.MaleRatio > 1 {
		return nil, fmt.Errorf("demographics: male ratio %v is not a probability", opts.MaleRatio)
	}
	return &Model{opts: opts}, nil
}

// Profile draws one demographic profile. The draw order is fixed: sex,
// first name, last name, race, ethnicity, location, income, birth date.
func (m *Model) Profile(src *rng.Source, _ int) person.Profile {
	sex := person.Female
	names := femaleNames
	if src.Float64() < m.opts.MaleRatio {
		sex = person.Male
		names = maleNames
	}

	first := names[src.IntN(len(names))]
	last := lastNames[src.IntN(len(lastNames))]
	race := pickWeighted(src, races)
	ethnicity := pickWeighted(src, ethnicities)
	loc := locations[src.IntN(len(locations))]
	income := src.IntBetween(incomeLow, incomeHigh)
	birth := m.birthDate(src)

	return person.Profile{
		FirstName: first,
		LastName:  last,
		Sex:       sex,
		Race:      race,
		Ethnicity: ethnicity,
		City:      loc.city,
		State:     loc.state,
		Income:    income,
		BirthDate: birth,
	}
}

// birthDate draws a midnight-aligned date uniform over the age window.
func (m *Model) birthDate(src *rng.Source) time.Time {
	oldest := m.opts.End.AddDate(-m.opts.MaxAge, 0, 0)
	youngest := m.opts.End.AddDate(-m.opts.MinAge, 0, 0)
	days := int(youngest.Sub(oldest).Hours() / 24)
	d := oldest.AddDate(0, 0, src.IntBetween(0, days))
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

type weighted struct {
	value  string
	weight float64
}

// pickWeighted walks cumulative mass; the last entry absorbs floating
// point residue. Exactly one uniform draw per call.
func pickWeighted(src *rng.Source, table []weighted) string {
	u := src.Float64()
	cum := 0.0
	for i, w := range table {
		cum += w.weight
		if u < cum || i == len(table)-1 {
			return w.value
		}
	}
	return ""
}

const (
	incomeLow  = 14_000
	incomeHigh = 210_000
)

var maleNames = []string{
	"James", "Robert", "John", "Michael", "David", "William", "Richard",
	"Joseph", "Thomas", "Carlos", "Daniel", "Matthew", "Anthony", "Mark",
	"Luis", "Steven", "Andrew", "Kenji", "Paul", "Samuel",
}

var femaleNames = []string{
	"Mary", "Patricia", "Jennifer", "Linda", "Elizabeth", "Barbara",
	"Susan", "Jessica", "Maria", "Sarah", "Karen", "Lisa", "Nancy",
	"Ana", "Margaret", "Sandra", "Ashley", "Mei", "Emily", "Carol",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
	"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez",
	"Wilson", "Anderson", "Nguyen", "Kim", "Murphy", "Sullivan", "Chen",
}

var races = []weighted{
	{"white", 0.61},
	{"black", 0.13},
	{"asian", 0.06},
	{"native", 0.012},
	{"other", 0.188},
}

var ethnicities = []weighted{
	{"nonhispanic", 0.82},
	{"hispanic", 0.18},
}

type location struct {
	city  string
	state string
}

var locations = []location{
	{"Boston", "Massachusetts"},
	{"Worcester", "Massachusetts"},
	{"Springfield", "Massachusetts"},
	{"Cambridge", "Massachusetts"},
	{"Lowell", "Massachusetts"},
	{"Brockton", "Massachusetts"},
	{"Quincy", "Massachusetts"},
	{"New Bedford", "Massachusetts"},
	{"Lynn", "Massachusetts"},
	{"Fall River", "Massachusetts"},
}
