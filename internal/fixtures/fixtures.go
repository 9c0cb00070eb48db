// Package fixtures reads the season's week-by-week fixture list.
package fixtures

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/kickoff-planner/kickoff/internal/config"
)

// Fixture is an unscheduled home/away pairing in a week.
type Fixture struct {
	Week int    `json:"week"`
	Home string `json:"home"`
	Away string `json:"away"`
}

// List maps week number to that week's fixtures in input order.
type List map[int][]Fixture

// Weeks returns the weeks present in ascending order.
func (l List) Weeks() []int {
	weeks := make([]int, 0, len(l))
	for w := range l {
		weeks = append(weeks, w)
	}
	sort.Ints(weeks)
	return weeks
}

// Count returns the total number of fixtures.
func (l List) Count() int {
	n := 0
	for _, fs := range l {
		n += len(fs)
	}
	return n
}

func (l List) clone() List {
	out := make(List, len(l))
	for w, fs := range l {
		out[w] = append([]Fixture(nil), fs...)
	}
	return out
}

// Reader extracts raw fixtures from a file. Team names are returned as they
// appear in the source.
type Reader interface {
	Read(path string) ([]Fixture, error)
}

// ReaderFor returns a Reader for the file's extension.
func ReaderFor(path string) (Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return &YAMLReader{}, nil
	case ".xlsx":
		return &ExcelReader{}, nil
	default:
		return nil, fmt.Errorf("unsupported fixture file: %q", path)
	}
}

// YAMLReader reads fixtures written as
//
//	weeks:
//	  7:
//	    - [Al-Hilal, Al-Nassr]
type YAMLReader struct{}

type yamlFixtures struct {
	Weeks map[int][][]string `yaml:"weeks"`
}

func (r *YAMLReader) Read(path string) ([]Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	return parseYAML(data)
}

func parseYAML(data []byte) ([]Fixture, error) {
	var doc yamlFixtures
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing fixtures: %w", err)
	}

	weeks := make([]int, 0, len(doc.Weeks))
	for w := range doc.Weeks {
		weeks = append(weeks, w)
	}
	sort.Ints(weeks)

	var out []Fixture
	for _, w := range weeks {
		for i, pair := range doc.Weeks[w] {
			if len(pair) != 2 {
				return nil, fmt.Errorf("week %d fixture %d: want [home, away], got %v", w, i+1, pair)
			}
			out = append(out, Fixture{Week: w, Home: pair[0], Away: pair[1]})
		}
	}
	return out, nil
}

// Normalize folds a raw team name for lookup: Unicode compatibility
// decomposition, non-ASCII removed, hyphens and underscores as spaces,
// whitespace collapsed, upper case.
func Normalize(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	s, _, err := transform.String(t, name)
	if err != nil {
		s = name
	}
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// Resolver maps raw team names to configured team names.
type Resolver struct {
	names map[string]string
}

// NewResolver indexes every team name and alias.
func NewResolver(teams []config.Team) *Resolver {
	r := &Resolver{names: make(map[string]string)}
	for _, t := range teams {
		r.names[Normalize(t.Name)] = t.Name
		for _, a := range t.Aliases {
			r.names[Normalize(a)] = t.Name
		}
	}
	return r
}

// Resolve returns the configured name for raw.
func (r *Resolver) Resolve(raw string) (string, bool) {
	name, ok := r.names[Normalize(raw)]
	return name, ok
}

// Build resolves raw fixtures into a List. Unmapped team names, a team
// playing itself, and repeated pairings within a week are errors.
func Build(raw []Fixture, r *Resolver) (List, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no fixtures found")
	}

	unmapped := make(map[string]bool)
	resolve := func(name string) string {
		canonical, ok := r.Resolve(name)
		if !ok {
			unmapped[strings.TrimSpace(name)] = true
		}
		return canonical
	}

	// Pairings are unordered: a reversed fixture in the same week repeats it.
	type pairKey struct {
		week int
		a, b string
	}
	seen := make(map[pairKey]bool)
	list := make(List)
	for _, f := range raw {
		home, away := resolve(f.Home), resolve(f.Away)
		if home == "" || away == "" {
			continue
		}
		if home == away {
			return nil, fmt.Errorf("week %d: %s cannot play itself", f.Week, home)
		}
		key := pairKey{f.Week, home, away}
		if key.b < key.a {
			key.a, key.b = key.b, key.a
		}
		if seen[key] {
			return nil, fmt.Errorf("week %d: %s vs %s listed twice", f.Week, home, away)
		}
		seen[key] = true
		list[f.Week] = append(list[f.Week], Fixture{Week: f.Week, Home: home, Away: away})
	}

	if len(unmapped) > 0 {
		names := make([]string, 0, len(unmapped))
		for n := range unmapped {
			names = append(names, fmt.Sprintf("%q", n))
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unmapped team names: %s; add them as team aliases", strings.Join(names, ", "))
	}
	return list, nil
}
