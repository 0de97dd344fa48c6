// Package partition matches object paths against partition regexes and the
// partition-column constraints pushed down from a query. It is the only
// path by which WHERE-clause restrictions reach storage listing.
package partition

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"lakeview/lakeerr"
	"lakeview/storage"
)

// Domain is the set of values a partition column may take. A nil Domain
// means the column is unconstrained.
type Domain map[string]struct{}

// Equal is the single-value equality domain.
func Equal(v string) Domain {
	return Domain{v: {}}
}

// In is a multi-value domain.
func In(values ...string) Domain {
	d := make(Domain, len(values))
	for _, v := range values {
		d[v] = struct{}{}
	}
	return d
}

func (d Domain) Contains(v string) bool {
	_, ok := d[v]
	return ok
}

// Values returns the domain's values in sorted order.
func (d Domain) Values() []string {
	out := make([]string, 0, len(d))
	for v := range d {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Constraint maps partition column names to their allowed values.
type Constraint map[string]Domain

// With returns a copy of c with column restricted to d. Restricting an
// already constrained column intersects the two domains.
func (c Constraint) With(column string, d Domain) Constraint {
	out := make(Constraint, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	if prev, ok := out[column]; ok {
		both := Domain{}
		for v := range d {
			if prev.Contains(v) {
				both[v] = struct{}{}
			}
		}
		d = both
	}
	out[column] = d
	return out
}

func (c Constraint) String() string {
	cols := make([]string, 0, len(c))
	for col := range c {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf("%s in %v", col, c[col].Values())
	}
	return strings.Join(parts, " and ")
}

// Policy decides what happens to a file whose path the regex does not match.
type Policy int

const (
	// Retain keeps non-matching objects (fail-open).
	Retain Policy = iota
	// Reject drops non-matching files. Directories are always retained so
	// the ancestors of matching objects stay reachable.
	Reject
)

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "retain":
		return Retain, nil
	case "reject":
		return Reject, nil
	default:
		return Retain, fmt.Errorf("unknown partition policy %q", s)
	}
}

// Predicate tests paths against one partition regex. Column i of the regex
// is capture group i+1.
type Predicate struct {
	table      string
	pattern    *regexp.Regexp
	columns    []string
	constraint Constraint
	policy     Policy
}

// NewPredicate builds a predicate. A nil pattern accepts every path.
func NewPredicate(table string, pattern *regexp.Regexp, columns []string, constraint Constraint, policy Policy) *Predicate {
	return &Predicate{
		table:      table,
		pattern:    pattern,
		columns:    columns,
		constraint: constraint,
		policy:     policy,
	}
}

// Pattern returns the source regex, or "" when the predicate accepts all.
func (p *Predicate) Pattern() string {
	if p == nil || p.pattern == nil {
		return ""
	}
	return p.pattern.String()
}

// Test reports whether the object at path survives the constraint.
// Directory paths are matched with a trailing separator so that directory
// and file regexes cannot be confused.
func (p *Predicate) Test(path string, isDir bool) (bool, error) {
	if p == nil || p.pattern == nil {
		return true, nil
	}
	if isDir && !strings.HasSuffix(path, storage.Separator) {
		path += storage.Separator
	}

	m := p.pattern.FindStringSubmatch(path)
	if m == nil {
		return isDir || p.policy == Retain, nil
	}

	for i, col := range p.columns {
		group := i + 1
		if group >= len(m) {
			return false, lakeerr.ErrConfig(p.table,
				"partition column %q has index %d but %q has only %d capture groups",
				col, i, p.pattern.String(), len(m)-1)
		}
		dom, ok := p.constraint[col]
		if !ok {
			continue
		}
		if !dom.Contains(m[group]) {
			return false, nil
		}
	}
	return true, nil
}

// Extract returns the partition values the regex captures from path, keyed
// by column name. It returns nil when the path does not match.
func (p *Predicate) Extract(path string, isDir bool) map[string]string {
	if p == nil || p.pattern == nil {
		return nil
	}
	if isDir && !strings.HasSuffix(path, storage.Separator) {
		path += storage.Separator
	}
	m := p.pattern.FindStringSubmatch(path)
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(p.columns))
	for i, col := range p.columns {
		if i+1 < len(m) {
			out[col] = m[i+1]
		}
	}
	return out
}
