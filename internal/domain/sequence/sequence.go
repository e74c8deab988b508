// Package sequence allocates human-readable document numbers of the form
// PREFIX-YYYY-NNNN from a per-(prefix, year) counter row.
package sequence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rhu/rhu/internal/platform/apperr"
)

const (
	PrefixPatient      = "P"
	PrefixConsultation = "CONS"
	PrefixPrescription = "RX"
	PrefixReferral     = "REF"
	PrefixCertificate  = "MC"
)

// Owner is the table and identifier column a prefix numbers. Rows already
// carrying numbers for a year seed that year's counter.
type Owner struct {
	Table  string
	Column string
}

var owners = map[string]Owner{
	PrefixPatient:      {Table: "patients", Column: "patient_number"},
	PrefixConsultation: {Table: "consultations", Column: "consultation_number"},
	PrefixPrescription: {Table: "prescriptions", Column: "prescription_number"},
	PrefixReferral:     {Table: "referrals", Column: "referral_number"},
	PrefixCertificate:  {Table: "medical_certificates", Column: "certificate_number"},
}

// OwnerOf returns the registered owner of prefix.
func OwnerOf(prefix string) (Owner, bool) {
	o, ok := owners[prefix]
	return o, ok
}

// Prefixes lists the registered prefixes in sorted order.
func Prefixes() []string {
	out := make([]string, 0, len(owners))
	for p := range owners {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Format renders PREFIX-YYYY-NNNN. Numbers above 9999 keep all digits.
func Format(prefix string, year, n int) string {
	return fmt.Sprintf("%s-%04d-%04d", prefix, year, n)
}

// Parse splits a number produced by Format.
func Parse(id string) (prefix string, year, n int, err error) {
	parts := strings.Split(id, "-")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, 0, fmt.Errorf("sequence: malformed number %q", id)
	}
	if len(parts[1]) != 4 {
		return "", 0, 0, fmt.Errorf("sequence: malformed year in %q", id)
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, fmt.Errorf("sequence: malformed year in %q", id)
	}
	if len(parts[2]) < 4 {
		return "", 0, 0, fmt.Errorf("sequence: malformed counter in %q", id)
	}
	n, err = strconv.Atoi(parts[2])
	if err != nil || n <= 0 {
		return "", 0, 0, fmt.Errorf("sequence: malformed counter in %q", id)
	}
	return parts[0], year, n, nil
}

// Store advances counters. Next must join the caller's transaction so the
// number and the row that carries it commit together.
type Store interface {
	Next(ctx context.Context, owner Owner, prefix string, year int) (int, error)
	Peek(ctx context.Context, owner Owner, prefix string, year int) (int, error)
}

// Observer is told about every allocated number.
type Observer interface {
	SequenceAllocated(prefix string)
}

type Generator struct {
	store    Store
	loc      *time.Location
	observer Observer
	now      func() time.Time
}

// NewGenerator returns a generator computing the year in loc. A nil loc
// means UTC.
func NewGenerator(store Store, loc *time.Location, observer Observer) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{store: store, loc: loc, observer: observer, now: time.Now}
}

// Year is the current calendar year at the clinic.
func (g *Generator) Year() int {
	return g.now().In(g.loc).Year()
}

// Next allocates the next number for prefix in year.
func (g *Generator) Next(ctx context.Context, prefix string, year int) (string, error) {
	owner, ok := OwnerOf(prefix)
	if !ok {
		return "", apperr.Validation("unknown sequence prefix %q", prefix)
	}
	n, err := g.store.Next(ctx, owner, prefix, year)
	if err != nil {
		return "", fmt.Errorf("allocate %s number: %w", prefix, err)
	}
	if g.observer != nil {
		g.observer.SequenceAllocated(prefix)
	}
	return Format(prefix, year, n), nil
}

// NextAt allocates in the clinic-local year of at. Services pass their own
// clock so the number and the row timestamps agree across New Year.
func (g *Generator) NextAt(ctx context.Context, prefix string, at time.Time) (string, error) {
	return g.Next(ctx, prefix, at.In(g.loc).Year())
}

// NextThisYear allocates using the clinic's current year.
func (g *Generator) NextThisYear(ctx context.Context, prefix string) (string, error) {
	return g.NextAt(ctx, prefix, g.now())
}

// Peek reports the number the next call to Next would return, without
// allocating it.
func (g *Generator) Peek(ctx context.Context, prefix string, year int) (string, error) {
	owner, ok := OwnerOf(prefix)
	if !ok {
		return "", apperr.Validation("unknown sequence prefix %q", prefix)
	}
	n, err := g.store.Peek(ctx, owner, prefix, year)
	if err != nil {
		return "", fmt.Errorf("peek %s number: %w", prefix, err)
	}
	return Format(prefix, year, n), nil
}
