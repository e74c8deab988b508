package sequence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rhu/rhu/internal/platform/apperr"
)

type countingObserver struct {
	counts map[string]int
}

func (o *countingObserver) SequenceAllocated(prefix string) {
	o.counts[prefix]++
}

func newTestGenerator() (*Generator, *MemoryStore, *countingObserver) {
	store := NewMemoryStore()
	obs := &countingObserver{counts: map[string]int{}}
	g := NewGenerator(store, time.UTC, obs)
	g.now = func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }
	return g, store, obs
}

func TestFormat(t *testing.T) {
	tests := []struct {
		prefix string
		year   int
		n      int
		want   string
	}{
		{"CONS", 2025, 1, "CONS-2025-0001"},
		{"RX", 2025, 42, "RX-2025-0042"},
		{"P", 2024, 9999, "P-2024-9999"},
		{"REF", 2025, 12345, "REF-2025-12345"},
	}
	for _, tt := range tests {
		if got := Format(tt.prefix, tt.year, tt.n); got != tt.want {
			t.Errorf("Format(%s, %d, %d) = %s, want %s", tt.prefix, tt.year, tt.n, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	prefix, year, n, err := Parse("MC-2025-0107")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prefix != "MC" || year != 2025 || n != 107 {
		t.Errorf("got %s %d %d", prefix, year, n)
	}

	if _, _, n, err := Parse("REF-2025-12345"); err != nil || n != 12345 {
		t.Errorf("wide counter: n=%d err=%v", n, err)
	}

	for _, bad := range []string{"", "CONS", "CONS-25-0001", "CONS-2025-1", "CONS-2025-abcd", "-2025-0001", "CONS-2025-0000"} {
		if _, _, _, err := Parse(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestRegisteredPrefixes(t *testing.T) {
	want := map[string]Owner{
		"P":    {"patients", "patient_number"},
		"CONS": {"consultations", "consultation_number"},
		"RX":   {"prescriptions", "prescription_number"},
		"REF":  {"referrals", "referral_number"},
		"MC":   {"medical_certificates", "certificate_number"},
	}
	for prefix, owner := range want {
		got, ok := OwnerOf(prefix)
		if !ok || got != owner {
			t.Errorf("OwnerOf(%s) = %+v, %v", prefix, got, ok)
		}
	}
	if len(Prefixes()) != len(want) {
		t.Errorf("expected %d prefixes, got %v", len(want), Prefixes())
	}
}

func TestGenerator_ConsecutiveFromExistingCount(t *testing.T) {
	g, store, obs := newTestGenerator()
	store.Seed(PrefixConsultation, 2025, 3)

	for i, want := range []string{"CONS-2025-0004", "CONS-2025-0005", "CONS-2025-0006"} {
		got, err := g.NextThisYear(context.Background(), PrefixConsultation)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got != want {
			t.Errorf("call %d: got %s, want %s", i, got, want)
		}
	}
	if obs.counts[PrefixConsultation] != 3 {
		t.Errorf("expected 3 observed allocations, got %d", obs.counts[PrefixConsultation])
	}
}

func TestGenerator_YearResetsCounter(t *testing.T) {
	g, _, _ := newTestGenerator()
	ctx := context.Background()
	if _, err := g.Next(ctx, PrefixReferral, 2024); err != nil {
		t.Fatal(err)
	}
	got, err := g.Next(ctx, PrefixReferral, 2025)
	if err != nil {
		t.Fatal(err)
	}
	if got != "REF-2025-0001" {
		t.Errorf("got %s", got)
	}
}

func TestGenerator_PrefixesAreIndependent(t *testing.T) {
	g, _, _ := newTestGenerator()
	ctx := context.Background()
	g.NextThisYear(ctx, PrefixConsultation)
	g.NextThisYear(ctx, PrefixConsultation)
	rx, _ := g.NextThisYear(ctx, PrefixPrescription)
	if rx != "RX-2025-0001" {
		t.Errorf("got %s", rx)
	}
}

func TestGenerator_UnknownPrefix(t *testing.T) {
	g, _, obs := newTestGenerator()
	_, err := g.NextThisYear(context.Background(), "INV")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if len(obs.counts) != 0 {
		t.Error("unknown prefix must not be counted")
	}
}

func TestGenerator_YearInClinicZone(t *testing.T) {
	manila := time.FixedZone("PHT", 8*3600)
	g := NewGenerator(NewMemoryStore(), manila, nil)
	// 16:30 UTC on New Year's Eve is already January 1st in Manila.
	g.now = func() time.Time { return time.Date(2024, 12, 31, 16, 30, 0, 0, time.UTC) }
	if g.Year() != 2025 {
		t.Errorf("expected 2025, got %d", g.Year())
	}
}

func TestGenerator_NextAtIgnoresOwnClock(t *testing.T) {
	manila := time.FixedZone("PHT", 8*3600)
	g := NewGenerator(NewMemoryStore(), manila, nil)
	g.now = func() time.Time { return time.Date(2031, 7, 1, 0, 0, 0, 0, time.UTC) }

	got, err := g.NextAt(context.Background(), PrefixPatient, time.Date(2024, 12, 31, 16, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if got != "P-2025-0001" {
		t.Errorf("expected the caller's clinic-local year, got %s", got)
	}
}

func TestGenerator_PeekDoesNotAllocate(t *testing.T) {
	g, store, _ := newTestGenerator()
	store.Seed(PrefixPatient, 2025, 10)
	ctx := context.Background()

	peek, err := g.Peek(ctx, PrefixPatient, 2025)
	if err != nil {
		t.Fatal(err)
	}
	if peek != "P-2025-0011" {
		t.Errorf("got %s", peek)
	}
	next, _ := g.Next(ctx, PrefixPatient, 2025)
	if next != peek {
		t.Errorf("Next %s differs from Peek %s", next, peek)
	}
}

func TestMemoryStore_SnapshotRestore(t *testing.T) {
	g, store, _ := newTestGenerator()
	ctx := context.Background()
	g.NextThisYear(ctx, PrefixCertificate)

	restore := store.Snapshot()
	g.NextThisYear(ctx, PrefixCertificate)
	restore()

	got, _ := g.NextThisYear(ctx, PrefixCertificate)
	if got != "MC-2025-0002" {
		t.Errorf("rolled back allocation should be reissued, got %s", got)
	}
}

func TestHandler_Peek(t *testing.T) {
	g, _, _ := newTestGenerator()
	h := NewHandler(g)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("prefix")
	c.SetParamValues("cons")

	if err := h.Peek(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["next"] != "CONS-2025-0001" || body["success"] != true {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHandler_PeekBadYear(t *testing.T) {
	g, _, _ := newTestGenerator()
	h := NewHandler(g)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/?year=twenty", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("prefix")
	c.SetParamValues("RX")

	if err := h.Peek(c); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
