package identity

import (
	"testing"
	"time"
)

func TestPatient_FullName(t *testing.T) {
	p := &Patient{FirstName: "Juan", LastName: "Dela Cruz"}
	if p.FullName() != "Juan Dela Cruz" {
		t.Errorf("got %q", p.FullName())
	}
	p.MiddleName = str("Santos")
	if p.FullName() != "Juan Santos Dela Cruz" {
		t.Errorf("got %q", p.FullName())
	}
}

func TestPatient_Age(t *testing.T) {
	p := &Patient{BirthDate: time.Date(2000, 3, 1, 0, 0, 0, 0, time.UTC)}
	if got := p.Age(time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)); got != 24 {
		t.Errorf("day before birthday: got %d", got)
	}
	if got := p.Age(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)); got != 25 {
		t.Errorf("on birthday: got %d", got)
	}
}

func TestPatient_AccountUserID(t *testing.T) {
	p := &Patient{}
	if p.HasAccount() || p.AccountUserID() != 0 {
		t.Error("no account expected")
	}
	p.UserID = i64(12)
	if !p.HasAccount() || p.AccountUserID() != 12 {
		t.Error("account 12 expected")
	}
}
