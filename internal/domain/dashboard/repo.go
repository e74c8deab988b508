package dashboard

import (
	"context"
	"time"
)

// Table names the status-bearing tables the dashboard counts.
type Table string

const (
	TableConsultations Table = "consultations"
	TableCertificates  Table = "medical_certificates"
	TableReferrals     Table = "referrals"
)

type Repository interface {
	ActivePatients(ctx context.Context) (int, error)
	StatusCounts(ctx context.Context, t Table) (map[string]int, error)
	// ScheduledBetween counts open consultations scheduled in [from, to).
	ScheduledBetween(ctx context.Context, from, to time.Time) (int, error)
	UnreadNotifications(ctx context.Context) (int, error)
}
