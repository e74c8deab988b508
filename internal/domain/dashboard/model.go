package dashboard

import (
	"time"

	"github.com/rhu/rhu/internal/platform/audit"
)

// Summary is the landing page of the admin panel.
type Summary struct {
	ActivePatients      int            `json:"active_patients"`
	Consultations       map[string]int `json:"consultations"`
	ScheduledToday      int            `json:"scheduled_today"`
	Certificates        map[string]int `json:"certificates"`
	Referrals           map[string]int `json:"referrals"`
	UnreadNotifications int            `json:"unread_notifications"`
	RecentLogs          []*audit.Entry `json:"recent_logs"`
	GeneratedAt         time.Time      `json:"generated_at"`
}
