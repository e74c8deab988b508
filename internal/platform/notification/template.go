package notification

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Template renders the title and message of one notification type.
type Template struct {
	Type     string
	Title    string
	Message  string
	Priority Priority
}

// TemplateEngine performs {{key}} substitution over registered templates.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.Type] = &t
	}
	return e
}

var builtIn = []Template{
	{"consultation_created", "Consultation Recorded", "Your consultation {{consultation_number}} was recorded at the RHU.", PriorityNormal},
	{"consultation_requested", "Consultation Request Received", "Your consultation request {{consultation_number}} is waiting for review.", PriorityNormal},
	{"consultation_scheduled", "Consultation Scheduled", "Your consultation {{consultation_number}} is scheduled on {{scheduled_at}} with {{doctor_name}}.", PriorityHigh},
	{"consultation_updated", "Consultation Updated", "Your consultation {{consultation_number}} was updated.", PriorityLow},
	{"consultation_completed", "Consultation Completed", "Your consultation {{consultation_number}} is complete. Diagnosis: {{diagnosis}}.", PriorityNormal},
	{"consultation_cancelled", "Consultation Cancelled", "Your consultation {{consultation_number}} was cancelled: {{reason}}.", PriorityNormal},
	{"prescription_created", "New Prescription", "Prescription {{prescription_number}} was issued for consultation {{consultation_number}}.", PriorityNormal},
	{"certificate_requested", "Certificate Request Received", "Your medical certificate request {{certificate_number}} for {{purpose}} was received.", PriorityNormal},
	{"certificate_checkup_scheduled", "Check-up Scheduled", "Your check-up for certificate {{certificate_number}} is on {{checkup_at}} with {{doctor_name}}.", PriorityHigh},
	{"certificate_checkup_completed", "Check-up Completed", "Your check-up for certificate {{certificate_number}} is complete.", PriorityNormal},
	{"certificate_ready", "Certificate Ready", "Medical certificate {{certificate_number}} is ready for download.", PriorityHigh},
	{"certificate_downloaded", "Certificate Downloaded", "Medical certificate {{certificate_number}} was downloaded.", PriorityLow},
	{"certificate_cancelled", "Certificate Request Cancelled", "Medical certificate request {{certificate_number}} was cancelled: {{reason}}.", PriorityNormal},
	{"certificate_expired", "Certificate Expired", "Medical certificate {{certificate_number}} expired on {{valid_until}}.", PriorityLow},
	{"referral_created", "Referral Created", "Referral {{referral_number}} to {{facility_name}} was created.", PriorityNormal},
	{"referral_updated", "Referral Updated", "Referral {{referral_number}} was updated.", PriorityLow},
	{"referral_sent", "Referral Sent", "Referral {{referral_number}} was sent to {{facility_name}}.", PriorityHigh},
	{"referral_completed", "Referral Completed", "Referral {{referral_number}} was completed.", PriorityNormal},
	{"referral_cancelled", "Referral Cancelled", "Referral {{referral_number}} was cancelled: {{reason}}.", PriorityNormal},
	{"account_created", "Account Created", "Your patient portal account {{username}} is ready.", PriorityNormal},
	{"account_activated", "Account Activated", "Your patient account was activated.", PriorityNormal},
	{"account_deactivated", "Account Deactivated", "Your patient account was deactivated. Please visit the RHU for details.", PriorityHigh},
	{"password_changed", "Password Changed", "Your password was reset by RHU staff.", PriorityHigh},
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.Type] = &t
}

// Lookup returns the template for a notification type.
func (e *TemplateEngine) Lookup(typ string) (Template, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.templates[typ]
	if !ok {
		return Template{}, false
	}
	return *t, true
}

// Types lists registered notification types in sorted order.
func (e *TemplateEngine) Types() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.templates))
	for k := range e.templates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Render looks up a template by type and performs {{key}} replacement using
// data. Keys present in the template but absent from data are left as-is.
func (e *TemplateEngine) Render(typ string, data map[string]string) (title, message string, err error) {
	t, ok := e.Lookup(typ)
	if !ok {
		return "", "", fmt.Errorf("notification template %q not found", typ)
	}

	title = t.Title
	message = t.Message
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		message = strings.ReplaceAll(message, placeholder, v)
	}
	return title, message, nil
}
