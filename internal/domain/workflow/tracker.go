package workflow

import (
	"context"
	"fmt"

	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/audit"
	"github.com/rhu/rhu/internal/platform/db"
	"github.com/rhu/rhu/internal/platform/notification"
)

// Subject is the locked current view of a record taking a transition.
// PatientUserID is zero when the patient has no account. Data feeds the
// notification template and may be extended by Apply.
type Subject struct {
	ID            int64
	Number        string
	State         State
	PatientUserID int64
	Data          map[string]string
}

// Changes is the snapshot of values a transition wrote.
type Changes map[string]interface{}

// Request is one transition attempt. Load must lock the row for the rest of
// the transaction and return an apperr not_found error when it is missing.
// Apply writes the new state and fields and returns what changed.
type Request struct {
	Machine  *Machine
	RecordID int64
	Action   Action
	ActorID  int64
	Load     func(ctx context.Context, id int64) (*Subject, error)
	Apply    func(ctx context.Context, s *Subject, t Transition) (Changes, error)
}

type Result struct {
	Transition   Transition                 `json:"-"`
	From         State                      `json:"from"`
	To           State                      `json:"to"`
	Changes      Changes                    `json:"changes,omitempty"`
	Notification *notification.Notification `json:"notification,omitempty"`
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

type Notifier interface {
	Notify(ctx context.Context, m notification.Message) (*notification.Notification, error)
}

type Observer interface {
	ObserveTransition(entity, action, outcome string)
}

type Tracker struct {
	tx       db.TxRunner
	audit    Auditor
	notifier Notifier
	observer Observer
}

func NewTracker(tx db.TxRunner, auditor Auditor, notifier Notifier, observer Observer) *Tracker {
	return &Tracker{tx: tx, audit: auditor, notifier: notifier, observer: observer}
}

const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Run applies req in a single transaction: load and lock, check the
// machine, apply, audit, notify. Any failure rolls all of it back.
func (t *Tracker) Run(ctx context.Context, req Request) (*Result, error) {
	res, err := t.run(ctx, req)
	t.observe(req, err)
	return res, err
}

func (t *Tracker) run(ctx context.Context, req Request) (*Result, error) {
	if _, ok := req.Machine.Lookup(req.Action); !ok {
		return nil, apperr.Validation("unknown %s action %q", req.Machine.Entity, req.Action)
	}

	var res *Result
	err := t.tx.InTx(ctx, func(ctx context.Context) error {
		subject, err := req.Load(ctx, req.RecordID)
		if err != nil {
			return err
		}
		tr, err := req.Machine.Next(subject.State, req.Action)
		if err != nil {
			return err
		}
		if subject.Data == nil {
			subject.Data = map[string]string{}
		}

		changes, err := req.Apply(ctx, subject, tr)
		if err != nil {
			return err
		}

		err = t.audit.Record(ctx, audit.Entry{
			UserID:     req.ActorID,
			ActionCode: tr.AuditCode,
			Module:     req.Machine.Module,
			RecordID:   subject.ID,
			Details: map[string]interface{}{
				"number":  subject.Number,
				"action":  string(tr.Action),
				"from":    string(subject.State),
				"to":      string(tr.To),
				"changes": changes,
			},
		})
		if err != nil {
			return fmt.Errorf("record %s audit: %w", tr.AuditCode, err)
		}

		res = &Result{Transition: tr, From: subject.State, To: tr.To, Changes: changes}
		if subject.PatientUserID > 0 && tr.NotificationType != "" {
			n, err := t.notifier.Notify(ctx, notification.Message{
				UserID:   subject.PatientUserID,
				Type:     tr.NotificationType,
				Priority: tr.Priority,
				Data:     subject.Data,
			})
			if err != nil {
				return err
			}
			res.Notification = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (t *Tracker) observe(req Request, err error) {
	if t.observer == nil {
		return
	}
	outcome := OutcomeApplied
	if err != nil {
		outcome = OutcomeFailed
		if apperr.KindOf(err) != apperr.KindInternal {
			outcome = OutcomeRejected
		}
	}
	t.observer.ObserveTransition(req.Machine.Entity, string(req.Action), outcome)
}
