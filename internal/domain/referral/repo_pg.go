package referral

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/db"
)

type referralRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &referralRepoPG{pool: pool}
}

func (r *referralRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const referralCols = `rf.id, rf.referral_number, rf.patient_id, p.patient_number,
	p.first_name || ' ' || p.last_name, p.user_id, rf.consultation_id, COALESCE(c.consultation_number, ''),
	rf.referred_by, COALESCE(s.first_name || ' ' || s.last_name, ''), rf.facility_name, rf.facility_address,
	rf.department, rf.reason, rf.clinical_summary, rf.diagnosis, rf.urgency, rf.status, rf.notes,
	rf.sent_at, rf.completed_at, rf.cancelled_at, rf.cancel_reason, rf.created_at, rf.updated_at`

const referralFrom = ` FROM referrals rf
	JOIN patients p ON p.id = rf.patient_id
	LEFT JOIN consultations c ON c.id = rf.consultation_id
	LEFT JOIN staff s ON s.id = rf.referred_by`

func (r *referralRepoPG) Create(ctx context.Context, ref *Referral) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO referrals (
			referral_number, patient_id, consultation_id, referred_by, facility_name, facility_address,
			department, reason, clinical_summary, diagnosis, urgency, status, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, created_at, updated_at`,
		ref.ReferralNumber, ref.PatientID, ref.ConsultationID, ref.ReferredBy, ref.FacilityName, ref.FacilityAddress,
		ref.Department, ref.Reason, ref.ClinicalSummary, ref.Diagnosis, ref.Urgency, ref.Status, ref.Notes,
	).Scan(&ref.ID, &ref.CreatedAt, &ref.UpdatedAt)
	if db.IsUniqueViolation(err, "referrals_referral_number_key") {
		return apperr.Conflict("referral number %s already exists", ref.ReferralNumber)
	}
	return err
}

func (r *referralRepoPG) GetByID(ctx context.Context, id int64) (*Referral, error) {
	return r.get(ctx, `SELECT `+referralCols+referralFrom+` WHERE rf.id = $1`, id)
}

func (r *referralRepoPG) GetForUpdate(ctx context.Context, id int64) (*Referral, error) {
	return r.get(ctx, `SELECT `+referralCols+referralFrom+` WHERE rf.id = $1 FOR UPDATE OF rf`, id)
}

func (r *referralRepoPG) get(ctx context.Context, query string, id int64) (*Referral, error) {
	ref, err := scanReferral(r.conn(ctx).QueryRow(ctx, query, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("referral %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get referral %d: %w", id, err)
	}
	return ref, nil
}

func (r *referralRepoPG) Update(ctx context.Context, ref *Referral) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE referrals SET
			facility_name=$2, facility_address=$3, department=$4, reason=$5, clinical_summary=$6,
			diagnosis=$7, urgency=$8, status=$9, notes=$10, sent_at=$11, completed_at=$12,
			cancelled_at=$13, cancel_reason=$14, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		ref.ID, ref.FacilityName, ref.FacilityAddress, ref.Department, ref.Reason, ref.ClinicalSummary,
		ref.Diagnosis, ref.Urgency, ref.Status, ref.Notes, ref.SentAt, ref.CompletedAt,
		ref.CancelledAt, ref.CancelReason,
	).Scan(&ref.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("referral %d not found", ref.ID)
	}
	return err
}

func (r *referralRepoPG) Search(ctx context.Context, p SearchParams) ([]*Referral, int, error) {
	where := " WHERE 1=1"
	var args []interface{}
	idx := 1

	if p.Status != "" {
		where += fmt.Sprintf(" AND rf.status = $%d", idx)
		args = append(args, p.Status)
		idx++
	}
	if p.PatientID > 0 {
		where += fmt.Sprintf(" AND rf.patient_id = $%d", idx)
		args = append(args, p.PatientID)
		idx++
	}
	if p.Urgency != "" {
		where += fmt.Sprintf(" AND rf.urgency = $%d", idx)
		args = append(args, p.Urgency)
		idx++
	}
	if p.Query != "" {
		where += fmt.Sprintf(` AND (rf.referral_number ILIKE $%d OR rf.facility_name ILIKE $%d
			OR rf.reason ILIKE $%d OR (p.first_name || ' ' || p.last_name) ILIKE $%d)`, idx, idx, idx, idx)
		args = append(args, "%"+p.Query+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*)"+referralFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count referrals: %w", err)
	}

	query := "SELECT " + referralCols + referralFrom + where +
		fmt.Sprintf(" ORDER BY rf.created_at DESC, rf.id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, p.Limit, p.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search referrals: %w", err)
	}
	defer rows.Close()

	var out []*Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ref)
	}
	return out, total, rows.Err()
}

func scanReferral(row pgx.Row) (*Referral, error) {
	var r Referral
	err := row.Scan(
		&r.ID, &r.ReferralNumber, &r.PatientID, &r.PatientNumber,
		&r.PatientName, &r.PatientUserID, &r.ConsultationID, &r.ConsultationNumber,
		&r.ReferredBy, &r.ReferredByName, &r.FacilityName, &r.FacilityAddress,
		&r.Department, &r.Reason, &r.ClinicalSummary, &r.Diagnosis, &r.Urgency, &r.Status, &r.Notes,
		&r.SentAt, &r.CompletedAt, &r.CancelledAt, &r.CancelReason, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
