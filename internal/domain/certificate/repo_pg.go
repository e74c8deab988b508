package certificate

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/db"
)

type certificateRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &certificateRepoPG{pool: pool}
}

func (r *certificateRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const certCols = `mc.id, mc.certificate_number, mc.patient_id, p.patient_number,
	p.first_name || ' ' || p.last_name, p.user_id, mc.purpose, mc.status, mc.doctor_id,
	COALESCE(d.first_name || ' ' || d.last_name, ''), mc.checkup_at,
	mc.blood_pressure, mc.temperature::float8, mc.pulse_rate, mc.weight::float8, mc.height::float8,
	mc.examination_findings, mc.diagnosis, mc.fitness_status, mc.restrictions, mc.recommendations,
	mc.valid_from, mc.valid_until, mc.issued_at, mc.downloaded_at, mc.cancelled_at, mc.cancel_reason,
	mc.created_by, mc.created_at, mc.updated_at`

const certFrom = ` FROM medical_certificates mc
	JOIN patients p ON p.id = mc.patient_id
	LEFT JOIN staff d ON d.id = mc.doctor_id`

func (r *certificateRepoPG) Create(ctx context.Context, c *Certificate) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_certificates (certificate_number, patient_id, purpose, status, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		c.CertificateNumber, c.PatientID, c.Purpose, c.Status, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if db.IsUniqueViolation(err, "medical_certificates_certificate_number_key") {
		return apperr.Conflict("certificate number %s already exists", c.CertificateNumber)
	}
	return err
}

func (r *certificateRepoPG) GetByID(ctx context.Context, id int64) (*Certificate, error) {
	return r.get(ctx, `SELECT `+certCols+certFrom+` WHERE mc.id = $1`, id)
}

func (r *certificateRepoPG) GetForUpdate(ctx context.Context, id int64) (*Certificate, error) {
	return r.get(ctx, `SELECT `+certCols+certFrom+` WHERE mc.id = $1 FOR UPDATE OF mc`, id)
}

func (r *certificateRepoPG) get(ctx context.Context, query string, id int64) (*Certificate, error) {
	c, err := scanCertificate(r.conn(ctx).QueryRow(ctx, query, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("certificate %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get certificate %d: %w", id, err)
	}
	return c, nil
}

func (r *certificateRepoPG) Update(ctx context.Context, c *Certificate) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medical_certificates SET
			status=$2, doctor_id=$3, checkup_at=$4, blood_pressure=$5, temperature=$6, pulse_rate=$7,
			weight=$8, height=$9, examination_findings=$10, diagnosis=$11, fitness_status=$12,
			restrictions=$13, recommendations=$14, valid_from=$15, valid_until=$16, issued_at=$17,
			downloaded_at=$18, cancelled_at=$19, cancel_reason=$20, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Status, c.DoctorID, c.CheckupAt, c.BloodPressure, c.Temperature, c.PulseRate,
		c.Weight, c.Height, c.ExaminationFindings, c.Diagnosis, c.FitnessStatus,
		c.Restrictions, c.Recommendations, c.ValidFrom, c.ValidUntil, c.IssuedAt,
		c.DownloadedAt, c.CancelledAt, c.CancelReason,
	).Scan(&c.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("certificate %d not found", c.ID)
	}
	if db.IsCheckViolation(err, "medical_certificates_validity_check") {
		return apperr.Validation("valid until must be after valid from")
	}
	return err
}

func (r *certificateRepoPG) Search(ctx context.Context, p SearchParams) ([]*Certificate, int, error) {
	where := " WHERE 1=1"
	var args []interface{}
	idx := 1

	if p.Status != "" {
		where += fmt.Sprintf(" AND mc.status = $%d", idx)
		args = append(args, p.Status)
		idx++
	}
	if p.PatientID > 0 {
		where += fmt.Sprintf(" AND mc.patient_id = $%d", idx)
		args = append(args, p.PatientID)
		idx++
	}
	if p.Query != "" {
		where += fmt.Sprintf(` AND (mc.certificate_number ILIKE $%d OR mc.purpose ILIKE $%d
			OR (p.first_name || ' ' || p.last_name) ILIKE $%d)`, idx, idx, idx)
		args = append(args, "%"+p.Query+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*)"+certFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count certificates: %w", err)
	}

	query := "SELECT " + certCols + certFrom + where +
		fmt.Sprintf(" ORDER BY mc.created_at DESC, mc.id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, p.Limit, p.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search certificates: %w", err)
	}
	defer rows.Close()

	var out []*Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *certificateRepoPG) ListOverdue(ctx context.Context, today time.Time, limit int) ([]int64, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id FROM medical_certificates
		WHERE status IN ('ready_for_download', 'downloaded') AND valid_until < $1
		ORDER BY valid_until, id
		LIMIT $2`, today, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue certificates: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanCertificate(row pgx.Row) (*Certificate, error) {
	var c Certificate
	err := row.Scan(
		&c.ID, &c.CertificateNumber, &c.PatientID, &c.PatientNumber,
		&c.PatientName, &c.PatientUserID, &c.Purpose, &c.Status, &c.DoctorID,
		&c.DoctorName, &c.CheckupAt,
		&c.BloodPressure, &c.Temperature, &c.PulseRate, &c.Weight, &c.Height,
		&c.ExaminationFindings, &c.Diagnosis, &c.FitnessStatus, &c.Restrictions, &c.Recommendations,
		&c.ValidFrom, &c.ValidUntil, &c.IssuedAt, &c.DownloadedAt, &c.CancelledAt, &c.CancelReason,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
