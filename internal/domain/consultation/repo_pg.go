package consultation

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhu/rhu/internal/platform/apperr"
	"github.com/rhu/rhu/internal/platform/db"
)

// ErrSlotTaken is the conflict returned when a doctor already has an open
// consultation at the requested time.
var ErrSlotTaken = apperr.Conflict("time slot already taken")

const slotConstraint = "consultations_doctor_slot_key"

// -- Consultation Repository --

type consultationRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &consultationRepoPG{pool: pool}
}

func (r *consultationRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const consultationCols = `c.id, c.consultation_number, c.patient_id, p.patient_number,
	p.first_name || ' ' || p.last_name, p.user_id, c.doctor_id,
	COALESCE(d.first_name || ' ' || d.last_name, ''), c.status, c.consultation_type,
	c.chief_complaint, c.history_of_present_illness,
	c.blood_pressure, c.temperature::float8, c.pulse_rate, c.respiratory_rate,
	c.weight::float8, c.height::float8, c.oxygen_saturation,
	c.physical_examination, c.diagnosis, c.treatment_plan, c.notes, c.priority,
	c.preferred_date, c.scheduled_at, c.completed_at, c.cancelled_at, c.cancel_reason,
	c.created_by, c.created_at, c.updated_at`

const consultationFrom = ` FROM consultations c
	JOIN patients p ON p.id = c.patient_id
	LEFT JOIN staff d ON d.id = c.doctor_id`

func (r *consultationRepoPG) Create(ctx context.Context, c *Consultation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consultations (
			consultation_number, patient_id, doctor_id, status, consultation_type, chief_complaint,
			history_of_present_illness, blood_pressure, temperature, pulse_rate, respiratory_rate,
			weight, height, oxygen_saturation, physical_examination, diagnosis, treatment_plan, notes,
			priority, preferred_date, scheduled_at, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING id, created_at, updated_at`,
		c.ConsultationNumber, c.PatientID, c.DoctorID, c.Status, c.ConsultationType, c.ChiefComplaint,
		c.HistoryOfPresentIllness, c.BloodPressure, c.Temperature, c.PulseRate, c.RespiratoryRate,
		c.Weight, c.Height, c.OxygenSaturation, c.PhysicalExamination, c.Diagnosis, c.TreatmentPlan, c.Notes,
		c.Priority, c.PreferredDate, c.ScheduledAt, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	switch {
	case db.IsUniqueViolation(err, "consultations_consultation_number_key"):
		return apperr.Conflict("consultation number %s already exists", c.ConsultationNumber)
	case db.IsUniqueViolation(err, slotConstraint):
		return ErrSlotTaken
	}
	return err
}

func (r *consultationRepoPG) GetByID(ctx context.Context, id int64) (*Consultation, error) {
	return r.get(ctx, `SELECT `+consultationCols+consultationFrom+` WHERE c.id = $1`, id)
}

func (r *consultationRepoPG) GetForUpdate(ctx context.Context, id int64) (*Consultation, error) {
	return r.get(ctx, `SELECT `+consultationCols+consultationFrom+` WHERE c.id = $1 FOR UPDATE OF c`, id)
}

func (r *consultationRepoPG) get(ctx context.Context, query string, id int64) (*Consultation, error) {
	c, err := scanConsultation(r.conn(ctx).QueryRow(ctx, query, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("consultation %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get consultation %d: %w", id, err)
	}
	return c, nil
}

func (r *consultationRepoPG) Update(ctx context.Context, c *Consultation) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE consultations SET
			doctor_id=$2, status=$3, history_of_present_illness=$4, blood_pressure=$5, temperature=$6,
			pulse_rate=$7, respiratory_rate=$8, weight=$9, height=$10, oxygen_saturation=$11,
			physical_examination=$12, diagnosis=$13, treatment_plan=$14, notes=$15, priority=$16,
			scheduled_at=$17, completed_at=$18, cancelled_at=$19, cancel_reason=$20, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.DoctorID, c.Status, c.HistoryOfPresentIllness, c.BloodPressure, c.Temperature,
		c.PulseRate, c.RespiratoryRate, c.Weight, c.Height, c.OxygenSaturation,
		c.PhysicalExamination, c.Diagnosis, c.TreatmentPlan, c.Notes, c.Priority,
		c.ScheduledAt, c.CompletedAt, c.CancelledAt, c.CancelReason,
	).Scan(&c.UpdatedAt)
	if db.IsUniqueViolation(err, slotConstraint) {
		return ErrSlotTaken
	}
	if db.IsNoRows(err) {
		return apperr.NotFound("consultation %d not found", c.ID)
	}
	return err
}

func (r *consultationRepoPG) SlotTaken(ctx context.Context, doctorID int64, at time.Time, excludeID int64) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM consultations
			WHERE doctor_id = $1 AND scheduled_at = $2 AND id <> $3
				AND status IN ('pending', 'in_progress')
		)`, doctorID, at, excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check doctor slot: %w", err)
	}
	return taken, nil
}

func (r *consultationRepoPG) Search(ctx context.Context, p SearchParams) ([]*Consultation, int, error) {
	where := " WHERE 1=1"
	var args []interface{}
	idx := 1

	if p.Status != "" {
		where += fmt.Sprintf(" AND c.status = $%d", idx)
		args = append(args, p.Status)
		idx++
	}
	if p.PatientID > 0 {
		where += fmt.Sprintf(" AND c.patient_id = $%d", idx)
		args = append(args, p.PatientID)
		idx++
	}
	if p.DoctorID > 0 {
		where += fmt.Sprintf(" AND c.doctor_id = $%d", idx)
		args = append(args, p.DoctorID)
		idx++
	}
	if p.From != nil {
		where += fmt.Sprintf(" AND c.created_at >= $%d", idx)
		args = append(args, *p.From)
		idx++
	}
	if p.To != nil {
		where += fmt.Sprintf(" AND c.created_at < $%d", idx)
		args = append(args, *p.To)
		idx++
	}
	if p.Query != "" {
		where += fmt.Sprintf(` AND (c.consultation_number ILIKE $%d OR c.chief_complaint ILIKE $%d
			OR c.diagnosis ILIKE $%d OR (p.first_name || ' ' || p.last_name) ILIKE $%d)`, idx, idx, idx, idx)
		args = append(args, "%"+p.Query+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*)"+consultationFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count consultations: %w", err)
	}

	query := "SELECT " + consultationCols + consultationFrom + where +
		fmt.Sprintf(" ORDER BY c.created_at DESC, c.id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, p.Limit, p.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search consultations: %w", err)
	}
	defer rows.Close()

	var out []*Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	err := row.Scan(
		&c.ID, &c.ConsultationNumber, &c.PatientID, &c.PatientNumber,
		&c.PatientName, &c.PatientUserID, &c.DoctorID,
		&c.DoctorName, &c.Status, &c.ConsultationType,
		&c.ChiefComplaint, &c.HistoryOfPresentIllness,
		&c.BloodPressure, &c.Temperature, &c.PulseRate, &c.RespiratoryRate,
		&c.Weight, &c.Height, &c.OxygenSaturation,
		&c.PhysicalExamination, &c.Diagnosis, &c.TreatmentPlan, &c.Notes, &c.Priority,
		&c.PreferredDate, &c.ScheduledAt, &c.CompletedAt, &c.CancelledAt, &c.CancelReason,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// -- Prescription Repository --

type prescriptionRepoPG struct {
	pool *pgxpool.Pool
}

func NewPrescriptionRepo(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const prescriptionCols = `rx.id, rx.prescription_number, rx.consultation_id, c.consultation_number,
	rx.patient_id, rx.prescribed_by, COALESCE(s.first_name || ' ' || s.last_name, ''),
	rx.instructions, rx.created_at`

const prescriptionFrom = ` FROM prescriptions rx
	JOIN consultations c ON c.id = rx.consultation_id
	LEFT JOIN staff s ON s.id = rx.prescribed_by`

// Create must run inside a transaction so the header and items commit
// together.
func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (prescription_number, consultation_id, patient_id, prescribed_by, instructions)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		p.PrescriptionNumber, p.ConsultationID, p.PatientID, p.PrescribedBy, p.Instructions,
	).Scan(&p.ID, &p.CreatedAt)
	if db.IsUniqueViolation(err, "prescriptions_prescription_number_key") {
		return apperr.Conflict("prescription number %s already exists", p.PrescriptionNumber)
	}
	if err != nil {
		return err
	}

	for i := range p.Items {
		it := &p.Items[i]
		it.PrescriptionID = p.ID
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO prescription_items (prescription_id, medicine_id, medicine_name, dosage, frequency, duration, quantity, instructions)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			it.PrescriptionID, it.MedicineID, it.MedicineName, it.Dosage, it.Frequency, it.Duration, it.Quantity, it.Instructions,
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert prescription item %d: %w", i+1, err)
		}
	}
	return nil
}

func (r *prescriptionRepoPG) ListByConsultation(ctx context.Context, consultationID int64) ([]*Prescription, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+prescriptionCols+prescriptionFrom+` WHERE rx.consultation_id = $1 ORDER BY rx.created_at, rx.id`,
		consultationID)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	var out []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range out {
		if p.Items, err = r.items(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *prescriptionRepoPG) GetByNumber(ctx context.Context, number string) (*Prescription, error) {
	p, err := scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionCols+prescriptionFrom+` WHERE rx.prescription_number = $1`, number))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("prescription %s not found", number)
	}
	if err != nil {
		return nil, fmt.Errorf("get prescription %s: %w", number, err)
	}
	if p.Items, err = r.items(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *prescriptionRepoPG) items(ctx context.Context, prescriptionID int64) ([]PrescriptionItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, prescription_id, medicine_id, medicine_name, dosage, frequency, duration, quantity, instructions
		FROM prescription_items WHERE prescription_id = $1 ORDER BY id`, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("list prescription items: %w", err)
	}
	defer rows.Close()

	items := []PrescriptionItem{}
	for rows.Next() {
		var it PrescriptionItem
		if err := rows.Scan(&it.ID, &it.PrescriptionID, &it.MedicineID, &it.MedicineName, &it.Dosage,
			&it.Frequency, &it.Duration, &it.Quantity, &it.Instructions); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PrescriptionNumber, &p.ConsultationID, &p.ConsultationNumber,
		&p.PatientID, &p.PrescribedBy, &p.PrescriberName, &p.Instructions, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// -- Medicine Repository --

type medicineRepoPG struct {
	pool *pgxpool.Pool
}

func NewMedicineRepo(pool *pgxpool.Pool) MedicineRepository {
	return &medicineRepoPG{pool: pool}
}

const medicineCols = `id, name, generic_name, dosage_form, strength, stock_quantity, is_active`

func (r *medicineRepoPG) GetByID(ctx context.Context, id int64) (*Medicine, error) {
	var m Medicine
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+medicineCols+` FROM medicines WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.GenericName, &m.DosageForm, &m.Strength, &m.StockQuantity, &m.IsActive)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("medicine %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get medicine %d: %w", id, err)
	}
	return &m, nil
}

func (r *medicineRepoPG) Search(ctx context.Context, query string, limit int) ([]*Medicine, error) {
	sql := `SELECT ` + medicineCols + ` FROM medicines WHERE is_active`
	var args []interface{}
	idx := 1
	if query != "" {
		sql += fmt.Sprintf(" AND (name ILIKE $%d OR generic_name ILIKE $%d)", idx, idx)
		args = append(args, "%"+query+"%")
		idx++
	}
	sql += fmt.Sprintf(" ORDER BY name LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search medicines: %w", err)
	}
	defer rows.Close()

	var out []*Medicine
	for rows.Next() {
		var m Medicine
		if err := rows.Scan(&m.ID, &m.Name, &m.GenericName, &m.DosageForm, &m.Strength, &m.StockQuantity, &m.IsActive); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
