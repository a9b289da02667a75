package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/seatdesk-api/internal/models"
)

const studentColumns = `id, registration_number, full_name, father_name, contact_number, address,
        seat_number, time_slots, locker_number, amount_paid, amount_due, admission_amount,
        fees_paid_till_date, admission_date, payment_expected_date, payment_expected_date_changed,
        active, owner_id, created_at, updated_at`

// StudentRepository manages persistence for student records. Methods that
// participate in allocation checks accept an sqlx.ExtContext so they can run
// inside the caller's transaction; passing nil falls back to the pool.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// WithTx runs fn inside a transaction. The transaction is rolled back if fn
// returns an error or panics.
func (r *StudentRepository) WithTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LockAllocationGroup serialises writers targeting the same seat or locker
// group for the duration of the transaction. Row locks alone cannot stop two
// inserts against a previously empty group, so an advisory lock keyed on the
// group is taken before the conflict reads.
func (r *StudentRepository) LockAllocationGroup(ctx context.Context, exec sqlx.ExtContext, kind string, number int) error {
	if number == 0 {
		return nil
	}
	if _, err := r.exec(exec).ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1), $2)", kind, number); err != nil {
		return fmt.Errorf("lock %s group %d: %w", kind, number, err)
	}
	return nil
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students"
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.SeatNumber != nil {
		conditions = append(conditions, fmt.Sprintf("seat_number = $%d", len(args)+1))
		args = append(args, *filter.SeatNumber)
	}
	if filter.Slot != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(time_slots)", len(args)+1))
		args = append(args, filter.Slot)
	}
	if filter.DueBefore != nil {
		conditions = append(conditions, fmt.Sprintf("payment_expected_date < $%d", len(args)+1))
		args = append(args, *filter.DueBefore)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR registration_number LIKE $%d OR contact_number LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"full_name":             "full_name",
		"registration_number":   "registration_number",
		"seat_number":           "seat_number",
		"admission_date":        "admission_date",
		"payment_expected_date": "payment_expected_date",
		"created_at":            "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", studentColumns, base, column, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListBySeat returns active students occupying the given seat, optionally
// excluding a record by ID so updates do not collide with themselves.
func (r *StudentRepository) ListBySeat(ctx context.Context, exec sqlx.ExtContext, seatNumber int, excludeID string) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE seat_number = $1 AND active = true", studentColumns)
	args := []interface{}{seatNumber}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var students []models.Student
	if err := sqlx.SelectContext(ctx, r.exec(exec), &students, query, args...); err != nil {
		return nil, fmt.Errorf("list by seat: %w", err)
	}
	return students, nil
}

// FindByLocker returns the active student holding the given locker, or
// sql.ErrNoRows when it is free.
func (r *StudentRepository) FindByLocker(ctx context.Context, exec sqlx.ExtContext, lockerNumber int, excludeID string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE locker_number = $1 AND active = true", studentColumns)
	args := []interface{}{lockerNumber}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var student models.Student
	if err := sqlx.GetContext(ctx, r.exec(exec), &student, query+" LIMIT 1", args...); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByRegistrationNumber checks whether an active record already holds
// the registration number, optionally excluding an ID.
func (r *StudentRepository) ExistsByRegistrationNumber(ctx context.Context, exec sqlx.ExtContext, value, excludeID string) (bool, error) {
	return r.existsByField(ctx, exec, "registration_number", value, excludeID)
}

// ExistsByContactNumber checks whether an active record already holds the
// contact number, optionally excluding an ID.
func (r *StudentRepository) ExistsByContactNumber(ctx context.Context, exec sqlx.ExtContext, value, excludeID string) (bool, error) {
	return r.existsByField(ctx, exec, "contact_number", value, excludeID)
}

func (r *StudentRepository) existsByField(ctx context.Context, exec sqlx.ExtContext, field, value, excludeID string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM students WHERE %s = $1 AND active = true", field)
	args := []interface{}{value}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check %s: %w", field, err)
	}
	return true, nil
}

// ListRegistrationNumbers returns every active registration number. The
// gap-fill allocator recomputes from this set on each call so deleted
// numbers become available again.
func (r *StudentRepository) ListRegistrationNumbers(ctx context.Context) ([]string, error) {
	const query = `SELECT registration_number FROM students WHERE active = true`
	var numbers []string
	if err := r.db.SelectContext(ctx, &numbers, query); err != nil {
		return nil, fmt.Errorf("list registration numbers: %w", err)
	}
	return numbers, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, registration_number, full_name, father_name, contact_number, address,
        seat_number, time_slots, locker_number, amount_paid, amount_due, admission_amount,
        fees_paid_till_date, admission_date, payment_expected_date, payment_expected_date_changed,
        active, owner_id, created_at, updated_at)
        VALUES (:id, :registration_number, :full_name, :father_name, :contact_number, :address,
        :seat_number, :time_slots, :locker_number, :amount_paid, :amount_due, :admission_amount,
        :fees_paid_till_date, :admission_date, :payment_expected_date, :payment_expected_date_changed,
        :active, :owner_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET registration_number = :registration_number, full_name = :full_name,
        father_name = :father_name, contact_number = :contact_number, address = :address,
        seat_number = :seat_number, time_slots = :time_slots, locker_number = :locker_number,
        amount_paid = :amount_paid, amount_due = :amount_due, admission_amount = :admission_amount,
        fees_paid_till_date = :fees_paid_till_date, admission_date = :admission_date,
        payment_expected_date = :payment_expected_date, payment_expected_date_changed = :payment_expected_date_changed,
        active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Deactivate marks a student inactive, freeing their seat, locker and
// registration number for reuse.
func (r *StudentRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE students SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	return nil
}
