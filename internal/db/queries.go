package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/hpungsan/saiten/internal/errors"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.Error{
	Code:    errors.ErrConflict,
	Status:  409,
	Message: "unique constraint violation",
}

// Assignment is one uploaded assignment: a roster CSV plus its extracted submissions.
type Assignment struct {
	ID            string
	Name          string
	SourceBase    string   // expected source file base name, e.g. "kadai01"
	SubmissionDir string   // absolute path of the extracted ZIP
	Columns       []string // original CSV header order
	CheckedAt     *int64   // set once a batch auto-check completed
	CreatedAt     int64

	// Total is the number of submitted students. Populated by ListAssignments only.
	Total int
}

// Student is one roster row of an assignment.
type Student struct {
	AssignmentID    string
	StudentID       string
	FullName        string
	StatusText      string
	Submitted       bool
	Reviewed        bool
	Feedback        *string // nil until a comment exists (from CSV or a save)
	AutoFeedback    string
	AutoCheckResult string
	Position        int
	Row             map[string]string // all original CSV columns
	ReviewedAt      *int64
}

// InsertAssignment stores an assignment and all of its students in one transaction.
func InsertAssignment(ctx context.Context, db *sql.DB, a *Assignment, students []Student) error {
	columnsJSON, err := json.Marshal(a.Columns)
	if err != nil {
		return errors.NewInternal(err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO assignments (id, name, source_base, submission_dir, columns_json, checked_at, created_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?)
	`, a.ID, a.Name, a.SourceBase, a.SubmissionDir, string(columnsJSON), a.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO students (
			assignment_id, student_id, full_name, status_text, submitted, reviewed,
			feedback, auto_feedback, auto_check_result, position, row_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	for i := range students {
		s := &students[i]
		rowJSON, err := json.Marshal(s.Row)
		if err != nil {
			return errors.NewInternal(err)
		}
		_, err = stmt.ExecContext(ctx,
			a.ID, s.StudentID, s.FullName, s.StatusText, boolToInt(s.Submitted), boolToInt(s.Reviewed),
			toNullString(s.Feedback), s.AutoFeedback, s.AutoCheckResult, s.Position, string(rowJSON),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return errors.NewInvalidSubmission("duplicate student id in roster: " + s.StudentID)
			}
			return errors.NewInternal(err)
		}
		s.AssignmentID = a.ID
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const assignmentColumns = `id, name, source_base, submission_dir, columns_json, checked_at, created_at`

// GetAssignment retrieves an assignment by its ULID.
func GetAssignment(ctx context.Context, db *sql.DB, id string) (*Assignment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("assignment", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return a, nil
}

// ListAssignments returns all assignments, newest first, with their submitted-student totals.
func ListAssignments(ctx context.Context, db *sql.DB) ([]Assignment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT a.id, a.name, a.source_base, a.submission_dir, a.columns_json, a.checked_at, a.created_at,
			(SELECT COUNT(*) FROM students s WHERE s.assignment_id = a.id AND s.submitted = 1)
		FROM assignments a
		ORDER BY a.created_at DESC, a.id DESC
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignmentTotal(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// MarkChecked records that a batch auto-check completed for the assignment.
func MarkChecked(ctx context.Context, db *sql.DB, id string, at int64) error {
	result, err := db.ExecContext(ctx, `UPDATE assignments SET checked_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireRow(result, "assignment", id)
}

// DeleteAssignment removes an assignment and its students.
func DeleteAssignment(ctx context.Context, db *sql.DB, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM students WHERE assignment_id = ?`, id); err != nil {
		return errors.NewInternal(err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := requireRow(result, "assignment", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

const studentColumns = `assignment_id, student_id, full_name, status_text, submitted, reviewed,
	feedback, auto_feedback, auto_check_result, position, row_json, reviewed_at`

// ListStudents returns an assignment's students in roster order.
// When submittedOnly is true, rows not marked as submitted are excluded.
func ListStudents(ctx context.Context, db *sql.DB, assignmentID string, submittedOnly bool) ([]Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE assignment_id = ?`
	if submittedOnly {
		query += ` AND submitted = 1`
	}
	query += ` ORDER BY position ASC`

	rows, err := db.QueryContext(ctx, query, assignmentID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// GetStudent retrieves one student of an assignment.
func GetStudent(ctx context.Context, db *sql.DB, assignmentID, studentID string) (*Student, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE assignment_id = ? AND student_id = ?`,
		assignmentID, studentID)
	s, err := scanStudent(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("student", studentID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return s, nil
}

// SaveFeedback commits a feedback comment and marks the student reviewed.
func SaveFeedback(ctx context.Context, db *sql.DB, assignmentID, studentID, feedback string) error {
	now := time.Now().Unix()
	result, err := db.ExecContext(ctx, `
		UPDATE students
		SET feedback = ?, reviewed = 1, reviewed_at = ?
		WHERE assignment_id = ? AND student_id = ?
	`, feedback, now, assignmentID, studentID)
	if err != nil {
		return errors.NewInternal(err)
	}
	return requireRow(result, "student", studentID)
}

// ApplyAutoCheck stores an auto-check outcome for a student that is not yet reviewed.
// Returns ALREADY_REVIEWED if the student was reviewed in the meantime.
func ApplyAutoCheck(ctx context.Context, db *sql.DB, assignmentID, studentID, autoFeedback, result string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE students
		SET auto_feedback = ?, auto_check_result = ?
		WHERE assignment_id = ? AND student_id = ? AND reviewed = 0
	`, autoFeedback, result, assignmentID, studentID)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n > 0 {
		return nil
	}

	// Distinguish a missing row from a reviewed one
	if _, err := GetStudent(ctx, db, assignmentID, studentID); err != nil {
		return err
	}
	return errors.NewAlreadyReviewed(studentID)
}

func requireRow(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(kind, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row scanner) (*Assignment, error) {
	var (
		a           Assignment
		columnsJSON string
		checkedAt   sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.Name, &a.SourceBase, &a.SubmissionDir, &columnsJSON, &checkedAt, &a.CreatedAt); err != nil {
		return nil, err
	}
	return finishAssignment(&a, columnsJSON, checkedAt)
}

func scanAssignmentTotal(row scanner) (*Assignment, error) {
	var (
		a           Assignment
		columnsJSON string
		checkedAt   sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.Name, &a.SourceBase, &a.SubmissionDir, &columnsJSON, &checkedAt, &a.CreatedAt, &a.Total); err != nil {
		return nil, err
	}
	return finishAssignment(&a, columnsJSON, checkedAt)
}

func finishAssignment(a *Assignment, columnsJSON string, checkedAt sql.NullInt64) (*Assignment, error) {
	if checkedAt.Valid {
		a.CheckedAt = &checkedAt.Int64
	}
	if columnsJSON != "" {
		if err := json.Unmarshal([]byte(columnsJSON), &a.Columns); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func scanStudent(row scanner) (*Student, error) {
	var (
		s          Student
		submitted  int
		reviewed   int
		feedback   sql.NullString
		rowJSON    string
		reviewedAt sql.NullInt64
	)
	err := row.Scan(
		&s.AssignmentID, &s.StudentID, &s.FullName, &s.StatusText, &submitted, &reviewed,
		&feedback, &s.AutoFeedback, &s.AutoCheckResult, &s.Position, &rowJSON, &reviewedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Submitted = submitted != 0
	s.Reviewed = reviewed != 0
	s.Feedback = fromNullString(feedback)
	if reviewedAt.Valid {
		s.ReviewedAt = &reviewedAt.Int64
	}
	if rowJSON != "" {
		if err := json.Unmarshal([]byte(rowJSON), &s.Row); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
