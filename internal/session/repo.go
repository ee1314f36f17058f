package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campusattend/internal/model"
)

// Repository persists attendance sessions in Postgres. Attendance entries
// are embedded as a JSONB array on the session row, mirroring the
// one-document-per-session layout.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `s.session_id, s.date, s.subject, s.department, s.year, s.division, s.semester,
	s.teacher_id, u.name, s.start_time, s.end_time, s.status, s.attended, s.total_students,
	s.created_at, s.updated_at`

func scanSession(row interface{ Scan(...any) error }) (*model.AttendanceSession, error) {
	var (
		s        model.AttendanceSession
		endTime  sql.NullTime
		attended []byte
	)
	err := row.Scan(&s.SessionID, &s.Date, &s.Subject, &s.Department, &s.Year, &s.Division,
		&s.Semester, &s.TeacherID, &s.TeacherName, &s.StartTime, &endTime, &s.Status,
		&attended, &s.TotalStudents, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if endTime.Valid {
		s.EndTime = &endTime.Time
	}
	if err := json.Unmarshal(attended, &s.AttendedStudents); err != nil {
		return nil, fmt.Errorf("decode attendance entries: %w", err)
	}
	if s.AttendedStudents == nil {
		s.AttendedStudents = []model.AttendanceEntry{}
	}
	return &s, nil
}

// Insert writes a new session.
func (r *Repository) Insert(ctx context.Context, s model.AttendanceSession) (model.AttendanceSession, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions
			(session_id, date, subject, department, year, division, semester, teacher_id, start_time, status, total_students)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at
	`, s.SessionID, s.Date, s.Subject, s.Department, s.Year, s.Division, s.Semester,
		s.TeacherID, s.StartTime, s.Status, s.TotalStudents)
	if err := row.Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		return model.AttendanceSession{}, err
	}
	s.AttendedStudents = []model.AttendanceEntry{}
	return s, nil
}

// FindBySessionID returns a session regardless of status, or nil.
func (r *Repository) FindBySessionID(ctx context.Context, sessionID string) (*model.AttendanceSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions s JOIN users u ON u.id = s.teacher_id
		WHERE s.session_id = $1
	`, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// FindActiveBySessionID returns a session only while it is active, or nil.
func (r *Repository) FindActiveBySessionID(ctx context.Context, sessionID string) (*model.AttendanceSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM attendance_sessions s JOIN users u ON u.id = s.teacher_id
		WHERE s.session_id = $1 AND s.status = 'active'
	`, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// TransitionStatus moves an active session to a terminal status. endTime is
// written only for the completed transition. Returns false when the session
// was not active (already terminal or absent); the caller re-fetches to
// distinguish the two.
func (r *Repository) TransitionStatus(ctx context.Context, sessionID string, status model.SessionStatus, endTime *time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions
		SET status = $2, end_time = $3, updated_at = NOW()
		WHERE session_id = $1 AND status = 'active'
	`, sessionID, status, endTime)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AppendAttendance appends one entry iff the session is active and no entry
// for the same student exists, as a single conditional update. The JSONB
// containment guard makes the check-and-append indivisible, so two
// simultaneous attempts for the same student cannot both land.
func (r *Repository) AppendAttendance(ctx context.Context, sessionID string, entry model.AttendanceEntry) (bool, error) {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}
	guard, err := json.Marshal([]map[string]string{{"studentId": entry.StudentID}})
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions
		SET attended = attended || $2::jsonb, updated_at = NOW()
		WHERE session_id = $1 AND status = 'active'
		  AND NOT attended @> $3::jsonb
	`, sessionID, entryJSON, guard)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Filters narrows session listings. Zero values mean "no filter".
type Filters struct {
	Department    string
	Year          int
	Division      string
	Subject       string // case-insensitive substring
	Semester      string
	Status        model.SessionStatus
	DateFrom      *time.Time
	DateTo        *time.Time
	LooseCohort   bool // substring match on department/division instead of equality
}

func (f Filters) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, val any) {
		args = append(args, val)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Department != "" {
		if f.LooseCohort {
			add("s.department ILIKE '%%' || $%d || '%%'", f.Department)
		} else {
			add("s.department = $%d", f.Department)
		}
	}
	if f.Year != 0 {
		add("s.year = $%d", f.Year)
	}
	if f.Division != "" {
		if f.LooseCohort {
			add("s.division ILIKE '%%' || $%d || '%%'", f.Division)
		} else {
			add("s.division = $%d", f.Division)
		}
	}
	if f.Subject != "" {
		add("s.subject ILIKE '%%' || $%d || '%%'", f.Subject)
	}
	if f.Semester != "" {
		add("s.semester = $%d", f.Semester)
	}
	if f.Status != "" {
		add("s.status = $%d", f.Status)
	}
	if f.DateFrom != nil {
		add("s.date >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("s.date <= $%d", *f.DateTo)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	out := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		out += " AND " + c
	}
	return out, args
}

// List returns sessions matching the filters, newest first (date, then
// start time, both descending), paginated.
func (r *Repository) List(ctx context.Context, f Filters, limit, offset int) ([]model.AttendanceSession, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	where, args := f.where()
	query := `
		SELECT ` + sessionColumns + `
		FROM attendance_sessions s JOIN users u ON u.id = s.teacher_id` + where +
		fmt.Sprintf(" ORDER BY s.date DESC, s.start_time DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.AttendanceSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Count returns the number of sessions matching the filters, for pagination
// metadata.
func (r *Repository) Count(ctx context.Context, f Filters) (int, error) {
	where, args := f.where()
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_sessions s`+where, args...).Scan(&n)
	return n, err
}

// ListByCohort returns every session for a cohort triple, newest first;
// used to derive a student's attendance history.
func (r *Repository) ListByCohort(ctx context.Context, department string, year int, division string, f Filters) ([]model.AttendanceSession, error) {
	f.Department = department
	f.Year = year
	f.Division = division
	f.LooseCohort = false
	where, args := f.where()
	query := `
		SELECT ` + sessionColumns + `
		FROM attendance_sessions s JOIN users u ON u.id = s.teacher_id` + where +
		` ORDER BY s.date DESC, s.start_time DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.AttendanceSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
