package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"campusattend/internal/model"
)

// searchLimit caps teacher lookup results.
const searchLimit = 10

const userColumns = `id, email, password_hash, name, role, student_id, department, year, division, phone, address, face_embedding, is_active, created_at, updated_at`

// Repository persists user records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var (
		u         model.User
		studentID sql.NullString
		phone     string
		address   string
		embedding []byte
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &studentID,
		&u.Department, &u.Year, &u.Division, &phone, &address, &embedding,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if studentID.Valid {
		u.StudentID = &studentID.String
	}
	if phone != "" || address != "" {
		u.ContactInfo = &model.ContactInfo{Phone: phone, Address: address}
	}
	if len(embedding) > 0 {
		if err := json.Unmarshal(embedding, &u.FaceEmbedding); err != nil {
			return nil, fmt.Errorf("decode face embedding: %w", err)
		}
	}
	u.HasFaceData = len(u.FaceEmbedding) > 0
	return &u, nil
}

// Insert writes a new user.
func (r *Repository) Insert(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	var studentID any
	if u.StudentID != nil {
		studentID = *u.StudentID
	}
	var phone, address string
	if u.ContactInfo != nil {
		phone, address = u.ContactInfo.Phone, u.ContactInfo.Address
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, student_id, department, year, division, phone, address, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,TRUE)
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.PasswordHash, u.Name, u.Role, studentID, u.Department, u.Year, u.Division, phone, address)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.User{}, err
	}
	u.IsActive = true
	return u, nil
}

// FindByID returns a user by primary id, or nil when absent.
func (r *Repository) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// FindByEmail returns a user by email, or nil when absent.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = LOWER($1)`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// FindByStudentID returns a student by student identifier regardless of
// active state, or nil. Deactivated students still hold their identifier.
func (r *Repository) FindByStudentID(ctx context.Context, studentID string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE student_id = $1 AND role = 'student'
	`, studentID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// FindActiveStudent returns an active student by student identifier, or nil.
func (r *Repository) FindActiveStudent(ctx context.Context, studentID string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE student_id = $1 AND role = 'student' AND is_active = TRUE
	`, studentID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// CohortCount counts active students matching a cohort triple.
func (r *Repository) CohortCount(ctx context.Context, department string, year int, division string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM users
		WHERE role = 'student' AND is_active = TRUE
		  AND department = $1 AND year = $2 AND division = $3
	`, department, year, division).Scan(&n)
	return n, err
}

// CohortWithFaceData returns active students in the cohort that carry a face
// template, ready to serve as a recognition candidate set.
func (r *Repository) CohortWithFaceData(ctx context.Context, department string, year int, division string) ([]model.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, face_embedding, name FROM users
		WHERE role = 'student' AND is_active = TRUE AND face_embedding IS NOT NULL
		  AND department = $1 AND year = $2 AND division = $3
	`, department, year, division)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []model.Candidate
	for rows.Next() {
		var (
			cand model.Candidate
			raw  []byte
		)
		if err := rows.Scan(&cand.StudentID, &raw, &cand.Name); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &cand.Embedding); err != nil {
			return nil, fmt.Errorf("decode face embedding: %w", err)
		}
		candidates = append(candidates, cand)
	}
	return candidates, rows.Err()
}

// AllWithFaceData returns every active student carrying a face template,
// for class-unscoped recognition.
func (r *Repository) AllWithFaceData(ctx context.Context) ([]model.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, face_embedding, name FROM users
		WHERE role = 'student' AND is_active = TRUE AND face_embedding IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []model.Candidate
	for rows.Next() {
		var (
			cand model.Candidate
			raw  []byte
		)
		if err := rows.Scan(&cand.StudentID, &raw, &cand.Name); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &cand.Embedding); err != nil {
			return nil, fmt.Errorf("decode face embedding: %w", err)
		}
		candidates = append(candidates, cand)
	}
	return candidates, rows.Err()
}

// SearchStudents does a case-insensitive substring match over id, name and
// email, capped at searchLimit rows.
func (r *Repository) SearchStudents(ctx context.Context, query string) ([]model.User, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE role = 'student' AND is_active = TRUE
		  AND (student_id ILIKE $1 OR name ILIKE $1 OR email ILIKE $1)
		ORDER BY student_id
		LIMIT $2
	`, pattern, searchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateProfile mutates the mutable profile fields of a user.
func (r *Repository) UpdateProfile(ctx context.Context, id, name, email, department string, year int, division string, contact *model.ContactInfo) (*model.User, error) {
	var phone, address string
	if contact != nil {
		phone, address = contact.Phone, contact.Address
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET name = $2, email = LOWER($3), department = $4, year = $5, division = $6,
		    phone = $7, address = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns+`
	`, id, name, email, department, year, division, phone, address)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// SetFaceEmbedding overwrites a user's face template after a successful
// enrollment call.
func (r *Repository) SetFaceEmbedding(ctx context.Context, id string, embedding []float64) error {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET face_embedding = $2, updated_at = NOW() WHERE id = $1
	`, id, raw)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Deactivate soft-deletes a user; records are never hard-deleted.
func (r *Repository) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_active = FALSE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
