package directory

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"campusattend/internal/apperrors"
	"campusattend/internal/model"
)

// Store is the persistence surface the directory service needs.
type Store interface {
	Insert(ctx context.Context, u model.User) (model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindActiveStudent(ctx context.Context, studentID string) (*model.User, error)
	FindByStudentID(ctx context.Context, studentID string) (*model.User, error)
	CohortCount(ctx context.Context, department string, year int, division string) (int, error)
	CohortWithFaceData(ctx context.Context, department string, year int, division string) ([]model.Candidate, error)
	AllWithFaceData(ctx context.Context) ([]model.Candidate, error)
	SearchStudents(ctx context.Context, query string) ([]model.User, error)
	UpdateProfile(ctx context.Context, id, name, email, department string, year int, division string, contact *model.ContactInfo) (*model.User, error)
	SetFaceEmbedding(ctx context.Context, id string, embedding []float64) error
	Deactivate(ctx context.Context, id string) error
}

// CohortCache caches recognition candidate sets keyed by cohort triple.
// Implemented by store.Redis.
type CohortCache interface {
	GetCohortCandidates(ctx context.Context, department string, year int, division string) ([]model.Candidate, bool)
	SetCohortCandidates(ctx context.Context, department string, year int, division string, candidates []model.Candidate, ttl time.Duration)
	InvalidateCohort(ctx context.Context, department string, year int, division string)
}

// Service resolves cohort membership and owns user records.
type Service struct {
	repo     Store
	cache    CohortCache
	cacheTTL time.Duration
}

// NewService creates a directory service. cache may be nil.
func NewService(repo Store, cache CohortCache, cacheTTL time.Duration) *Service {
	return &Service{repo: repo, cache: cache, cacheTTL: cacheTTL}
}

// RegisterInput carries the registration form fields.
type RegisterInput struct {
	Email      string
	Password   string
	Name       string
	Role       model.Role
	StudentID  string
	Department string
	Year       int
	Division   string
}

// Register creates a user account. Students must carry a unique student
// identifier; email is unique across all roles.
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || in.Password == "" || in.Name == "" || in.Role == "" {
		return model.User{}, apperrors.Validation("email, password, name and role are required")
	}
	if !in.Role.Valid() {
		return model.User{}, apperrors.Validation("unknown role %q", in.Role)
	}
	if in.Role == model.RoleStudent && in.StudentID == "" {
		return model.User{}, apperrors.Validation("student id is required for student accounts")
	}
	if in.Role != model.RoleStudent && in.StudentID != "" {
		return model.User{}, apperrors.Validation("student id is only valid for student accounts")
	}

	if existing, err := s.repo.FindByEmail(ctx, in.Email); err != nil {
		return model.User{}, apperrors.Store(err)
	} else if existing != nil {
		return model.User{}, apperrors.ErrDuplicate
	}
	if in.Role == model.RoleStudent {
		// Deactivated students keep their identifier, so the check must not
		// be scoped to active accounts.
		if existing, err := s.repo.FindByStudentID(ctx, in.StudentID); err != nil {
			return model.User{}, apperrors.Store(err)
		} else if existing != nil {
			return model.User{}, apperrors.ErrDuplicate
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), 12)
	if err != nil {
		return model.User{}, err
	}

	u := model.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		Name:         in.Name,
		Role:         in.Role,
		Department:   in.Department,
		Year:         in.Year,
		Division:     in.Division,
	}
	if in.Role == model.RoleStudent {
		u.StudentID = &in.StudentID
	}

	created, err := s.repo.Insert(ctx, u)
	if err != nil {
		return model.User{}, apperrors.Store(err)
	}
	if created.Role == model.RoleStudent && s.cache != nil {
		s.cache.InvalidateCohort(ctx, created.Department, created.Year, created.Division)
	}
	return created, nil
}

// Authenticate verifies credentials and returns the matching active user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	u, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return model.User{}, apperrors.Store(err)
	}
	if u == nil || !u.IsActive {
		return model.User{}, apperrors.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return model.User{}, apperrors.ErrUnauthorized
	}
	return *u, nil
}

// FindByID resolves a user by primary id.
func (s *Service) FindByID(ctx context.Context, id string) (model.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return model.User{}, apperrors.Store(err)
	}
	if u == nil {
		return model.User{}, apperrors.NotFound("user")
	}
	return *u, nil
}

// FindActiveStudent resolves an active student by student identifier.
func (s *Service) FindActiveStudent(ctx context.Context, studentID string) (*model.User, error) {
	u, err := s.repo.FindActiveStudent(ctx, studentID)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	return u, nil
}

// CohortCount counts active students in a cohort; used once per session
// creation to freeze the totalStudents snapshot.
func (s *Service) CohortCount(ctx context.Context, department string, year int, division string) (int, error) {
	n, err := s.repo.CohortCount(ctx, department, year, division)
	if err != nil {
		return 0, apperrors.Store(err)
	}
	return n, nil
}

// CohortWithFaceData returns the recognition candidate set for a cohort,
// served from cache when possible.
func (s *Service) CohortWithFaceData(ctx context.Context, department string, year int, division string) ([]model.Candidate, error) {
	if s.cache != nil {
		if cached, ok := s.cache.GetCohortCandidates(ctx, department, year, division); ok {
			return cached, nil
		}
	}
	candidates, err := s.repo.CohortWithFaceData(ctx, department, year, division)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	if s.cache != nil && len(candidates) > 0 {
		s.cache.SetCohortCandidates(ctx, department, year, division, candidates, s.cacheTTL)
	}
	return candidates, nil
}

// AllWithFaceData returns every active student with a template, for
// class-unscoped recognition.
func (s *Service) AllWithFaceData(ctx context.Context) ([]model.Candidate, error) {
	candidates, err := s.repo.AllWithFaceData(ctx)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	return candidates, nil
}

// SearchStudents runs the capped teacher lookup.
func (s *Service) SearchStudents(ctx context.Context, query string) ([]model.User, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.Validation("search query is required")
	}
	users, err := s.repo.SearchStudents(ctx, query)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	return users, nil
}

// UpdateInput carries mutable profile fields.
type UpdateInput struct {
	Name        string
	Email       string
	Department  string
	Year        int
	Division    string
	ContactInfo *model.ContactInfo
}

// UpdateProfile mutates a user's own profile.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateInput) (model.User, error) {
	return s.update(ctx, userID, in, false)
}

// UpdateStudent is the teacher-assisted variant; it additionally asserts the
// target is a student.
func (s *Service) UpdateStudent(ctx context.Context, userID string, in UpdateInput) (model.User, error) {
	return s.update(ctx, userID, in, true)
}

func (s *Service) update(ctx context.Context, userID string, in UpdateInput, requireStudent bool) (model.User, error) {
	if userID == "" || in.Name == "" || in.Email == "" {
		return model.User{}, apperrors.Validation("user id, name and email are required")
	}
	before, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return model.User{}, apperrors.Store(err)
	}
	if before == nil {
		return model.User{}, apperrors.NotFound("user")
	}
	if requireStudent && before.Role != model.RoleStudent {
		return model.User{}, apperrors.Validation("user is not a student")
	}

	updated, err := s.repo.UpdateProfile(ctx, userID, in.Name, in.Email, in.Department, in.Year, in.Division, in.ContactInfo)
	if err != nil {
		return model.User{}, apperrors.Store(err)
	}
	if updated == nil {
		return model.User{}, apperrors.NotFound("user")
	}
	if updated.Role == model.RoleStudent && s.cache != nil {
		// A cohort move invalidates candidate sets on both sides.
		s.cache.InvalidateCohort(ctx, before.Department, before.Year, before.Division)
		s.cache.InvalidateCohort(ctx, updated.Department, updated.Year, updated.Division)
	}
	return *updated, nil
}

// DeactivateStudent soft-deactivates a student account. The record survives
// so historical attendance entries keep resolving; the student drops out of
// cohort counts and candidate sets immediately.
func (s *Service) DeactivateStudent(ctx context.Context, userID string) error {
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return apperrors.Store(err)
	}
	if u == nil {
		return apperrors.NotFound("user")
	}
	if u.Role != model.RoleStudent {
		return apperrors.Validation("user is not a student")
	}
	if err := s.repo.Deactivate(ctx, userID); err != nil {
		return apperrors.Store(err)
	}
	if s.cache != nil {
		s.cache.InvalidateCohort(ctx, u.Department, u.Year, u.Division)
	}
	return nil
}

// SaveFaceTemplate persists a freshly enrolled embedding on the student and
// drops the cohort's cached candidate set.
func (s *Service) SaveFaceTemplate(ctx context.Context, userID string, embedding []float64) error {
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return apperrors.Store(err)
	}
	if u == nil {
		return apperrors.NotFound("user")
	}
	if err := s.repo.SetFaceEmbedding(ctx, userID, embedding); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("user")
		}
		return apperrors.Store(err)
	}
	if s.cache != nil {
		s.cache.InvalidateCohort(ctx, u.Department, u.Year, u.Division)
	}
	return nil
}
