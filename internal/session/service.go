package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"campusattend/internal/apperrors"
	"campusattend/internal/model"
)

// Store is the persistence surface the session service needs.
type Store interface {
	Insert(ctx context.Context, s model.AttendanceSession) (model.AttendanceSession, error)
	FindBySessionID(ctx context.Context, sessionID string) (*model.AttendanceSession, error)
	FindActiveBySessionID(ctx context.Context, sessionID string) (*model.AttendanceSession, error)
	TransitionStatus(ctx context.Context, sessionID string, status model.SessionStatus, endTime *time.Time) (bool, error)
	List(ctx context.Context, f Filters, limit, offset int) ([]model.AttendanceSession, error)
	Count(ctx context.Context, f Filters) (int, error)
	ListByCohort(ctx context.Context, department string, year int, division string, f Filters) ([]model.AttendanceSession, error)
}

// Directory resolves teacher references and cohort sizes at creation time.
type Directory interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	CohortCount(ctx context.Context, department string, year int, division string) (int, error)
}

// Service owns the attendance-session lifecycle.
type Service struct {
	repo Store
	dir  Directory
	now  func() time.Time
}

// NewService creates a session service.
func NewService(repo Store, dir Directory) *Service {
	return &Service{repo: repo, dir: dir, now: time.Now}
}

// CreateInput carries the fields of a session-creation request.
type CreateInput struct {
	Date       time.Time
	Subject    string
	Department string
	Year       int
	Division   string
	Semester   string
	TeacherID  string
}

// Create opens a new attendance session. The cohort size is snapshotted into
// TotalStudents here and never updated afterwards.
func (s *Service) Create(ctx context.Context, in CreateInput) (model.AttendanceSession, error) {
	if in.Date.IsZero() || in.Subject == "" || in.Department == "" || in.Year == 0 || in.Division == "" || in.TeacherID == "" {
		return model.AttendanceSession{}, apperrors.Validation("date, subject, department, year, division and teacher id are required")
	}

	teacher, err := s.dir.FindByID(ctx, in.TeacherID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return model.AttendanceSession{}, apperrors.Validation("invalid teacher id")
		}
		return model.AttendanceSession{}, err
	}
	if !teacher.Role.CanCreateSessions() {
		return model.AttendanceSession{}, apperrors.Validation("invalid teacher id")
	}

	total, err := s.dir.CohortCount(ctx, in.Department, in.Year, in.Division)
	if err != nil {
		return model.AttendanceSession{}, err
	}

	sess := model.AttendanceSession{
		SessionID:     uuid.NewString(),
		Date:          in.Date,
		Subject:       in.Subject,
		Department:    in.Department,
		Year:          in.Year,
		Division:      in.Division,
		Semester:      in.Semester,
		TeacherID:     teacher.ID,
		TeacherName:   teacher.Name,
		StartTime:     s.now().UTC(),
		Status:        model.StatusActive,
		TotalStudents: total,
	}
	created, err := s.repo.Insert(ctx, sess)
	if err != nil {
		return model.AttendanceSession{}, apperrors.Store(err)
	}
	created.TeacherName = teacher.Name
	return created, nil
}

// FindByID returns a session regardless of status.
func (s *Service) FindByID(ctx context.Context, sessionID string) (model.AttendanceSession, error) {
	sess, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return model.AttendanceSession{}, apperrors.Store(err)
	}
	if sess == nil {
		return model.AttendanceSession{}, apperrors.NotFound("session")
	}
	return *sess, nil
}

// TransitionStatus moves an active session to completed or cancelled. Both
// targets are terminal; endTime is written only when completing.
func (s *Service) TransitionStatus(ctx context.Context, sessionID string, status model.SessionStatus) (model.AttendanceSession, error) {
	if status != model.StatusCompleted && status != model.StatusCancelled {
		return model.AttendanceSession{}, apperrors.ErrInvalidStatus
	}

	var endTime *time.Time
	if status == model.StatusCompleted {
		now := s.now().UTC()
		endTime = &now
	}

	moved, err := s.repo.TransitionStatus(ctx, sessionID, status, endTime)
	if err != nil {
		return model.AttendanceSession{}, apperrors.Store(err)
	}
	if !moved {
		// Either the session does not exist or it already reached a
		// terminal status.
		existing, err := s.repo.FindBySessionID(ctx, sessionID)
		if err != nil {
			return model.AttendanceSession{}, apperrors.Store(err)
		}
		if existing == nil {
			return model.AttendanceSession{}, apperrors.NotFound("session")
		}
		return model.AttendanceSession{}, apperrors.ErrInvalidTransition
	}
	return s.FindByID(ctx, sessionID)
}

// Page holds one page of sessions plus pagination metadata.
type Page struct {
	Sessions    []model.AttendanceSession `json:"sessions"`
	CurrentPage int                       `json:"currentPage"`
	TotalPages  int                       `json:"totalPages"`
	Total       int                       `json:"totalSessions"`
	HasNext     bool                      `json:"hasNext"`
	HasPrev     bool                      `json:"hasPrev"`
}

// List returns a filtered, paginated session listing, newest first.
func (s *Service) List(ctx context.Context, f Filters, page, pageSize int) (Page, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	sessions, err := s.repo.List(ctx, f, pageSize, (page-1)*pageSize)
	if err != nil {
		return Page{}, apperrors.Store(err)
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return Page{}, apperrors.Store(err)
	}
	totalPages := (total + pageSize - 1) / pageSize
	return Page{
		Sessions:    sessions,
		CurrentPage: page,
		TotalPages:  totalPages,
		Total:       total,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
	}, nil
}

// ListAll returns all sessions matching the filters without pagination,
// for the teacher attendance view.
func (s *Service) ListAll(ctx context.Context, f Filters) ([]model.AttendanceSession, error) {
	sessions, err := s.repo.List(ctx, f, 1000, 0)
	if err != nil {
		return nil, apperrors.Store(err)
	}
	return sessions, nil
}
