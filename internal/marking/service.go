package marking

import (
	"context"
	"time"

	"campusattend/internal/apperrors"
	"campusattend/internal/faceclient"
	"campusattend/internal/metrics"
	"campusattend/internal/model"
)

// Outcome is the terminal state of one marking attempt.
type Outcome string

const (
	OutcomeAccepted        Outcome = "accepted"
	OutcomeAlreadyMarked   Outcome = "already_marked"
	OutcomeNotEnrolled     Outcome = "not_enrolled"
	OutcomeNotRecognized   Outcome = "not_recognized"
	OutcomeSessionInactive Outcome = "session_inactive"
	OutcomeStudentUnknown  Outcome = "student_unknown"
)

// Result describes how a marking attempt ended. For OutcomeAlreadyMarked,
// MarkedAt carries the original timestamp of the existing entry so repeated
// submissions stay idempotent from the student's perspective.
type Result struct {
	Outcome        Outcome
	SessionID      string
	StudentID      string
	StudentName    string
	Confidence     float64
	LivenessPassed bool
	MarkedAt       time.Time
}

// SessionStore is the slice of the session store the protocol needs.
type SessionStore interface {
	FindActiveBySessionID(ctx context.Context, sessionID string) (*model.AttendanceSession, error)
	FindBySessionID(ctx context.Context, sessionID string) (*model.AttendanceSession, error)
	AppendAttendance(ctx context.Context, sessionID string, entry model.AttendanceEntry) (bool, error)
}

// Directory resolves candidates and student records.
type Directory interface {
	CohortWithFaceData(ctx context.Context, department string, year int, division string) ([]model.Candidate, error)
	FindActiveStudent(ctx context.Context, studentID string) (*model.User, error)
}

// Recognizer is the recognition gateway surface the image path consumes.
type Recognizer interface {
	RecognizeFace(ctx context.Context, image string, candidates []model.Candidate) (*faceclient.RecognizeResult, error)
}

// Service implements the at-most-once, class-scoped marking protocol. Both
// entry paths converge on the same acceptance rule; the uniqueness check and
// the append are a single store operation, so concurrent attempts for the
// same student cannot both be accepted.
type Service struct {
	sessions SessionStore
	dir      Directory
	face     Recognizer
	now      func() time.Time
}

// NewService creates the marking service.
func NewService(sessions SessionStore, dir Directory, face Recognizer) *Service {
	return &Service{sessions: sessions, dir: dir, face: face, now: time.Now}
}

// MarkByImage runs the image-driven path: the candidate set is the session's
// cohort and the match decision is delegated to the recognition service.
func (s *Service) MarkByImage(ctx context.Context, sessionID, image string) (Result, error) {
	if sessionID == "" || image == "" {
		return Result{}, apperrors.Validation("session id and image are required")
	}

	sess, err := s.sessions.FindActiveBySessionID(ctx, sessionID)
	if err != nil {
		return Result{}, apperrors.Store(err)
	}
	if sess == nil {
		return s.reject(Result{Outcome: OutcomeSessionInactive, SessionID: sessionID}), nil
	}

	candidates, err := s.dir.CohortWithFaceData(ctx, sess.Department, sess.Year, sess.Division)
	if err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 {
		return Result{}, apperrors.ErrNoTemplates
	}

	start := s.now()
	rec, err := s.face.RecognizeFace(ctx, image, candidates)
	metrics.FaceRequestDuration.WithLabelValues("recognize").Observe(s.now().Sub(start).Seconds())
	if err != nil {
		metrics.MarkingAttempts.WithLabelValues("error").Inc()
		return Result{}, apperrors.Recognition(err)
	}

	if !rec.Recognized {
		return s.reject(Result{
			Outcome:        OutcomeNotRecognized,
			SessionID:      sessionID,
			Confidence:     rec.Confidence,
			LivenessPassed: rec.LivenessPassed,
		}), nil
	}

	// The match must correspond to a candidate we supplied.
	var matched *model.Candidate
	for i := range candidates {
		if candidates[i].StudentID == rec.StudentID {
			matched = &candidates[i]
			break
		}
	}
	if matched == nil {
		return s.reject(Result{Outcome: OutcomeStudentUnknown, SessionID: sessionID, Confidence: rec.Confidence}), nil
	}

	student, err := s.dir.FindActiveStudent(ctx, matched.StudentID)
	if err != nil {
		return Result{}, err
	}
	if student == nil {
		return s.reject(Result{Outcome: OutcomeStudentUnknown, SessionID: sessionID, Confidence: rec.Confidence}), nil
	}

	return s.accept(ctx, sess, student, rec.Confidence, rec.LivenessPassed)
}

// MarkByAssertion runs the manual path: recognition has already happened
// client-side and only the marking decision remains. The supplied confidence
// is recorded as-is; the enrollment gate still applies.
func (s *Service) MarkByAssertion(ctx context.Context, sessionID, studentID string, confidence float64) (Result, error) {
	if sessionID == "" || studentID == "" {
		return Result{}, apperrors.Validation("session id and student id are required")
	}
	if confidence < 0 || confidence > 1 {
		return Result{}, apperrors.Validation("confidence must be between 0 and 1")
	}

	sess, err := s.sessions.FindActiveBySessionID(ctx, sessionID)
	if err != nil {
		return Result{}, apperrors.Store(err)
	}
	if sess == nil {
		return s.reject(Result{Outcome: OutcomeSessionInactive, SessionID: sessionID}), nil
	}

	student, err := s.dir.FindActiveStudent(ctx, studentID)
	if err != nil {
		return Result{}, err
	}
	if student == nil {
		return s.reject(Result{Outcome: OutcomeStudentUnknown, SessionID: sessionID, StudentID: studentID}), nil
	}

	if student.Department != sess.Department || student.Year != sess.Year || student.Division != sess.Division {
		return s.reject(Result{
			Outcome:     OutcomeNotEnrolled,
			SessionID:   sessionID,
			StudentID:   studentID,
			StudentName: student.Name,
		}), nil
	}

	return s.accept(ctx, sess, student, confidence, false)
}

// accept applies the shared acceptance rule: at most one entry per student
// per session, appended only while the session is active.
func (s *Service) accept(ctx context.Context, sess *model.AttendanceSession, student *model.User, confidence float64, liveness bool) (Result, error) {
	studentID := ""
	if student.StudentID != nil {
		studentID = *student.StudentID
	}

	if existing := sess.Entry(studentID); existing != nil {
		return s.reject(Result{
			Outcome:        OutcomeAlreadyMarked,
			SessionID:      sess.SessionID,
			StudentID:      studentID,
			StudentName:    student.Name,
			Confidence:     existing.Confidence,
			LivenessPassed: liveness,
			MarkedAt:       existing.MarkedAt,
		}), nil
	}

	entry := model.AttendanceEntry{
		StudentID:  studentID,
		UserID:     student.ID,
		MarkedAt:   s.now().UTC(),
		Confidence: confidence,
	}
	appended, err := s.sessions.AppendAttendance(ctx, sess.SessionID, entry)
	if err != nil {
		metrics.MarkingAttempts.WithLabelValues("error").Inc()
		return Result{}, apperrors.Store(err)
	}
	if !appended {
		// Lost a race: either another attempt for the same student landed
		// first, or the session turned terminal. Re-read to tell which.
		fresh, err := s.sessions.FindBySessionID(ctx, sess.SessionID)
		if err != nil {
			return Result{}, apperrors.Store(err)
		}
		if fresh != nil {
			if existing := fresh.Entry(studentID); existing != nil {
				return s.reject(Result{
					Outcome:        OutcomeAlreadyMarked,
					SessionID:      sess.SessionID,
					StudentID:      studentID,
					StudentName:    student.Name,
					Confidence:     existing.Confidence,
					LivenessPassed: liveness,
					MarkedAt:       existing.MarkedAt,
				}), nil
			}
		}
		return s.reject(Result{Outcome: OutcomeSessionInactive, SessionID: sess.SessionID, StudentID: studentID}), nil
	}

	metrics.MarkingAttempts.WithLabelValues(string(OutcomeAccepted)).Inc()
	return Result{
		Outcome:        OutcomeAccepted,
		SessionID:      sess.SessionID,
		StudentID:      studentID,
		StudentName:    student.Name,
		Confidence:     confidence,
		LivenessPassed: liveness,
		MarkedAt:       entry.MarkedAt,
	}, nil
}

func (s *Service) reject(r Result) Result {
	metrics.MarkingAttempts.WithLabelValues(string(r.Outcome)).Inc()
	return r
}
