package report

import (
	"context"
	"log"
	"math"
	"time"

	"campusattend/internal/apperrors"
	"campusattend/internal/model"
	"campusattend/internal/session"
)

// SessionStats is the read-side summary derived from one session.
type SessionStats struct {
	AttendanceRate float64 `json:"attendanceRate"`
	PresentCount   int     `json:"presentCount"`
	AbsentCount    int     `json:"absentCount"`
}

// Stats computes attendance statistics for a session. The rate is defined as
// 0 when the frozen cohort snapshot is empty; the absent count is clamped at
// zero since the snapshot can lag behind cohort changes.
func Stats(s model.AttendanceSession) SessionStats {
	present := len(s.AttendedStudents)
	rate := 0.0
	if s.TotalStudents > 0 {
		rate = math.Round(float64(present)/float64(s.TotalStudents)*100*100) / 100
	}
	absent := s.TotalStudents - present
	if absent < 0 {
		log.Printf("session %s: present count %d exceeds snapshot %d, clamping absent to 0",
			s.SessionID, present, s.TotalStudents)
		absent = 0
	}
	return SessionStats{AttendanceRate: rate, PresentCount: present, AbsentCount: absent}
}

// Record is one session from a student's point of view.
type Record struct {
	SessionID  string              `json:"sessionId"`
	Date       time.Time           `json:"date"`
	Subject    string              `json:"subject"`
	Department string              `json:"department"`
	Year       int                 `json:"year"`
	Division   string              `json:"division"`
	StartTime  time.Time           `json:"startTime"`
	EndTime    *time.Time          `json:"endTime,omitempty"`
	Status     model.SessionStatus `json:"status"`
	Teacher    string              `json:"teacher"`
	IsPresent  bool                `json:"isPresent"`
	MarkedAt   *time.Time          `json:"markedAt,omitempty"`
	Confidence *float64            `json:"confidence,omitempty"`
}

// SessionLister is the session-store surface history derivation reads from.
type SessionLister interface {
	ListByCohort(ctx context.Context, department string, year int, division string, f session.Filters) ([]model.AttendanceSession, error)
}

// Service derives per-student attendance history from session data.
type Service struct {
	sessions SessionLister
}

// NewService creates a report service.
func NewService(sessions SessionLister) *Service {
	return &Service{sessions: sessions}
}

// StudentHistory lists the student's cohort sessions newest first and derives
// present/absent per session by membership of the student's user id in the
// attendance entries. presence filters to "present", "absent" or "" for all.
func (s *Service) StudentHistory(ctx context.Context, student model.User, f session.Filters, presence string) ([]Record, error) {
	if student.Role != model.RoleStudent {
		return nil, apperrors.NotFound("student")
	}
	sessions, err := s.sessions.ListByCohort(ctx, student.Department, student.Year, student.Division, f)
	if err != nil {
		return nil, apperrors.Store(err)
	}

	records := make([]Record, 0, len(sessions))
	for _, sess := range sessions {
		var entry *model.AttendanceEntry
		for i := range sess.AttendedStudents {
			if sess.AttendedStudents[i].UserID == student.ID {
				entry = &sess.AttendedStudents[i]
				break
			}
		}
		isPresent := entry != nil
		if presence == "present" && !isPresent {
			continue
		}
		if presence == "absent" && isPresent {
			continue
		}

		rec := Record{
			SessionID:  sess.SessionID,
			Date:       sess.Date,
			Subject:    sess.Subject,
			Department: sess.Department,
			Year:       sess.Year,
			Division:   sess.Division,
			StartTime:  sess.StartTime,
			EndTime:    sess.EndTime,
			Status:     sess.Status,
			Teacher:    sess.TeacherName,
			IsPresent:  isPresent,
		}
		if entry != nil {
			rec.MarkedAt = &entry.MarkedAt
			rec.Confidence = &entry.Confidence
		}
		records = append(records, rec)
	}
	return records, nil
}
