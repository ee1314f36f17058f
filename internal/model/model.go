package model

import "time"

// Role identifies what a user account may do.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleStaff   Role = "staff"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleStaff
}

// CanCreateSessions reports whether the role may open attendance sessions.
func (r Role) CanCreateSessions() bool {
	return r == RoleTeacher || r == RoleStaff
}

// ContactInfo holds optional contact details for a user.
type ContactInfo struct {
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// User is a person with one role. Students additionally carry a unique
// student identifier, a cohort triple (department, year, division) and
// optionally a face template produced by the recognition service.
type User struct {
	ID            string       `json:"id"`
	Email         string       `json:"email"`
	PasswordHash  string       `json:"-"`
	Name          string       `json:"name"`
	Role          Role         `json:"role"`
	StudentID     *string      `json:"studentId,omitempty"`
	Department    string       `json:"department,omitempty"`
	Year          int          `json:"year,omitempty"`
	Division      string       `json:"division,omitempty"`
	ContactInfo   *ContactInfo `json:"contactInfo,omitempty"`
	FaceEmbedding []float64    `json:"-"`
	HasFaceData   bool         `json:"hasFaceData"`
	IsActive      bool         `json:"isActive"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// SessionStatus is the lifecycle state of an attendance session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether the status is a known value.
func (s SessionStatus) Valid() bool {
	return s == StatusActive || s == StatusCompleted || s == StatusCancelled
}

// AttendanceEntry is one student's presence record, embedded in a session.
type AttendanceEntry struct {
	StudentID  string    `json:"studentId"`
	UserID     string    `json:"userId"`
	MarkedAt   time.Time `json:"markedAt"`
	Confidence float64   `json:"confidence"`
}

// AttendanceSession is one class meeting's attendance window.
// TotalStudents is a snapshot of the cohort size taken at creation and
// never changes afterwards.
type AttendanceSession struct {
	SessionID        string            `json:"sessionId"`
	Date             time.Time         `json:"date"`
	Subject          string            `json:"subject"`
	Department       string            `json:"department"`
	Year             int               `json:"year"`
	Division         string            `json:"division"`
	Semester         string            `json:"semester,omitempty"`
	TeacherID        string            `json:"teacherId"`
	TeacherName      string            `json:"teacherName,omitempty"`
	StartTime        time.Time         `json:"startTime"`
	EndTime          *time.Time        `json:"endTime,omitempty"`
	Status           SessionStatus     `json:"status"`
	AttendedStudents []AttendanceEntry `json:"attendedStudents"`
	TotalStudents    int               `json:"totalStudents"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Entry returns the attendance entry for studentID, or nil.
func (s *AttendanceSession) Entry(studentID string) *AttendanceEntry {
	for i := range s.AttendedStudents {
		if s.AttendedStudents[i].StudentID == studentID {
			return &s.AttendedStudents[i]
		}
	}
	return nil
}

// Candidate is a (studentId, embedding) pair supplied to the recognition
// service for a class-scoped match. Name rides along for display only and
// is never sent to the recognition service.
type Candidate struct {
	StudentID string    `json:"student_id"`
	Embedding []float64 `json:"embedding"`
	Name      string    `json:"name,omitempty"`
}
