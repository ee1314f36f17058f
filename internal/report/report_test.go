package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/model"
	"campusattend/internal/session"
)

func sessionWith(total int, entries ...model.AttendanceEntry) model.AttendanceSession {
	return model.AttendanceSession{
		SessionID:        "sess-1",
		TotalStudents:    total,
		AttendedStudents: entries,
	}
}

func TestStats_Rate(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		present  int
		wantRate float64
	}{
		{"empty cohort", 0, 0, 0},
		{"full attendance", 4, 4, 100},
		{"two decimals", 3, 1, 33.33},
		{"half", 30, 15, 50},
		{"rounding up", 7, 5, 71.43},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := make([]model.AttendanceEntry, tt.present)
			for i := range entries {
				entries[i] = model.AttendanceEntry{StudentID: string(rune('a' + i))}
			}
			stats := Stats(sessionWith(tt.total, entries...))
			assert.Equal(t, tt.wantRate, stats.AttendanceRate)
			assert.Equal(t, tt.present, stats.PresentCount)
		})
	}
}

func TestStats_AbsentCount(t *testing.T) {
	stats := Stats(sessionWith(30, model.AttendanceEntry{StudentID: "S100"}))
	assert.Equal(t, 29, stats.AbsentCount)
}

func TestStats_AbsentClampedAtZero(t *testing.T) {
	// A stale snapshot must never render a negative absent count.
	stats := Stats(sessionWith(1,
		model.AttendanceEntry{StudentID: "S100"},
		model.AttendanceEntry{StudentID: "S200"},
	))
	assert.Equal(t, 0, stats.AbsentCount)
	assert.Equal(t, 2, stats.PresentCount)
}

type fakeLister struct {
	sessions []model.AttendanceSession
}

func (f *fakeLister) ListByCohort(context.Context, string, int, string, session.Filters) ([]model.AttendanceSession, error) {
	return f.sessions, nil
}

func historyStudent() model.User {
	sid := "S100"
	return model.User{
		ID:         "user-S100",
		Name:       "Student S100",
		Role:       model.RoleStudent,
		StudentID:  &sid,
		Department: "CS",
		Year:       2,
		Division:   "A",
	}
}

func TestStudentHistory_DerivesPresence(t *testing.T) {
	markedAt := time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)
	lister := &fakeLister{sessions: []model.AttendanceSession{
		{
			SessionID: "present-session",
			AttendedStudents: []model.AttendanceEntry{
				{StudentID: "S100", UserID: "user-S100", MarkedAt: markedAt, Confidence: 0.9},
			},
		},
		{SessionID: "absent-session"},
	}}
	svc := NewService(lister)

	records, err := svc.StudentHistory(context.Background(), historyStudent(), session.Filters{}, "")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.True(t, records[0].IsPresent)
	require.NotNil(t, records[0].MarkedAt)
	assert.Equal(t, markedAt, *records[0].MarkedAt)
	require.NotNil(t, records[0].Confidence)
	assert.Equal(t, 0.9, *records[0].Confidence)

	assert.False(t, records[1].IsPresent)
	assert.Nil(t, records[1].MarkedAt)
}

func TestStudentHistory_PresenceFilter(t *testing.T) {
	lister := &fakeLister{sessions: []model.AttendanceSession{
		{
			SessionID: "present-session",
			AttendedStudents: []model.AttendanceEntry{
				{StudentID: "S100", UserID: "user-S100"},
			},
		},
		{SessionID: "absent-session"},
	}}
	svc := NewService(lister)

	present, err := svc.StudentHistory(context.Background(), historyStudent(), session.Filters{}, "present")
	require.NoError(t, err)
	require.Len(t, present, 1)
	assert.Equal(t, "present-session", present[0].SessionID)

	absent, err := svc.StudentHistory(context.Background(), historyStudent(), session.Filters{}, "absent")
	require.NoError(t, err)
	require.Len(t, absent, 1)
	assert.Equal(t, "absent-session", absent[0].SessionID)
}

func TestStudentHistory_RejectsNonStudent(t *testing.T) {
	svc := NewService(&fakeLister{})
	teacher := model.User{ID: "t1", Role: model.RoleTeacher}

	_, err := svc.StudentHistory(context.Background(), teacher, session.Filters{}, "")
	assert.Error(t, err)
}
