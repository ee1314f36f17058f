package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/apperrors"
	"campusattend/internal/model"
)

type fakeStore struct {
	sessions map[string]*model.AttendanceSession

	inserted    *model.AttendanceSession
	lastEndTime *time.Time
}

func newFakeStore(sessions ...*model.AttendanceSession) *fakeStore {
	f := &fakeStore{sessions: make(map[string]*model.AttendanceSession)}
	for _, s := range sessions {
		f.sessions[s.SessionID] = s
	}
	return f
}

func (f *fakeStore) Insert(_ context.Context, s model.AttendanceSession) (model.AttendanceSession, error) {
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	f.inserted = &s
	f.sessions[s.SessionID] = &s
	return s, nil
}

func (f *fakeStore) FindBySessionID(_ context.Context, id string) (*model.AttendanceSession, error) {
	return f.sessions[id], nil
}

func (f *fakeStore) FindActiveBySessionID(_ context.Context, id string) (*model.AttendanceSession, error) {
	s := f.sessions[id]
	if s == nil || s.Status != model.StatusActive {
		return nil, nil
	}
	return s, nil
}

func (f *fakeStore) TransitionStatus(_ context.Context, id string, status model.SessionStatus, endTime *time.Time) (bool, error) {
	s := f.sessions[id]
	if s == nil || s.Status != model.StatusActive {
		return false, nil
	}
	s.Status = status
	s.EndTime = endTime
	f.lastEndTime = endTime
	return true, nil
}

func (f *fakeStore) List(_ context.Context, _ Filters, limit, offset int) ([]model.AttendanceSession, error) {
	var out []model.AttendanceSession
	for _, s := range f.sessions {
		out = append(out, *s)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) Count(context.Context, Filters) (int, error) {
	return len(f.sessions), nil
}

func (f *fakeStore) ListByCohort(context.Context, string, int, string, Filters) ([]model.AttendanceSession, error) {
	return nil, nil
}

type fakeDirectory struct {
	users       map[string]model.User
	cohortCount int
}

func (f *fakeDirectory) FindByID(_ context.Context, id string) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, apperrors.NotFound("user")
	}
	return u, nil
}

func (f *fakeDirectory) CohortCount(context.Context, string, int, string) (int, error) {
	return f.cohortCount, nil
}

func validInput() CreateInput {
	return CreateInput{
		Date:       time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Subject:    "Algorithms",
		Department: "CS",
		Year:       2,
		Division:   "A",
		TeacherID:  "teacher-1",
	}
}

func teacherDir(count int) *fakeDirectory {
	return &fakeDirectory{
		users: map[string]model.User{
			"teacher-1": {ID: "teacher-1", Name: "Prof. Rao", Role: model.RoleTeacher},
			"student-1": {ID: "student-1", Name: "A Student", Role: model.RoleStudent},
		},
		cohortCount: count,
	}
}

func TestCreate_SnapshotsCohortCount(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, teacherDir(30))

	sess, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, 30, sess.TotalStudents)
	assert.Equal(t, model.StatusActive, sess.Status)
	assert.NotEmpty(t, sess.SessionID)
	assert.Equal(t, "Prof. Rao", sess.TeacherName)
	assert.Empty(t, sess.AttendedStudents)
	assert.False(t, sess.StartTime.IsZero())
}

func TestCreate_MissingFields(t *testing.T) {
	svc := NewService(newFakeStore(), teacherDir(5))

	in := validInput()
	in.Subject = ""
	_, err := svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	in = validInput()
	in.Year = 0
	_, err = svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreate_TeacherReference(t *testing.T) {
	svc := NewService(newFakeStore(), teacherDir(5))

	in := validInput()
	in.TeacherID = "missing"
	_, err := svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	in.TeacherID = "student-1"
	_, err = svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, apperrors.ErrValidation, "students may not open sessions")
}

func activeSession(id string) *model.AttendanceSession {
	return &model.AttendanceSession{
		SessionID: id,
		Status:    model.StatusActive,
		TeacherID: "teacher-1",
	}
}

func TestTransitionStatus_CompletedSetsEndTime(t *testing.T) {
	store := newFakeStore(activeSession("sess-1"))
	svc := NewService(store, teacherDir(0))

	sess, err := svc.TransitionStatus(context.Background(), "sess-1", model.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, sess.Status)
	require.NotNil(t, store.lastEndTime)
}

func TestTransitionStatus_CancelledLeavesEndTimeUnset(t *testing.T) {
	store := newFakeStore(activeSession("sess-1"))
	svc := NewService(store, teacherDir(0))

	sess, err := svc.TransitionStatus(context.Background(), "sess-1", model.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, sess.Status)
	assert.Nil(t, store.lastEndTime)
}

func TestTransitionStatus_TerminalIsFinal(t *testing.T) {
	store := newFakeStore(activeSession("sess-1"))
	svc := NewService(store, teacherDir(0))

	_, err := svc.TransitionStatus(context.Background(), "sess-1", model.StatusCompleted)
	require.NoError(t, err)

	_, err = svc.TransitionStatus(context.Background(), "sess-1", model.StatusCancelled)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = svc.TransitionStatus(context.Background(), "sess-1", model.StatusCompleted)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestTransitionStatus_RejectsNonTerminalTarget(t *testing.T) {
	store := newFakeStore(activeSession("sess-1"))
	svc := NewService(store, teacherDir(0))

	_, err := svc.TransitionStatus(context.Background(), "sess-1", model.StatusActive)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStatus)

	_, err = svc.TransitionStatus(context.Background(), "sess-1", model.SessionStatus("archived"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidStatus)
}

func TestTransitionStatus_UnknownSession(t *testing.T) {
	svc := NewService(newFakeStore(), teacherDir(0))

	_, err := svc.TransitionStatus(context.Background(), "missing", model.StatusCompleted)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestList_PaginationMetadata(t *testing.T) {
	store := newFakeStore(
		activeSession("a"), activeSession("b"), activeSession("c"),
		activeSession("d"), activeSession("e"),
	)
	svc := NewService(store, teacherDir(0))

	page, err := svc.List(context.Background(), Filters{}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 2, page.CurrentPage)
	assert.True(t, page.HasNext)
	assert.True(t, page.HasPrev)
	assert.Len(t, page.Sessions, 2)
}
