package directory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"campusattend/internal/apperrors"
	"campusattend/internal/model"
)

type fakeStore struct {
	users map[string]*model.User

	nextID int
}

func newFakeStore(users ...*model.User) *fakeStore {
	f := &fakeStore{users: make(map[string]*model.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeStore) Insert(_ context.Context, u model.User) (model.User, error) {
	f.nextID++
	u.ID = "user-" + string(rune('0'+f.nextID))
	u.IsActive = true
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	f.users[u.ID] = &u
	return u, nil
}

func (f *fakeStore) FindByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindActiveStudent(_ context.Context, studentID string) (*model.User, error) {
	for _, u := range f.users {
		if u.Role == model.RoleStudent && u.IsActive && u.StudentID != nil && *u.StudentID == studentID {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindByStudentID(_ context.Context, studentID string) (*model.User, error) {
	for _, u := range f.users {
		if u.Role == model.RoleStudent && u.StudentID != nil && *u.StudentID == studentID {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CohortCount(_ context.Context, department string, year int, division string) (int, error) {
	n := 0
	for _, u := range f.users {
		if u.Role == model.RoleStudent && u.IsActive &&
			u.Department == department && u.Year == year && u.Division == division {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CohortWithFaceData(_ context.Context, department string, year int, division string) ([]model.Candidate, error) {
	var candidates []model.Candidate
	for _, u := range f.users {
		if u.Role == model.RoleStudent && u.IsActive && len(u.FaceEmbedding) > 0 &&
			u.Department == department && u.Year == year && u.Division == division {
			candidates = append(candidates, model.Candidate{StudentID: *u.StudentID, Embedding: u.FaceEmbedding, Name: u.Name})
		}
	}
	return candidates, nil
}

func (f *fakeStore) AllWithFaceData(context.Context) ([]model.Candidate, error) {
	var candidates []model.Candidate
	for _, u := range f.users {
		if u.Role == model.RoleStudent && u.IsActive && len(u.FaceEmbedding) > 0 {
			candidates = append(candidates, model.Candidate{StudentID: *u.StudentID, Embedding: u.FaceEmbedding})
		}
	}
	return candidates, nil
}

func (f *fakeStore) SearchStudents(context.Context, string) ([]model.User, error) {
	return nil, nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, id, name, email, department string, year int, division string, contact *model.ContactInfo) (*model.User, error) {
	u := f.users[id]
	if u == nil {
		return nil, nil
	}
	u.Name, u.Email = name, email
	u.Department, u.Year, u.Division = department, year, division
	u.ContactInfo = contact
	return u, nil
}

func (f *fakeStore) SetFaceEmbedding(_ context.Context, id string, embedding []float64) error {
	f.users[id].FaceEmbedding = embedding
	return nil
}

func (f *fakeStore) Deactivate(_ context.Context, id string) error {
	f.users[id].IsActive = false
	return nil
}

// fakeCache records which cohort triples were invalidated.
type fakeCache struct {
	entries     map[string][]model.Candidate
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]model.Candidate)}
}

func cohortKey(department string, year int, division string) string {
	return department + ":" + string(rune('0'+year)) + ":" + division
}

func (f *fakeCache) GetCohortCandidates(_ context.Context, department string, year int, division string) ([]model.Candidate, bool) {
	c, ok := f.entries[cohortKey(department, year, division)]
	return c, ok
}

func (f *fakeCache) SetCohortCandidates(_ context.Context, department string, year int, division string, candidates []model.Candidate, _ time.Duration) {
	f.entries[cohortKey(department, year, division)] = candidates
}

func (f *fakeCache) InvalidateCohort(_ context.Context, department string, year int, division string) {
	key := cohortKey(department, year, division)
	delete(f.entries, key)
	f.invalidated = append(f.invalidated, key)
}

func existingStudent(id, studentID string) *model.User {
	sid := studentID
	return &model.User{
		ID:         id,
		Email:      strings.ToLower(studentID) + "@campus.edu",
		Name:       "Student " + studentID,
		Role:       model.RoleStudent,
		StudentID:  &sid,
		Department: "CS",
		Year:       2,
		Division:   "A",
		IsActive:   true,
	}
}

func TestRegister_StudentIDRoleRules(t *testing.T) {
	svc := NewService(newFakeStore(), nil, 0)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email: "t@campus.edu", Password: "secret123", Name: "T", Role: model.RoleTeacher,
		StudentID: "S100",
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation, "non-student with a student id")

	_, err = svc.Register(context.Background(), RegisterInput{
		Email: "s@campus.edu", Password: "secret123", Name: "S", Role: model.RoleStudent,
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation, "student without a student id")

	_, err = svc.Register(context.Background(), RegisterInput{
		Email: "x@campus.edu", Password: "secret123", Name: "X", Role: "janitor",
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation, "unknown role")
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := NewService(newFakeStore(existingStudent("user-1", "S100")), nil, 0)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email: "S100@campus.edu", Password: "secret123", Name: "Imposter", Role: model.RoleTeacher,
	})
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)
}

func TestRegister_DuplicateStudentID(t *testing.T) {
	svc := NewService(newFakeStore(existingStudent("user-1", "S100")), nil, 0)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email: "new@campus.edu", Password: "secret123", Name: "New", Role: model.RoleStudent,
		StudentID: "S100", Department: "CS", Year: 2, Division: "A",
	})
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)
}

func TestRegister_DuplicateStudentIDOfDeactivatedStudent(t *testing.T) {
	deactivated := existingStudent("user-1", "S100")
	deactivated.IsActive = false
	svc := NewService(newFakeStore(deactivated), nil, 0)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email: "new@campus.edu", Password: "secret123", Name: "New", Role: model.RoleStudent,
		StudentID: "S100", Department: "CS", Year: 2, Division: "A",
	})
	assert.ErrorIs(t, err, apperrors.ErrDuplicate, "identifiers of deactivated students stay reserved")
}

func TestRegister_StudentInvalidatesCohortCache(t *testing.T) {
	cache := newFakeCache()
	svc := NewService(newFakeStore(), cache, time.Minute)

	user, err := svc.Register(context.Background(), RegisterInput{
		Email: "new@campus.edu", Password: "secret123", Name: "New", Role: model.RoleStudent,
		StudentID: "S100", Department: "CS", Year: 2, Division: "A",
	})
	require.NoError(t, err)
	assert.True(t, user.IsActive)
	assert.Contains(t, cache.invalidated, cohortKey("CS", 2, "A"))
}

func TestAuthenticate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	active := existingStudent("user-1", "S100")
	active.PasswordHash = string(hash)
	svc := NewService(newFakeStore(active), nil, 0)

	user, err := svc.Authenticate(context.Background(), "S100@campus.edu", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)

	_, err = svc.Authenticate(context.Background(), "S100@campus.edu", "wrong-pass")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = svc.Authenticate(context.Background(), "nobody@campus.edu", "secret123")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestAuthenticate_InactiveUserRejected(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	inactive := existingStudent("user-1", "S100")
	inactive.PasswordHash = string(hash)
	inactive.IsActive = false
	svc := NewService(newFakeStore(inactive), nil, 0)

	_, err = svc.Authenticate(context.Background(), "S100@campus.edu", "secret123")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestUpdateStudent_CohortMoveInvalidatesBothCohorts(t *testing.T) {
	cache := newFakeCache()
	svc := NewService(newFakeStore(existingStudent("user-1", "S100")), cache, time.Minute)

	updated, err := svc.UpdateStudent(context.Background(), "user-1", UpdateInput{
		Name: "Student S100", Email: "S100@campus.edu",
		Department: "CS", Year: 3, Division: "B",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Year)
	assert.Equal(t, "B", updated.Division)

	assert.Contains(t, cache.invalidated, cohortKey("CS", 2, "A"), "old cohort candidate set")
	assert.Contains(t, cache.invalidated, cohortKey("CS", 3, "B"), "new cohort candidate set")
}

func TestUpdateStudent_RejectsNonStudent(t *testing.T) {
	teacher := &model.User{ID: "user-1", Email: "t@campus.edu", Name: "T", Role: model.RoleTeacher, IsActive: true}
	svc := NewService(newFakeStore(teacher), nil, 0)

	_, err := svc.UpdateStudent(context.Background(), "user-1", UpdateInput{
		Name: "T", Email: "t@campus.edu",
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestDeactivateStudent(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore(existingStudent("user-1", "S100"))
	svc := NewService(store, cache, time.Minute)

	require.NoError(t, svc.DeactivateStudent(context.Background(), "user-1"))
	assert.False(t, store.users["user-1"].IsActive)
	assert.Contains(t, cache.invalidated, cohortKey("CS", 2, "A"))

	student, err := svc.FindActiveStudent(context.Background(), "S100")
	require.NoError(t, err)
	assert.Nil(t, student, "deactivated students drop out of active lookups")
}

func TestDeactivateStudent_RejectsNonStudent(t *testing.T) {
	teacher := &model.User{ID: "user-1", Email: "t@campus.edu", Name: "T", Role: model.RoleTeacher, IsActive: true}
	svc := NewService(newFakeStore(teacher), nil, 0)

	err := svc.DeactivateStudent(context.Background(), "user-1")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestSaveFaceTemplate_InvalidatesCohort(t *testing.T) {
	cache := newFakeCache()
	cache.entries[cohortKey("CS", 2, "A")] = []model.Candidate{{StudentID: "stale"}}
	store := newFakeStore(existingStudent("user-1", "S100"))
	svc := NewService(store, cache, time.Minute)

	require.NoError(t, svc.SaveFaceTemplate(context.Background(), "user-1", []float64{0.1, 0.2}))
	assert.Equal(t, []float64{0.1, 0.2}, store.users["user-1"].FaceEmbedding)
	assert.Contains(t, cache.invalidated, cohortKey("CS", 2, "A"))

	_, ok := cache.entries[cohortKey("CS", 2, "A")]
	assert.False(t, ok, "stale candidate set must be gone")
}

func TestCohortWithFaceData_CacheThrough(t *testing.T) {
	cache := newFakeCache()
	enrolled := existingStudent("user-1", "S100")
	enrolled.FaceEmbedding = []float64{0.1}
	svc := NewService(newFakeStore(enrolled), cache, time.Minute)

	first, err := svc.CohortWithFaceData(context.Background(), "CS", 2, "A")
	require.NoError(t, err)
	require.Len(t, first, 1)

	cached, ok := cache.entries[cohortKey("CS", 2, "A")]
	require.True(t, ok, "successful lookup populates the cache")
	assert.Equal(t, first, cached)

	// A second lookup is served from the cache even if the store changes.
	enrolled.FaceEmbedding = nil
	second, err := svc.CohortWithFaceData(context.Background(), "CS", 2, "A")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
