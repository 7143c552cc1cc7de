package scope

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/models"
)

func i64(v int64) *int64 { return &v }

func TestSubjectOf(t *testing.T) {
	s, ok := SubjectOf(&models.User{ID: 1, Role: models.Admin})
	require.True(t, ok)
	assert.Equal(t, Admin{ID: 1}, s)

	_, ok = SubjectOf(&models.User{ID: 2, Role: models.Leader})
	assert.False(t, ok, "pending leader has no subject")

	_, ok = SubjectOf(&models.User{ID: 3, Role: models.Curator, IsRejected: true})
	assert.False(t, ok)

	s, ok = SubjectOf(&models.User{ID: 4, Role: models.Curator, IsConfirmed: true})
	require.True(t, ok)
	assert.Equal(t, models.Curator, s.Role())

	_, ok = SubjectOf(&models.User{ID: 5, Role: "student", IsConfirmed: true})
	assert.False(t, ok)
}

func TestFromGroups(t *testing.T) {
	groups := []models.Group{
		{ID: 1, Name: "Э-101", CuratorID: i64(10), LeaderID: i64(20)},
		{ID: 2, Name: "Э-102", CuratorID: i64(10)},
		{ID: 3, Name: "Б-101", CuratorID: i64(11), LeaderID: i64(21)},
	}

	admin := FromGroups(Admin{ID: 1}, groups)
	assert.True(t, admin.All)
	assert.True(t, admin.ContainsStudent(models.Student{}))

	cur := FromGroups(Curator{ID: 10}, groups)
	assert.Equal(t, []int64{1, 2}, cur.IDs())
	assert.False(t, cur.ContainsGroup(3))
	assert.False(t, cur.ContainsStudent(models.Student{}), "ungrouped student is admin-only")

	lead := FromGroups(Leader{ID: 21}, groups)
	assert.Equal(t, []int64{3}, lead.IDs())

	none := FromGroups(Leader{ID: 99}, groups)
	assert.True(t, none.Empty())
	assert.True(t, none.Visibility().Empty())
}

func TestPermissions(t *testing.T) {
	admin, cur, lead := Admin{ID: 1}, Curator{ID: 2}, Leader{ID: 3}

	assert.NoError(t, CanWriteStudents(admin))
	assert.NoError(t, CanWriteStudents(cur))
	assert.True(t, errors.Is(CanWriteStudents(lead), apperr.ErrAuthorization))

	for _, s := range []Subject{admin, cur, lead} {
		assert.NoError(t, CanReadStudents(s))
		assert.NoError(t, CanWriteAbsences(s))
	}
	assert.NoError(t, CanManageGroups(admin))
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(CanManageGroups(cur)))
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(CanManageGroups(lead)))
}

// Случайные графы: видимые студенты и пропуски совпадают с определением через роли.
func TestScopeContainment_RandomGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		nGroups := rng.Intn(6)
		curators := []int64{100, 101, 102}
		leaders := []int64{200, 201, 202, 203}

		var groups []models.Group
		usedLeaders := map[int64]bool{}
		for i := 0; i < nGroups; i++ {
			g := models.Group{ID: int64(i + 1)}
			if rng.Intn(3) > 0 {
				g.CuratorID = i64(curators[rng.Intn(len(curators))])
			}
			l := leaders[rng.Intn(len(leaders))]
			if rng.Intn(2) == 0 && !usedLeaders[l] {
				usedLeaders[l] = true
				g.LeaderID = i64(l)
			}
			groups = append(groups, g)
		}

		var students []models.Student
		for i := 0; i < rng.Intn(15); i++ {
			st := models.Student{ID: int64(i + 1)}
			if nGroups > 0 && rng.Intn(5) > 0 {
				st.GroupID = i64(int64(rng.Intn(nGroups) + 1))
			}
			students = append(students, st)
		}
		type absence struct{ studentID int64 }
		var absences []absence
		for i := 0; i < rng.Intn(30) && len(students) > 0; i++ {
			absences = append(absences, absence{studentID: students[rng.Intn(len(students))].ID})
		}

		subjects := []Subject{Admin{ID: 1}}
		for _, c := range curators {
			subjects = append(subjects, Curator{ID: c})
		}
		for _, l := range leaders {
			subjects = append(subjects, Leader{ID: l})
		}

		for _, s := range subjects {
			sc := FromGroups(s, groups)
			byID := map[int64]models.Student{}
			for _, st := range students {
				byID[st.ID] = st
				want := expectedVisible(s, groups, st)
				assert.Equal(t, want, sc.ContainsStudent(st), "iter %d subject %#v student %d", iter, s, st.ID)
			}
			for _, a := range absences {
				st := byID[a.studentID]
				assert.Equal(t, sc.ContainsStudent(st), expectedVisible(s, groups, st))
			}
			if l, ok := s.(Leader); ok {
				n := 0
				for _, g := range groups {
					if sc.ContainsGroup(g.ID) {
						n++
						require.NotNil(t, g.LeaderID)
						assert.Equal(t, l.ID, *g.LeaderID)
					}
				}
				assert.LessOrEqual(t, n, 1)
			}
		}
	}
}

func expectedVisible(s Subject, groups []models.Group, st models.Student) bool {
	if _, ok := s.(Admin); ok {
		return true
	}
	if st.GroupID == nil {
		return false
	}
	for _, g := range groups {
		if g.ID != *st.GroupID {
			continue
		}
		switch v := s.(type) {
		case Curator:
			return g.CuratorID != nil && *g.CuratorID == v.ID
		case Leader:
			return g.LeaderID != nil && *g.LeaderID == v.ID
		}
	}
	return false
}
