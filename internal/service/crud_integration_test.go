//go:build testutil
// +build testutil

package service_test

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/auth"
	"github.com/Spok95/attendance-web/internal/db"
	"github.com/Spok95/attendance-web/internal/models"
	"github.com/Spok95/attendance-web/internal/scope"
	"github.com/Spok95/attendance-web/internal/service"
)

// confirmed регистрирует куратора (или старосту при groupID != 0) и подтверждает его.
func confirmed(t *testing.T, svc *service.Service, admin scope.Subject, name, phone string, groupID int64) (*models.User, scope.Subject) {
	t.Helper()
	ctx := context.Background()
	var (
		u   *models.User
		err error
	)
	if groupID != 0 {
		u, err = svc.Identity.RegisterLeader(ctx, service.RegisterLeaderInput{
			FullName: name, Phone: phone, Password: "secret1", GroupID: groupID,
		})
	} else {
		u, err = svc.Identity.RegisterCurator(ctx, service.RegisterCuratorInput{
			FullName: name, Phone: phone, Password: "secret1",
		})
	}
	require.NoError(t, err)
	_, err = svc.Identity.Confirm(ctx, admin, u.ID)
	require.NoError(t, err)
	return u, subjectOf(t, svc, phone, "secret1")
}

func TestGroups_NameUniqueness(t *testing.T) {
	svc, admin := fresh(t)
	ctx := context.Background()
	e101 := groupID(t, handle.DB, "Э-101")

	_, err := svc.Groups.Create(ctx, admin, service.GroupInput{Name: "Э-101"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	_, err = svc.Groups.Create(ctx, admin, service.GroupInput{Name: "  Э-101  "})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	g, err := svc.Groups.Create(ctx, admin, service.GroupInput{Name: "э-101"})
	require.NoError(t, err)
	assert.Equal(t, "э-101", g.Name)

	// переименование в собственное имя — не конфликт
	g, err = svc.Groups.Update(ctx, admin, e101, service.GroupInput{Name: "Э-101"})
	require.NoError(t, err)
	assert.Equal(t, "Э-101", g.Name)

	_, err = svc.Groups.Update(ctx, admin, e101, service.GroupInput{Name: "Э-102"})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	_, err = svc.Groups.Create(ctx, admin, service.GroupInput{Name: " "})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	assert.Equal(t, 1, auditCount(t, models.ActionAddGroup))
	assert.Equal(t, 1, auditCount(t, models.ActionEditGroup))
}

func TestGroups_CuratorMustBeConfirmedCurator(t *testing.T) {
	svc, admin := fresh(t)
	ctx := context.Background()
	b101 := groupID(t, handle.DB, "Б-101")

	pending, err := svc.Identity.RegisterCurator(ctx, service.RegisterCuratorInput{
		FullName: "Ждёт", Phone: "+78000000001", Password: "secret1",
	})
	require.NoError(t, err)
	leader, _ := confirmed(t, svc, admin, "Староста", "+78000000002", b101)
	curator, _ := confirmed(t, svc, admin, "Куратор", "+78000000003", 0)
	missing := int64(999999)

	for _, id := range []int64{pending.ID, leader.ID, admin.UserID(), missing} {
		id := id
		_, err := svc.Groups.Create(ctx, admin, service.GroupInput{Name: "Н-1", CuratorID: &id})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "curator id %d", id)
	}

	g, err := svc.Groups.Create(ctx, admin, service.GroupInput{Name: "Н-1", CuratorID: &curator.ID})
	require.NoError(t, err)
	require.NotNil(t, g.CuratorID)
	assert.Equal(t, curator.ID, *g.CuratorID)
}

func TestStudents_CuratorScope(t *testing.T) {
	svc, admin := fresh(t)
	ctx := context.Background()
	e101 := groupID(t, handle.DB, "Э-101")
	b101 := groupID(t, handle.DB, "Б-101")

	curator, cur := confirmed(t, svc, admin, "Куратор", "+78100000001", 0)
	_, err := svc.Groups.Update(ctx, admin, e101, service.GroupInput{Name: "Э-101", CuratorID: &curator.ID})
	require.NoError(t, err)

	_, err = svc.Students.Create(ctx, cur, service.StudentInput{FullName: "Чужой", GroupID: &b101})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
	_, err = svc.Students.Create(ctx, cur, service.StudentInput{FullName: "Без группы"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	own, err := svc.Students.Create(ctx, cur, service.StudentInput{FullName: "Свой", GroupID: &e101})
	require.NoError(t, err)

	_, err = svc.Students.Update(ctx, cur, own.ID, service.StudentInput{FullName: "Свой", GroupID: &b101})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	foreign, err := svc.Students.Create(ctx, admin, service.StudentInput{FullName: "Чужой", GroupID: &b101})
	require.NoError(t, err)
	_, err = svc.Students.Update(ctx, cur, foreign.ID, service.StudentInput{FullName: "Чужой", GroupID: &e101})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(svc.Students.Delete(ctx, cur, foreign.ID)))

	st, err := db.GetStudentByID(ctx, handle.DB, own.ID)
	require.NoError(t, err)
	require.NotNil(t, st.GroupID)
	assert.Equal(t, e101, *st.GroupID)
	assert.Equal(t, 0, auditCount(t, models.ActionEditStudent))
}

func TestAbsences_ScopeOnUpdateAndDelete(t *testing.T) {
	svc, admin := fresh(t)
	ctx := context.Background()
	e101 := groupID(t, handle.DB, "Э-101")
	b101 := groupID(t, handle.DB, "Б-101")

	_, lead := confirmed(t, svc, admin, "Староста", "+78200000001", e101)
	own, err := svc.Students.Create(ctx, admin, service.StudentInput{FullName: "Свой", GroupID: &e101})
	require.NoError(t, err)
	foreign, err := svc.Students.Create(ctx, admin, service.StudentInput{FullName: "Чужой", GroupID: &b101})
	require.NoError(t, err)

	mine, err := svc.Absences.Create(ctx, lead, service.AbsenceInput{StudentID: own.ID, Date: "2026-09-01"})
	require.NoError(t, err)
	theirs, err := svc.Absences.Create(ctx, admin, service.AbsenceInput{StudentID: foreign.ID, Date: "2026-09-01"})
	require.NoError(t, err)

	// перенос своего пропуска на чужого студента
	_, err = svc.Absences.Update(ctx, lead, mine.ID, service.AbsenceInput{StudentID: foreign.ID, Date: "2026-09-02"})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
	// правка чужого пропуска
	_, err = svc.Absences.Update(ctx, lead, theirs.ID, service.AbsenceInput{StudentID: own.ID, Date: "2026-09-02"})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(svc.Absences.Delete(ctx, lead, theirs.ID)))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(svc.Absences.Delete(ctx, lead, 999999)))

	v, err := db.GetAbsenceByID(ctx, handle.DB, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, own.ID, v.StudentID)
	v, err = db.GetAbsenceByID(ctx, handle.DB, theirs.ID)
	require.NoError(t, err)
	require.NotNil(t, v)

	require.NoError(t, svc.Absences.Delete(ctx, lead, mine.ID))
	assert.Equal(t, 0, auditCount(t, models.ActionEditAbsence))
	assert.Equal(t, 1, auditCount(t, models.ActionDeleteAbsence))
}

func TestDeleteUser_NullsGroupReferences(t *testing.T) {
	svc, admin := fresh(t)
	ctx := context.Background()
	e101 := groupID(t, handle.DB, "Э-101")

	curator, _ := confirmed(t, svc, admin, "Куратор", "+78300000001", 0)
	leader, _ := confirmed(t, svc, admin, "Староста", "+78300000002", e101)
	_, err := svc.Groups.Update(ctx, admin, e101, service.GroupInput{Name: "Э-101", CuratorID: &curator.ID})
	require.NoError(t, err)
	st, err := svc.Students.Create(ctx, admin, service.StudentInput{FullName: "Студент", GroupID: &e101})
	require.NoError(t, err)

	require.NoError(t, svc.Identity.DeleteUser(ctx, admin, curator.ID))
	require.NoError(t, svc.Identity.DeleteUser(ctx, admin, leader.ID))

	g, err := db.GetGroupByID(ctx, handle.DB, e101)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Nil(t, g.CuratorID)
	assert.Nil(t, g.LeaderID)

	left, err := db.GetStudentByID(ctx, handle.DB, st.ID)
	require.NoError(t, err)
	assert.NotNil(t, left)

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(svc.Identity.DeleteUser(ctx, admin, admin.UserID())))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(svc.Identity.DeleteUser(ctx, admin, curator.ID)))
	assert.Equal(t, 2, auditCount(t, models.ActionDeleteUser))
}

func TestUpdateSettings_Conflicts(t *testing.T) {
	svc, admin := fresh(t)
	ctx := context.Background()
	_, cur := confirmed(t, svc, admin, "Куратор", "+78400000001", 0)

	_, err := svc.Identity.UpdateSettings(ctx, cur, service.SettingsInput{
		FullName: "Куратор", Phone: "+70000000000",
	})
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = svc.Identity.UpdateSettings(ctx, cur, service.SettingsInput{
		FullName: "Куратор", Phone: "+78400000001", CurrentPassword: "wrong-pass", NewPassword: "secret2",
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.Identity.Authenticate(ctx, "+78400000001", "secret2")
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))

	u, err := svc.Identity.UpdateSettings(ctx, cur, service.SettingsInput{
		FullName: "Куратор Новый", Phone: "+78400000009", CurrentPassword: "secret1", NewPassword: "secret2",
	})
	require.NoError(t, err)
	assert.Equal(t, "Куратор Новый", u.FullName)
	_, err = svc.Identity.Authenticate(ctx, "+78400000009", "secret2")
	assert.NoError(t, err)
	assert.Equal(t, 1, auditCount(t, models.ActionUpdateSettings))
}

func TestRegisterAdmin_Key(t *testing.T) {
	fresh(t)
	ctx := context.Background()
	in := service.RegisterAdminInput{FullName: "Второй админ", Phone: "+78500000001", Password: "secret1"}

	keyless := service.New(service.Deps{DB: handle.DB, Hasher: auth.BcryptHasher{Cost: bcrypt.MinCost}})
	_, err := keyless.Identity.RegisterAdmin(ctx, "", in)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	svc := service.New(service.Deps{
		DB:                   handle.DB,
		Hasher:               auth.BcryptHasher{Cost: bcrypt.MinCost},
		AdminRegistrationKey: "open-sesame",
	})
	for _, key := range []string{"", "open", "open-sesame!", "OPEN-SESAME"} {
		_, err := svc.Identity.RegisterAdmin(ctx, key, in)
		assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err), key)
	}
	assert.Equal(t, 0, auditCount(t, models.ActionRegisterAdmin))

	u, err := svc.Identity.RegisterAdmin(ctx, "open-sesame", in)
	require.NoError(t, err)
	assert.Equal(t, models.Admin, u.Role)
	got, err := svc.Identity.Authenticate(ctx, "+78500000001", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, 1, auditCount(t, models.ActionRegisterAdmin))
}

func TestImports_RowFailureHidesDatabaseText(t *testing.T) {
	svc, admin := fresh(t)
	ctx := context.Background()
	e101 := groupID(t, handle.DB, "Э-101")

	// NUL в тексте Postgres не принимает
	csv := "ФИО;Группа\nИванов Иван;Э-101\nНуль\x00Байт;Э-101\n"
	res, err := svc.Imports.ImportStudents(ctx, admin, service.Upload{Filename: "students.csv", Data: []byte(csv)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Строка 3: не удалось сохранить запись", res.Errors[0])

	res, err = svc.Imports.UploadStudents(ctx, admin, e101,
		service.Upload{Filename: "group.csv", Data: []byte("ФИО\nПетров Пётр\nНуль\x00Байт\n")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	require.Len(t, res.Errors, 1)
	assert.False(t, strings.Contains(res.Errors[0], "pq:"), res.Errors[0])
	assert.False(t, strings.Contains(res.Errors[0], "0x00"), res.Errors[0])

	students, err := svc.Students.List(ctx, admin, db.StudentFilter{GroupID: &e101})
	require.NoError(t, err)
	assert.Len(t, students, 2)
}

// TestListings_RandomGraphContainment строит случайные графы групп, студентов и пропусков
// и сверяет SQL-выборки куратора и старосты с ожидаемым множеством.
func TestListings_RandomGraphContainment(t *testing.T) {
	for seed := int64(1); seed <= 3; seed++ {
		svc, admin := fresh(t)
		ctx := context.Background()
		rnd := rand.New(rand.NewSource(seed))

		names := []string{"Э-101", "Э-102", "Б-101", "Б-102", "Ф-101"}
		groups := make([]int64, len(names))
		for i, n := range names {
			groups[i] = groupID(t, handle.DB, n)
		}

		c1, cur1 := confirmed(t, svc, admin, "Куратор 1", "+78600000001", 0)
		c2, cur2 := confirmed(t, svc, admin, "Куратор 2", "+78600000002", 0)
		curatorOf := map[int64]int64{}
		for i, gid := range groups {
			var cid *int64
			switch rnd.Intn(3) {
			case 1:
				cid = &c1.ID
			case 2:
				cid = &c2.ID
			}
			_, err := svc.Groups.Update(ctx, admin, gid, service.GroupInput{Name: names[i], CuratorID: cid})
			require.NoError(t, err)
			if cid != nil {
				curatorOf[gid] = *cid
			}
		}
		leadGroup := groups[rnd.Intn(len(groups))]
		_, lead := confirmed(t, svc, admin, "Староста", "+78600000003", leadGroup)

		groupOf := map[int64]int64{}
		for i := 0; i < 12; i++ {
			in := service.StudentInput{FullName: "Студент"}
			if k := rnd.Intn(len(groups) + 1); k < len(groups) {
				in.GroupID = &groups[k]
			}
			st, err := svc.Students.Create(ctx, admin, in)
			require.NoError(t, err)
			if in.GroupID != nil {
				groupOf[st.ID] = *in.GroupID
			}
			for n := rnd.Intn(3); n > 0; n-- {
				_, err := svc.Absences.Create(ctx, admin, service.AbsenceInput{StudentID: st.ID, Date: "2026-09-01"})
				require.NoError(t, err)
			}
		}

		expect := func(inScope func(gid int64) bool) []int64 {
			out := []int64{}
			for sid, gid := range groupOf {
				if inScope(gid) {
					out = append(out, sid)
				}
			}
			sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
			return out
		}
		subjects := []struct {
			s       scope.Subject
			inScope func(int64) bool
		}{
			{cur1, func(gid int64) bool { return curatorOf[gid] == c1.ID }},
			{cur2, func(gid int64) bool { return curatorOf[gid] == c2.ID }},
			{lead, func(gid int64) bool { return gid == leadGroup }},
		}
		for _, sub := range subjects {
			want := expect(sub.inScope)

			students, err := svc.Students.List(ctx, sub.s, db.StudentFilter{})
			require.NoError(t, err)
			got := []int64{}
			for _, st := range students {
				got = append(got, st.ID)
			}
			sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
			assert.Equal(t, want, got, "seed %d students of %v", seed, sub.s)

			absences, err := svc.Absences.List(ctx, sub.s, db.AbsenceFilter{})
			require.NoError(t, err)
			wantSet := map[int64]bool{}
			for _, id := range want {
				wantSet[id] = true
			}
			for _, a := range absences {
				assert.True(t, wantSet[a.StudentID], "seed %d: absence %d of student %d leaked", seed, a.ID, a.StudentID)
			}
			visible, err := db.CountAbsencesInWindow(ctx, handle.DB, db.Visibility{GroupIDs: groupIDs(want, groupOf)}, db.Window{})
			require.NoError(t, err)
			assert.Equal(t, visible, len(absences), "seed %d absences of %v", seed, sub.s)
		}
	}
}

func groupIDs(students []int64, groupOf map[int64]int64) []int64 {
	seen := map[int64]bool{}
	out := []int64{}
	for _, sid := range students {
		if gid := groupOf[sid]; !seen[gid] {
			seen[gid] = true
			out = append(out, gid)
		}
	}
	return out
}
