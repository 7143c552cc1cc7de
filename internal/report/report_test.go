package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/attendance-web/internal/apperr"
	"github.com/Spok95/attendance-web/internal/db"
	"github.com/Spok95/attendance-web/internal/models"
)

func i64(v int64) *int64 { return &v }
func str(s string) *string { return &s }

func TestParsePeriod(t *testing.T) {
	assert.Equal(t, PeriodMonth, ParsePeriod("Month"))
	assert.Equal(t, PeriodAll, ParsePeriod("all"))
	assert.Equal(t, PeriodWeek, ParsePeriod("fortnight"))
	assert.Equal(t, PeriodWeek, ParsePeriod(""))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("excel")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = ParseFormat("PDF")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	_, err = ParseFormat("docx")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestWindow(t *testing.T) {
	now := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)

	w := Filter{Period: PeriodMonth}.Window(now)
	require.NotNil(t, w.From)
	assert.Equal(t, now.AddDate(0, 0, -30), *w.From)
	assert.Equal(t, now, *w.To)

	w = Filter{Period: PeriodAll}.Window(now)
	assert.Nil(t, w.From)
	assert.Nil(t, w.To)

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	w = Filter{Period: PeriodCustom, StartDate: &start, EndDate: &end}.Window(now)
	assert.Equal(t, start, *w.From)
	assert.Equal(t, end, *w.To)

	// custom без второй границы — неделя
	w = Filter{Period: PeriodCustom, StartDate: &start}.Window(now)
	assert.Equal(t, now.AddDate(0, 0, -7), *w.From)
}

func TestFilterVisibility_Intersection(t *testing.T) {
	groups := []models.Group{
		{ID: 1, CuratorID: i64(10), LeaderID: i64(20)},
		{ID: 2, CuratorID: i64(10)},
		{ID: 3, CuratorID: i64(11), LeaderID: i64(21)},
	}

	assert.Equal(t, db.Visibility{All: true}, Filter{}.Visibility(groups))
	assert.Equal(t, []int64{1, 2}, Filter{CuratorID: i64(10)}.Visibility(groups).GroupIDs)
	assert.Equal(t, []int64{2}, Filter{GroupID: i64(2), CuratorID: i64(10)}.Visibility(groups).GroupIDs)

	// группа не принадлежит куратору
	assert.True(t, Filter{GroupID: i64(3), CuratorID: i64(10)}.Visibility(groups).Empty())
	// куратор без групп и староста без группы дают пустое множество
	assert.True(t, Filter{CuratorID: i64(99)}.Visibility(groups).Empty())
	assert.True(t, Filter{LeaderID: i64(99)}.Visibility(groups).Empty())
	assert.Equal(t, []int64{1}, Filter{CuratorID: i64(10), LeaderID: i64(20)}.Visibility(groups).GroupIDs)
}

func TestBuild_Columns(t *testing.T) {
	students := []models.StudentView{
		{Student: models.Student{ID: 1, FullName: "Иванов Иван", Phone: str("+7900")}, GroupName: str("Э-101"),
			CuratorName: str("Петрова"), LeaderName: str("Сидоров")},
		{Student: models.Student{ID: 2, FullName: "Смирнова Анна"}, GroupName: str("Э-101")},
	}
	counts := []db.ReasonCount{
		{StudentID: 1, Reason: str("болезнь"), Count: 2},
		{StudentID: 1, Reason: nil, Count: 1},
		{StudentID: 2, Reason: str("справка"), Count: 1},
		{StudentID: 99, Reason: nil, Count: 5},
	}
	records := Records(students, counts)
	require.Len(t, records, 2)
	assert.Equal(t, 3, records[0].Total)
	assert.Equal(t, 1, records[1].Total)

	f := Filter{IncludeStats: true, IncludeReasonBreakdown: true}
	tbl := Build(f, records)
	assert.Equal(t, []string{
		ColID, ColName, ColGroup, ColPhone, ColStatus, ColCurator, ColLeader, ColTotal,
		"Пропуски (болезнь)", "Пропуски (справка)", ColNoReason,
	}, tbl.Headers)
	assert.Equal(t, []any{int64(1), "Иванов Иван", "Э-101", "+7900", "Активен", "Петрова", "Сидоров", 3, 2, 0, 1}, tbl.Rows[0])
	assert.Equal(t, []any{int64(2), "Смирнова Анна", "Э-101", "", "Активен", "", "", 1, 0, 1, 0}, tbl.Rows[1])

	plain := Build(Filter{ExcludeStatus: true}, records)
	assert.Equal(t, []string{ColID, ColName, ColGroup, ColPhone, ColCurator, ColLeader}, plain.Headers)
	for _, row := range plain.Rows {
		assert.Len(t, row, len(plain.Headers))
	}

	compact := Compact(f, records)
	assert.Equal(t, []string{ColName, ColGroup, ColPhone, ColTotal}, compact.Headers)
	assert.Equal(t, []any{"Иванов Иван", "Э-101", "+7900", 3}, compact.Rows[0])
}
