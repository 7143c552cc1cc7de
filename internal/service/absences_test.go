package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/attendance-web/internal/apperr"
)

func TestParseAbsenceDate(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	cases := map[string]time.Time{
		"2025-03-31":                time.Date(2025, 3, 31, 0, 0, 0, 0, loc),
		" 2025-03-31 ":              time.Date(2025, 3, 31, 0, 0, 0, 0, loc),
		"2025-03-31T09:30":          time.Date(2025, 3, 31, 9, 30, 0, 0, loc),
		"2025-03-31T09:30:15":       time.Date(2025, 3, 31, 9, 30, 15, 0, loc),
		"2025-03-31T06:30:00Z":      time.Date(2025, 3, 31, 9, 30, 0, 0, loc),
		"2025-03-31T09:30:00+03:00": time.Date(2025, 3, 31, 9, 30, 0, 0, loc),
	}
	for in, want := range cases {
		got, err := ParseAbsenceDate(in, loc)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s: got %s", in, got)
	}

	for _, in := range []string{"", "31.03.2025", "2025-13-01", "вчера"} {
		_, err := ParseAbsenceDate(in, loc)
		require.Error(t, err, in)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	}
}

func TestAbsenceBuild_LessonsCount(t *testing.T) {
	s := &Absences{core: &core{loc: time.UTC}}

	a, err := s.build(AbsenceInput{StudentID: 1, Date: "2025-03-31"})
	require.NoError(t, err)
	assert.Equal(t, 1, a.LessonsCount)
	assert.Nil(t, a.Reason)

	blank := "  "
	a, err = s.build(AbsenceInput{StudentID: 1, Date: "2025-03-31", Reason: &blank, LessonsCount: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, a.LessonsCount)
	assert.Nil(t, a.Reason)

	_, err = s.build(AbsenceInput{StudentID: 1, Date: "2025-03-31", LessonsCount: -2})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = s.build(AbsenceInput{Date: "2025-03-31"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
