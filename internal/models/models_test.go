package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(s string) *string { return &s }

func TestExcusedClassification(t *testing.T) {
	reasons := []*string{ptr("болезнь"), ptr("прогул"), ptr(""), nil, ptr("справка")}

	var tally AbsenceTally
	for _, r := range reasons {
		tally.Add(r)
	}
	assert.Equal(t, 5, tally.Total)
	assert.Equal(t, 2, tally.Excused)
	assert.Equal(t, 3, tally.Unexcused)

	assert.True(t, IsExcused(reasons[0]))
	assert.True(t, IsExcused(reasons[4]))
	for _, r := range reasons[1:4] {
		assert.False(t, IsExcused(r))
	}
}

func TestExcused_CaseAndSpaces(t *testing.T) {
	assert.True(t, IsExcused(ptr("  Болезнь ")))
	assert.True(t, IsExcused(ptr("Medical Certificate")))
	assert.False(t, IsExcused(ptr("болезнь сестры")))
}

func TestUserState(t *testing.T) {
	u := User{Role: Leader}
	assert.Equal(t, StatePending, u.State())
	assert.False(t, u.Active())

	u.IsConfirmed = true
	assert.Equal(t, StateConfirmed, u.State())
	assert.True(t, u.Active())

	r := User{Role: Curator, IsRejected: true}
	assert.Equal(t, StateRejected, r.State())
	assert.False(t, r.Active())

	a := User{Role: Admin}
	assert.True(t, a.Active())
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("куратор")
	assert.True(t, ok)
	assert.Equal(t, Curator, r)

	r, ok = ParseRole("leader")
	assert.True(t, ok)
	assert.Equal(t, Leader, r)

	_, ok = ParseRole("student")
	assert.False(t, ok)
}
