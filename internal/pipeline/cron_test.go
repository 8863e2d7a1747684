package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronField(t *testing.T) {
	tests := []struct {
		field string
		lo    int
		hi    int
		want  []int
		err   bool
	}{
		{field: "5", lo: 0, hi: 59, want: []int{5}},
		{field: "1,15", lo: 1, hi: 31, want: []int{1, 15}},
		{field: "1-3", lo: 0, hi: 6, want: []int{1, 2, 3}},
		{field: "*/15", lo: 0, hi: 59, want: []int{0, 15, 30, 45}},
		{field: "10-20/5", lo: 0, hi: 59, want: []int{10, 15, 20}},
		{field: "60", lo: 0, hi: 59, err: true},
		{field: "x", lo: 0, hi: 59, err: true},
		{field: "*/0", lo: 0, hi: 59, err: true},
		{field: "5-1", lo: 0, hi: 59, err: true},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			f, err := parseCronField(tt.field, tt.lo, tt.hi)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, f.values, len(tt.want))
			for _, v := range tt.want {
				assert.True(t, f.matches(v), "expected %d to match", v)
			}
		})
	}
}

func TestCronNext(t *testing.T) {
	sched, err := parseCron("30 3 * * *")
	require.NoError(t, err)

	after := time.Date(2024, 3, 15, 4, 0, 0, 0, time.UTC)
	next, err := sched.next(after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 16, 3, 30, 0, 0, time.UTC), next)

	// Strictly after: an exact match moves to the next occurrence.
	next, err = sched.next(time.Date(2024, 3, 16, 3, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 17, 3, 30, 0, 0, time.UTC), next)
}

func TestParseCronRejectsWrongFieldCount(t *testing.T) {
	_, err := parseCron("* * *")
	assert.Error(t, err)

	_, err = parseCron("0 0 30 2 *")
	require.NoError(t, err)
	sched, _ := parseCron("0 0 30 2 *")
	_, err = sched.next(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err, "february 30th never occurs")
}
