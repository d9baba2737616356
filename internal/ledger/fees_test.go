package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeeCents(t *testing.T) {
	tests := []struct {
		name       string
		percent    float64
		fixedCents int64
		subtotal   int64
		want       int64
	}{
		{"ticketing schedule", 3.5, 179, 10000, 529},
		{"rounds half up", 3.5, 179, 9950, 527},  // 348.25 -> 348
		{"rounds up at half", 3.5, 0, 1500, 53},  // 52.5 -> 53
		{"small order", 3.5, 179, 100, 183},      // 3.5 -> 4
		{"zero percent", 0, 179, 10000, 179},
		{"zero fixed", 2.9, 0, 10000, 290},
		{"marketplace schedule", 2.9, 30, 2500, 103}, // 72.5 -> 73
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewFeeSchedule(tt.percent, tt.fixedCents)
			assert.Equal(t, tt.want, s.FeeCents(tt.subtotal))
		})
	}
}

func TestFeeCentsExactDecimal(t *testing.T) {
	// 0.1% of 1000 cents is exactly 1 cent; float arithmetic would wobble.
	s := NewFeeSchedule(0.1, 0)
	assert.Equal(t, int64(1), s.FeeCents(1000))

	s = NewFeeSchedule(3.5, 0)
	var total int64
	for i := 0; i < 1000; i++ {
		total += s.FeeCents(10000)
	}
	assert.Equal(t, int64(350000), total)
}
