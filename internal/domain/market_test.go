package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVIXBand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		level float64
		want  string
	}{
		{9.5, VIXLow},
		{14.99, VIXLow},
		{15, VIXNormal},
		{19.99, VIXNormal},
		{20, VIXElevated},
		{24.99, VIXElevated},
		{25, VIXHigh},
		{29.99, VIXHigh},
		{30, VIXExtreme},
		{80, VIXExtreme},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, VIXBand(c.level), "level %.2f", c.level)
	}
}

func TestMarkUnavailable(t *testing.T) {
	t.Parallel()
	var b PrefetchBundle
	b.MarkUnavailable("vix", "timeout")
	b.MarkUnavailable("option_chain", "connection refused")
	assert.Len(t, b.Failures, 2)
	assert.Equal(t, "vix", b.Failures[0].Kind)
	assert.Equal(t, "connection refused", b.Failures[1].Reason)
}

func TestSignalRawContent(t *testing.T) {
	t.Parallel()
	s := Signal{Messages: []Message{
		{Content: "SPY 605C", Timestamp: time.Now()},
		{Content: "entry 1.77"},
	}}
	assert.Equal(t, "SPY 605C\nentry 1.77", s.RawContent())

	assert.Empty(t, Signal{}.RawContent())
}
