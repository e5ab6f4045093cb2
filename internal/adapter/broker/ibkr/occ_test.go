package ibkr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthCode(t *testing.T) {
	t.Parallel()
	m, err := monthCode("2024-12-09")
	require.NoError(t, err)
	assert.Equal(t, "DEC24", m)

	m, err = monthCode("2026-01-02")
	require.NoError(t, err)
	assert.Equal(t, "JAN26", m)

	_, err = monthCode("not-a-date")
	require.Error(t, err)
}
