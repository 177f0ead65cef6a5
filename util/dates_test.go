package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateForms(t *testing.T) {
	for _, in := range []string{
		"2025-03-14T10:00:00Z",
		"2025-03-14T10:00:00+01:00",
		"2025-03-14T10:00:00",
		"2025-03-14",
	} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		require.NotNil(t, got, in)
		assert.Equal(t, time.UTC, got.Location(), in)
	}
}

func TestParseDateEmptyIsNil(t *testing.T) {
	got, err := ParseDate("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseDateRejectsGarbage(t *testing.T) {
	_, err := ParseDate("last tuesday")
	assert.Error(t, err)
}
