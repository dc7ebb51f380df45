package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONNumber(t *testing.T) {
	assert.Equal(t, "10.50", JSONNumber(1050).String())
	assert.Equal(t, "0.07", JSONNumber(7).String())
	assert.Equal(t, "0.00", JSONNumber(0).String())
}

func TestFromMajor(t *testing.T) {
	cases := map[string]int64{
		"10.5":         1050,
		"10,50":        1050,
		"1.234,56":     123456,
		" 99 ":         9900,
		"0.005":        1,
		"1,234.56":     123456,
		"12,345.00":    1234500,
		"1.234.567":    123456700,
		"1,234,567.8":  123456780,
		"1.234.567,89": 123456789,
		"-1,5":         -150,
	}
	for in, want := range cases {
		got, err := FromMajor(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := FromMajor("")
	require.Error(t, err)
	_, err = FromMajor("abc")
	require.Error(t, err)
}

func TestFromMajorRejectsAmbiguousSeparators(t *testing.T) {
	for _, in := range []string{"1,234", "1.234,5.6", "1,23.45", "12345,678.9", ",5.0", "1.2.3"} {
		_, err := FromMajor(in)
		assert.Error(t, err, in)
	}
}
