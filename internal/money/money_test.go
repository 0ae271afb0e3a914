package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddSubExact(t *testing.T) {
	// 0.1 + 0.2 is the canonical binary-float trap.
	a := MustFromString("0.1")
	b := MustFromString("0.2")
	require.Equal(t, "0.30", a.Add(b).String())

	sum := Zero()
	for i := 0; i < 1000; i++ {
		sum = sum.Add(MustFromString("0.01"))
	}
	require.Equal(t, "10.00", sum.String())
	require.True(t, sum.Sub(MustFromString("10.00")).IsZero())
}

func TestSubFloorClampsAtZero(t *testing.T) {
	small := MustFromString("5.00")
	big := MustFromString("7.50")
	require.Equal(t, "0.00", small.SubFloor(big).String())
	require.Equal(t, "2.50", big.SubFloor(small).String())
}

func TestCompare(t *testing.T) {
	a := MustFromString("100")
	b := MustFromString("100.00")
	c := MustFromString("100.01")
	require.Equal(t, 0, a.Cmp(b))
	require.True(t, a.Equal(b))
	require.Equal(t, -1, a.Cmp(c))
	require.Equal(t, 1, c.Cmp(a))
	require.Equal(t, a, a.Min(c))
}

func TestPredicates(t *testing.T) {
	require.True(t, Zero().IsZero())
	require.True(t, MustFromString("0.01").IsPositive())
	require.True(t, MustFromString("-0.01").IsNegative())
	require.False(t, Zero().IsPositive())
}

func TestMinorUnits(t *testing.T) {
	require.Equal(t, int64(12345), MustFromString("123.45").MinorUnits())
	require.Equal(t, int64(500), FromMinorUnits(500).MinorUnits())
	require.Equal(t, "5.00", FromMinorUnits(500).String())
}

func TestJSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal(MustFromString("200.5"))
	require.NoError(t, err)
	require.Equal(t, `"200.50"`, string(raw))

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`"19.99"`), &m))
	require.Equal(t, "19.99", m.String())

	// Bare numbers are accepted for lenient clients.
	require.NoError(t, json.Unmarshal([]byte(`42`), &m))
	require.Equal(t, "42.00", m.String())
}

func TestFromStringRejectsGarbage(t *testing.T) {
	_, err := FromString("not-a-number")
	require.Error(t, err)
}
