package schema

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/coinwatch/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var level = Tuple(Decimal(), Decimal())

var bookSchema = Object(
	Required("bids", List(level)),
	Required("asks", List(level)),
	Optional("timestamp", Int()),
)

func TestParse_RecordWithOptionalFields(t *testing.T) {
	v, err := Parse([]byte(`{"high": "101.5", "low": 99, "volume": "12.30000001", "extra": true}`), Object(
		Required("high", Decimal()),
		Required("low", Decimal()),
		Required("volume", Decimal()),
		Optional("vwap", Decimal()),
	))
	require.NoError(t, err)

	rec := v.(Record)
	assert.True(t, rec.Decimal("high").Equal(decimal.RequireFromString("101.5")))
	assert.Equal(t, "12.30000001", rec.Decimal("volume").String())
	assert.False(t, rec.Has("vwap"))
	assert.Nil(t, rec.DecimalPtr("vwap"))
	assert.False(t, rec.Has("extra"), "unknown keys are dropped")
}

func TestParse_NestedLists(t *testing.T) {
	v, err := Parse([]byte(`{"timestamp": "1700000000", "bids": [["100", "1"], [99.5, 2, 0]], "asks": []}`), bookSchema)
	require.NoError(t, err)

	rec := v.(Record)
	assert.Equal(t, int64(1700000000), rec.Int("timestamp"))
	bids := rec.List("bids")
	require.Len(t, bids, 2)
	second := bids[1].([]any)
	assert.Len(t, second, 2)
	assert.True(t, second[0].(decimal.Decimal).Equal(decimal.RequireFromString("99.5")))
	assert.Empty(t, rec.List("asks"))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		schema  Schema
		wantMsg string
	}{
		{name: "missing required", payload: `{"bids": []}`, schema: bookSchema, wantMsg: `missing key "asks"`},
		{name: "not an object", payload: `[]`, schema: bookSchema, wantMsg: "expected object"},
		{name: "short tuple", payload: `{"bids": [["1"]], "asks": []}`, schema: bookSchema, wantMsg: "$.bids[0]"},
		{name: "bad decimal", payload: `{"bids": [["x", "1"]], "asks": []}`, schema: bookSchema, wantMsg: "$.bids[0][0]"},
		{name: "fractional int", payload: `{"bids": [], "asks": [], "timestamp": 1.5}`, schema: bookSchema, wantMsg: "not integral"},
		{name: "wrong string type", payload: `{"s": 1}`, schema: Object(Required("s", String())), wantMsg: "expected string"},
		{name: "invalid json", payload: `{`, schema: bookSchema, wantMsg: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.payload), tt.schema)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrMalformedData))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestParse_NullOptionalIsAbsent(t *testing.T) {
	v, err := Parse([]byte(`{"a": null}`), Object(Optional("a", Int())))
	require.NoError(t, err)
	assert.False(t, v.(Record).Has("a"))
	assert.Nil(t, v.(Record).IntPtr("a"))
}

func TestScalars(t *testing.T) {
	v, err := Parse([]byte(`{"b1": true, "b2": "false", "b3": 1, "i": "42", "f": "7.0", "s": "x"}`), Object(
		Required("b1", Bool()),
		Required("b2", Bool()),
		Required("b3", Bool()),
		Required("i", Int()),
		Required("f", Int()),
		Required("s", String()),
	))
	require.NoError(t, err)
	rec := v.(Record)
	assert.True(t, rec.Bool("b1"))
	assert.False(t, rec.Bool("b2"))
	assert.True(t, rec.Bool("b3"))
	assert.Equal(t, int64(42), rec.Int("i"))
	assert.Equal(t, int64(7), rec.Int("f"))
	assert.Equal(t, "x", rec.String("s"))
}

func TestRemap(t *testing.T) {
	raw, err := Decode([]byte(`[{"tid": 1, "date": "1700000000", "price": "1"}]`))
	require.NoError(t, err)

	renamed := Remap(raw, map[string]string{"tid": "id", "date": "timestamp"})
	v, err := Validate(renamed, List(Object(
		Required("id", Int()),
		Required("timestamp", Int()),
		Required("price", Decimal()),
	)))
	require.NoError(t, err)

	items := v.([]any)
	require.Len(t, items, 1)
	rec := items[0].(Record)
	assert.Equal(t, int64(1), rec.Int("id"))
	assert.Equal(t, int64(1700000000), rec.Int("timestamp"))

	assert.Equal(t, "scalar", Remap("scalar", map[string]string{"a": "b"}))
}
