package structset

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStruct is a test struct that will be used in tests.
type testStruct struct {
	Name    string    `json:"name"    sql:"name"`
	Count   int64     `json:"count"   sql:"cnt"`
	Ratio   float64   `json:"ratio"   sql:"ratio"`
	Created time.Time `json:"created" sql:"created"`
	Derived float64   `json:"derived" sql:"-"`
}

func TestCachedFieldIndexes(t *testing.T) {
	indexes := CachedFieldIndexes(reflect.TypeOf(testStruct{}))
	expected := map[string]int{"name": 0, "cnt": 1, "ratio": 2, "created": 3}
	assert.Equal(t, expected, indexes)

	// Second call must return cached value
	assert.Equal(t, expected, CachedFieldIndexes(reflect.TypeOf(testStruct{})))
}

func TestDecodeRow(t *testing.T) {
	indexes := CachedFieldIndexes(reflect.TypeOf(testStruct{}))
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name     string
		columns  []string
		row      []any
		expected testStruct
	}{
		{
			name:     "native values",
			columns:  []string{"name", "cnt", "ratio", "created"},
			row:      []any{"foo", int64(3), 1.5, ts},
			expected: testStruct{Name: "foo", Count: 3, Ratio: 1.5, Created: ts},
		},
		{
			name:     "text protocol values",
			columns:  []string{"name", "cnt", "ratio", "created"},
			row:      []any{[]byte("foo"), []byte("3"), "1.5", "2024-01-02 03:04:05"},
			expected: testStruct{Name: "foo", Count: 3, Ratio: 1.5, Created: ts},
		},
		{
			name:     "decimal aggregate",
			columns:  []string{"cnt"},
			row:      []any{"2147483648"},
			expected: testStruct{Count: 2147483648},
		},
		{
			name:     "nulls and unknown columns",
			columns:  []string{"name", "unknown", "cnt"},
			row:      []any{nil, "ignored", nil},
			expected: testStruct{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var got testStruct

			err := DecodeRow(test.columns, test.row, indexes, &got)
			require.NoError(t, err)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestDecodeRowErrors(t *testing.T) {
	indexes := CachedFieldIndexes(reflect.TypeOf(testStruct{}))

	var got testStruct

	err := DecodeRow([]string{"cnt"}, []any{"abc"}, indexes, &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column cnt")

	err = DecodeRow([]string{"created"}, []any{"yesterday"}, indexes, &got)
	require.Error(t, err)

	err = DecodeRow([]string{"cnt", "name"}, []any{int64(1)}, indexes, &got)
	require.ErrorIs(t, err, ErrRowLength)

	err = DecodeRow([]string{"cnt"}, []any{int64(1)}, indexes, got)
	require.ErrorIs(t, err, ErrNotStructPointer)
}
