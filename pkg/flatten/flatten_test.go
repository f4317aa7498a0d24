package flatten

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datarmony/zukosync/pkg/errors"
)

func TestFlattenNestedObject(t *testing.T) {
	row, err := Flatten(map[string]interface{}{
		"id": "s1",
		"a":  map[string]interface{}{"b-c": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "1", row["a_b_c"])
	assert.Equal(t, "s1", row["id"])
}

func TestFlattenArrayIndexing(t *testing.T) {
	row, err := Flatten(map[string]interface{}{
		"id": "s1",
		"events": []interface{}{
			map[string]interface{}{"type": "view"},
			map[string]interface{}{"type": "submit"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "view", row["events_0_type"])
	assert.Equal(t, "submit", row["events_1_type"])
}

func TestFlattenKeyNormalization(t *testing.T) {
	row, err := Flatten(map[string]interface{}{
		"id":              "s1",
		"Completion Time": 2.5,
		"form-uuid":       "f-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "2.5", row["completion_time"])
	assert.Equal(t, "f-1", row["form_uuid"])
}

func TestFlattenValueStringification(t *testing.T) {
	row, err := Flatten(map[string]interface{}{
		"id":        "s1",
		"count":     float64(42),
		"rate":      0.25,
		"abandoned": true,
		"note":      nil,
	})
	require.NoError(t, err)
	assert.Equal(t, "42", row["count"])
	assert.Equal(t, "0.25", row["rate"])
	assert.Equal(t, "true", row["abandoned"])
	assert.Equal(t, "", row["note"])
}

func TestFlattenDeterministic(t *testing.T) {
	record := map[string]interface{}{
		"id":   "s1",
		"Key":  "upper",
		"key":  "lower",
		"meta": map[string]interface{}{"x": 1, "y": 2},
	}
	first, err := Flatten(record)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Flatten(record)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// "Key" and "key" collide after normalization; the sorted walk means
	// lowercase "key" is written last every time.
	assert.Equal(t, "lower", first["key"])
}

func TestFlattenMissingID(t *testing.T) {
	_, err := Flatten(map[string]interface{}{"a": 1})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFlatten))

	_, err = Flatten(map[string]interface{}{"id": ""})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFlatten))
}

func TestFlattenEmptyContainers(t *testing.T) {
	row, err := Flatten(map[string]interface{}{
		"id":     "s1",
		"fields": []interface{}{},
		"meta":   map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.Equal(t, FlatRow{"id": "s1"}, row)
}
