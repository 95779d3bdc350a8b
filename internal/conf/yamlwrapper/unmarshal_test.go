package yamlwrapper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnmarshal(t *testing.T) {
	type testStruct struct {
		Field1 string         `json:"field1"`
		Field2 int            `json:"field2"`
		Field3 map[string]int `json:"field3"`
	}

	var result testStruct
	err := Unmarshal([]byte("field1: test\n"+
		"field2: 456\n"+
		"field3:\n"+
		"  a: 1\n"), &result)
	require.NoError(t, err)
	require.Equal(t, testStruct{
		Field1: "test",
		Field2: 456,
		Field3: map[string]int{"a": 1},
	}, result)
}

func TestUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		buf  string
	}{
		{
			"duplicate key",
			"key: value1\nkey: value2\n",
		},
		{
			"integer key",
			"1: value\n",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var dest interface{}
			err := Unmarshal([]byte(ca.buf), &dest)
			require.Error(t, err)
		})
	}
}

func TestUnmarshalEmpty(t *testing.T) {
	dest := map[string]string{"untouched": "yes"}
	err := Unmarshal([]byte(``), &dest)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"untouched": "yes"}, dest)
}
