package jsonwrapper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type subStruct struct {
	Value int `json:"value"`
}

type testStruct struct {
	Name  string      `json:"name"`
	Items []subStruct `json:"items"`
}

func TestUnmarshalReplacesSlices(t *testing.T) {
	dest := testStruct{
		Items: []subStruct{{Value: 1}, {Value: 2}},
	}

	err := Unmarshal([]byte(`{"name":"a","items":[{"value":3}]}`), &dest)
	require.NoError(t, err)
	require.Equal(t, testStruct{
		Name:  "a",
		Items: []subStruct{{Value: 3}},
	}, dest)
}

func TestUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		buf  string
		err  string
	}{
		{
			"unknown field",
			`{"other":1}`,
			"json: unknown field \"other\"",
		},
		{
			"nil slice",
			`{"items":null}`,
			"cannot set slice 'items' to nil",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			var dest testStruct
			err := Unmarshal([]byte(ca.buf), &dest)
			require.EqualError(t, err, ca.err)
		})
	}
}
