package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJSONPath(t *testing.T) {
	t.Parallel()

	doc := `{
		"data": {
			"accessToken": "xyz",
			"count": 42,
			"ratio": 0.5,
			"active": true,
			"nothing": null,
			"items": [
				{"id": "a1", "tags": ["x", "y"]},
				{"id": "b2", "tags": []}
			]
		}
	}`

	tests := []struct {
		name string
		path string
		want string
	}{
		{"NestedField", "$.data.accessToken", "xyz"},
		{"NoDollarPrefix", "data.accessToken", "xyz"},
		{"DollarWithoutDot", "$data.accessToken", "xyz"},
		{"IntegerTextForm", "$.data.count", "42"},
		{"FloatTextForm", "$.data.ratio", "0.5"},
		{"Boolean", "$.data.active", "true"},
		{"NullIsEmpty", "$.data.nothing", ""},
		{"ArrayIndex", "$.data.items[0].id", "a1"},
		{"NestedBrackets", "$.data.items[0].tags[1]", "y"},
		{"ArrayLength", "$.data.items.length()", "2"},
		{"ObjectSize", "$.data.items[0].size()", "2"},
		{"StringLength", "$.data.accessToken.length()", "3"},
		{"EmptyArrayLength", "$.data.items[1].tags.length()", "0"},
		{"MissingField", "$.data.missing", ""},
		{"IndexOutOfRange", "$.data.items[9].id", ""},
		{"IndexIntoObject", "$.data[0]", ""},
		{"FieldOnArray", "$.data.items.id", ""},
		{"FieldOnString", "$.data.accessToken.id", ""},
		{"NegativeIndex", "$.data.items[-1]", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ExtractJSONPath(doc, tc.path))
		})
	}

	t.Run("RootObject", func(t *testing.T) {
		require.Equal(t, `{"a":1}`, ExtractJSONPath(`{"a": 1}`, "$"))
	})
	t.Run("ObjectReencodesCompact", func(t *testing.T) {
		require.Equal(t, `{"id":"a1","tags":["x","y"]}`, ExtractJSONPath(doc, "$.data.items[0]"))
	})
	t.Run("RootArrayIndex", func(t *testing.T) {
		require.Equal(t, "b", ExtractJSONPath(`["a","b"]`, "$[1]"))
	})
	t.Run("InvalidDocument", func(t *testing.T) {
		require.Equal(t, "", ExtractJSONPath("not json", "$.a"))
	})
	t.Run("EmptyDocument", func(t *testing.T) {
		require.Equal(t, "", ExtractJSONPath("", "$.a"))
	})
	t.Run("SizeMidPathIsMissing", func(t *testing.T) {
		require.Equal(t, "", ExtractJSONPath(doc, "$.data.items.length().x"))
	})
	t.Run("LargeIntegerKeepsTextForm", func(t *testing.T) {
		require.Equal(t, "9007199254740993", ExtractJSONPath(`{"v": 9007199254740993}`, "$.v"))
	})
}

func TestClassifyJSONPath(t *testing.T) {
	t.Parallel()

	doc := `{"s":"x","n":1,"b":false,"a":[1],"o":{},"z":null}`

	tests := []struct {
		path string
		want JSONNodeType
	}{
		{"$.s", NodeString},
		{"$.n", NodeNumber},
		{"$.b", NodeBoolean},
		{"$.a", NodeArray},
		{"$.o", NodeObject},
		{"$.z", NodeNull},
		{"$.missing", NodeMissing},
		{"$.a[5]", NodeMissing},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			require.Equal(t, tc.want, ClassifyJSONPath(doc, tc.path))
		})
	}

	t.Run("BadDocument", func(t *testing.T) {
		require.Equal(t, NodeMissing, ClassifyJSONPath("{", "$.a"))
	})
}
