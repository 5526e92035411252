package runtime

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ExtractJSONPath navigates a JSON document by a dotted path and returns
// the selected value as a string. The path accepts an optional leading
// "$" or "$.", dot-separated segments, the "name[index]" bracket form,
// and the pseudo-segments "length()" and "size()" which return the size
// of an array or object or the character length of a string.
//
// Any failure (parse error, missing node, wrong type, out-of-range
// index) yields the empty string. Non-string terminal nodes stringify:
// numbers and booleans to their textual form, null to empty, objects
// and arrays to their compact JSON encoding.
func ExtractJSONPath(doc, path string) string {
	node, ok := decodeJSON(doc)
	if !ok {
		return ""
	}

	segments, ok := splitJSONPath(path)
	if !ok {
		return ""
	}

	for i, seg := range segments {
		if seg.sizeFn {
			// length()/size() must be the final segment.
			if i != len(segments)-1 {
				return ""
			}
			return nodeSize(node)
		}
		node, ok = walkSegment(node, seg)
		if !ok {
			return ""
		}
	}
	return stringifyNode(node)
}

// JSONNodeType classifies the node a path points at.
type JSONNodeType string

const (
	NodeString  JSONNodeType = "STRING"
	NodeNumber  JSONNodeType = "NUMBER"
	NodeBoolean JSONNodeType = "BOOLEAN"
	NodeArray   JSONNodeType = "ARRAY"
	NodeObject  JSONNodeType = "OBJECT"
	NodeNull    JSONNodeType = "NULL"
	NodeMissing JSONNodeType = "MISSING"
)

// ClassifyJSONPath walks the document like ExtractJSONPath but reports
// the type of the terminal node instead of its value.
func ClassifyJSONPath(doc, path string) JSONNodeType {
	node, ok := decodeJSON(doc)
	if !ok {
		return NodeMissing
	}
	segments, ok := splitJSONPath(path)
	if !ok {
		return NodeMissing
	}
	for _, seg := range segments {
		if seg.sizeFn {
			return NodeMissing
		}
		node, ok = walkSegment(node, seg)
		if !ok {
			return NodeMissing
		}
	}
	switch node.(type) {
	case nil:
		return NodeNull
	case string:
		return NodeString
	case bool:
		return NodeBoolean
	case json.Number, float64:
		return NodeNumber
	case []any:
		return NodeArray
	case map[string]any:
		return NodeObject
	default:
		return NodeMissing
	}
}

// pathSegment is one parsed element of a JSON path.
type pathSegment struct {
	name    string
	indexes []int
	sizeFn  bool
}

// decodeJSON parses the document preserving number text forms.
func decodeJSON(doc string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	var node any
	if err := dec.Decode(&node); err != nil {
		return nil, false
	}
	return node, true
}

// splitJSONPath parses a dotted path into segments. A path of "$" (or
// empty) addresses the root.
func splitJSONPath(path string) ([]pathSegment, bool) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return nil, true
	}

	parts := strings.Split(path, ".")
	segments := make([]pathSegment, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, false
		}
		if part == "length()" || part == "size()" {
			segments = append(segments, pathSegment{sizeFn: true})
			continue
		}
		seg, ok := parseBrackets(part)
		if !ok {
			return nil, false
		}
		segments = append(segments, seg)
	}
	return segments, true
}

// parseBrackets splits "name[0][1]" into the field name and its indexes.
// A bare "[0]" indexes the current node without a field lookup.
func parseBrackets(part string) (pathSegment, bool) {
	var seg pathSegment
	open := strings.IndexByte(part, '[')
	if open < 0 {
		seg.name = part
		return seg, true
	}
	seg.name = part[:open]
	rest := part[open:]
	for rest != "" {
		if rest[0] != '[' {
			return seg, false
		}
		closing := strings.IndexByte(rest, ']')
		if closing < 0 {
			return seg, false
		}
		idx, err := strconv.Atoi(rest[1:closing])
		if err != nil || idx < 0 {
			return seg, false
		}
		seg.indexes = append(seg.indexes, idx)
		rest = rest[closing+1:]
	}
	return seg, true
}

// walkSegment descends one segment from the given node.
func walkSegment(node any, seg pathSegment) (any, bool) {
	if seg.name != "" {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = obj[seg.name]
		if !ok {
			return nil, false
		}
	}
	for _, idx := range seg.indexes {
		arr, ok := node.([]any)
		if !ok || idx >= len(arr) {
			return nil, false
		}
		node = arr[idx]
	}
	return node, true
}

// nodeSize implements the length()/size() pseudo-segments.
func nodeSize(node any) string {
	switch v := node.(type) {
	case []any:
		return strconv.Itoa(len(v))
	case map[string]any:
		return strconv.Itoa(len(v))
	case string:
		return strconv.Itoa(utf8.RuneCountInString(v))
	default:
		return ""
	}
}

// stringifyNode renders a terminal node the way extracted variables and
// assertions consume it.
func stringifyNode(node any) string {
	switch v := node.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
