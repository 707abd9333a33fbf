package script

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// maxTranslationDepth bounds recursion while translating values. Wire values
// are finitely nested by definition; a script value that exceeds this depth is
// either cyclic or absurd, and is rejected instead of hanging.
const maxTranslationDepth = 128

// Translator converts between the script engine's native values and the wire
// representation used by the tool protocol (string-keyed mappings, sequences,
// strings, numbers, booleans, null). It is a total mapping over that closed
// set: anything else fails with a TranslationError rather than being coerced.
type Translator struct {
	rt *goja.Runtime
}

// NewTranslator creates a translator bound to a runtime.
func NewTranslator(rt *goja.Runtime) *Translator {
	return &Translator{rt: rt}
}

// ToWire converts a script value into its wire form.
func (t *Translator) ToWire(v goja.Value) (interface{}, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return normalizeWire(v.Export(), 0)
}

// ToWireMap converts a script value into a wire mapping, as required for tool
// call arguments. Undefined and null translate to an empty mapping.
func (t *Translator) ToWireMap(v goja.Value) (map[string]interface{}, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return map[string]interface{}{}, nil
	}

	wire, err := t.ToWire(v)
	if err != nil {
		return nil, err
	}

	m, ok := wire.(map[string]interface{})
	if !ok {
		return nil, NewScriptError(ErrorKindTranslation, "arguments must be an object, got %T", wire)
	}
	return m, nil
}

// normalizeWire validates an exported script value against the wire value
// domain, rebuilding containers so that nothing outside the closed set leaks
// through.
func normalizeWire(v interface{}, depth int) (interface{}, error) {
	if depth > maxTranslationDepth {
		return nil, NewScriptError(ErrorKindTranslation, "value nests deeper than %d levels (cyclic?)", maxTranslationDepth)
	}

	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool, string, int64, float64:
		return val, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			conv, err := normalizeWire(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			conv, err := normalizeWire(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	default:
		return nil, NewScriptError(ErrorKindTranslation, "value of type %T is not representable on the wire", v)
	}
}

// FromWire converts a wire value into a native script value. Containers are
// rebuilt as genuine script arrays and objects so the script can use them with
// their usual methods.
func (t *Translator) FromWire(v interface{}) (goja.Value, error) {
	return t.fromWire(v, 0)
}

func (t *Translator) fromWire(v interface{}, depth int) (goja.Value, error) {
	if depth > maxTranslationDepth {
		return nil, NewScriptError(ErrorKindTranslation, "wire value nests deeper than %d levels", maxTranslationDepth)
	}

	switch val := v.(type) {
	case nil:
		return goja.Null(), nil
	case bool, string, int, int64, float64:
		return t.rt.ToValue(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, NewScriptError(ErrorKindTranslation, "invalid number %q on the wire", val.String())
		}
		return t.rt.ToValue(f), nil
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, item := range val {
			conv, err := t.fromWire(item, depth+1)
			if err != nil {
				return nil, err
			}
			items[i] = conv
		}
		return t.rt.NewArray(items...), nil
	case map[string]interface{}:
		obj := t.rt.NewObject()
		for k, item := range val {
			conv, err := t.fromWire(item, depth+1)
			if err != nil {
				return nil, err
			}
			if err := obj.Set(k, conv); err != nil {
				return nil, fmt.Errorf("failed to set property %q: %w", k, err)
			}
		}
		return obj, nil
	default:
		return nil, NewScriptError(ErrorKindTranslation, "wire value of type %T is not representable", v)
	}
}

// ResultToWire flattens a tool call result into a wire value:
// structured content wins when present, no content means null, a single text
// block becomes a string, and anything else becomes a sequence.
func ResultToWire(result *mcp.CallToolResult) (interface{}, error) {
	if result == nil {
		return nil, nil
	}

	if result.StructuredContent != nil {
		return jsonRoundTrip(result.StructuredContent)
	}

	if len(result.Content) == 0 {
		return nil, nil
	}

	if len(result.Content) == 1 {
		if text, ok := result.Content[0].(*mcp.TextContent); ok {
			return text.Text, nil
		}
	}

	items := make([]interface{}, 0, len(result.Content))
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			items = append(items, text.Text)
			continue
		}
		conv, err := jsonRoundTrip(content)
		if err != nil {
			return nil, err
		}
		items = append(items, conv)
	}
	return items, nil
}

// jsonRoundTrip normalizes an arbitrary Go value into the wire value domain
// through its JSON representation.
func jsonRoundTrip(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, NewScriptError(ErrorKindTranslation, "tool result is not representable: %v", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, NewScriptError(ErrorKindTranslation, "tool result could not be decoded: %v", err)
	}
	return out, nil
}
