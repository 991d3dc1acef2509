package sandbox

import (
	"fmt"

	"github.com/dop251/goja"
)

// options is a plain-data options object passed by a script.
type options map[string]interface{}

// optionsArg exports argument i as an options object. A missing argument is
// an empty object; anything other than a plain object is rejected.
func optionsArg(call goja.FunctionCall, i int) (options, error) {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return options{}, nil
	}
	m, ok := v.Export().(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("options must be a plain object, got %s", v.String())
	}
	return m, nil
}

// stringArg returns argument i as a string, or "" when it is missing.
func stringArg(call goja.FunctionCall, i int) string {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

// requiredString returns argument i or an error naming the missing parameter.
func requiredString(call goja.FunctionCall, i int, op, name string) (string, error) {
	s := stringArg(call, i)
	if s == "" {
		return "", fmt.Errorf("%s: %s is required", op, name)
	}
	return s, nil
}

// stringsArg accepts a string or an array of strings.
func stringsArg(call goja.FunctionCall, i int) []string {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	switch x := v.Export().(type) {
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return []string{x}
	}
	return []string{v.String()}
}

// dataArg exports argument i as plain data for the engine.
func dataArg(call goja.FunctionCall, i int) interface{} {
	v := call.Argument(i)
	if goja.IsUndefined(v) {
		return nil
	}
	return v.Export()
}

// sourceArg returns a page function as source text. Functions are sent by
// their source since they run in the page, not in the sandbox.
func sourceArg(call goja.FunctionCall, i int, op string) (string, error) {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return "", fmt.Errorf("%s: function or expression is required", op)
	}
	// A function's string form is its source
	return v.String(), nil
}

func (o options) str(key string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return ""
}

func (o options) boolean(key string) bool {
	b, _ := o[key].(bool)
	return b
}

func (o options) number(key string) float64 {
	switch n := o[key].(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func (o options) integer(key string) int {
	return int(o.number(key))
}

func (o options) object(key string) (options, bool) {
	m, ok := o[key].(map[string]interface{})
	return m, ok
}
