package nativectx

import (
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// EnvFunc returns the value of an environment variable, or null when it is
// not set.
var EnvFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		v, ok := os.LookupEnv(args[0].AsString())
		if !ok {
			return cty.NullVal(cty.String), nil
		}
		return cty.StringVal(v), nil
	},
})

// EnvironFunc returns the whole environment as a map of strings.
var EnvironFunc = function.New(&function.Spec{
	Type: function.StaticReturnType(cty.Map(cty.String)),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		env := make(map[string]cty.Value)
		for _, e := range os.Environ() {
			key, val, ok := strings.Cut(e, "=")
			if ok && key != "" {
				env[key] = cty.StringVal(val)
			}
		}
		if len(env) == 0 {
			return cty.MapValEmpty(cty.String), nil
		}
		return cty.MapVal(env), nil
	},
})
