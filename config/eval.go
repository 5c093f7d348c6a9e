package config

import (
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// envFunc reads an environment variable; unset variables read as "".
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{{Name: "name", Type: cty.String}},
	Type:   function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(os.Getenv(args[0].AsString())), nil
	},
})

// evalContext exposes size units and a few functions to expressions.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"kib":  cty.NumberIntVal(1 << 10),
			"mib":  cty.NumberIntVal(1 << 20),
			"page": cty.NumberIntVal(1 << 16),
		},
		Functions: map[string]function.Function{
			"env": envFunc,
			"max": stdlib.MaxFunc,
			"min": stdlib.MinFunc,
		},
	}
}
