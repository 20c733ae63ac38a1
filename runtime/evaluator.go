package runtime

import (
	"encoding/base64"
	"fmt"

	"github.com/expr-lang/expr"
)

// Custom expression functions available in all flows.
var exprFunctions = []expr.Option{
	expr.Function("base64_encode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	}),
	expr.Function("base64_decode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}),
}

// Eval evaluates an expression against the flat context map using expr-lang.
// Keys and the expression itself are rewritten to the underscore convention.
func Eval(expression string, context map[string]any) (any, error) {
	// null as alias for nil (JSON/YAML compatibility)
	context["null"] = nil

	// defined() distinguishes a missing key from a null value.
	definedFn := expr.Function(
		"defined",
		func(params ...any) (any, error) {
			path, ok := params[0].(string)
			if !ok {
				return false, fmt.Errorf("defined() expects string path argument, got %T", params[0])
			}
			_, exists := context[FormatKey(path)]
			return exists, nil
		},
		new(func(string) bool),
	)

	// expr.Env MUST come before AllowUndefinedVariables for it to work
	opts := []expr.Option{
		expr.Env(context),
		expr.AllowUndefinedVariables(),
		definedFn,
	}
	opts = append(opts, exprFunctions...)

	program, err := expr.Compile(FormatExpression(expression), opts...)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, context)
}
