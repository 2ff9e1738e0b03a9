package sandbox

import (
	"github.com/evanw/esbuild/pkg/api"
)

// Transpile lowers JSX into plain script. Imports become require calls.
func Transpile(source string) (string, error) {
	result := api.Transform(source, api.TransformOptions{
		Loader:      api.LoaderJSX,
		JSX:         api.JSXTransform,
		JSXFactory:  "React.createElement",
		JSXFragment: "React.Fragment",
		Format:      api.FormatCommonJS,
		Target:      api.ES2015,
		Sourcefile:  "overlay.jsx",
		LogLevel:    api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		msg := result.Errors[0]
		if msg.Location != nil {
			return "", compileError(msg.Text, msg.Location.Line, msg.Location.Column+1)
		}
		return "", compileError(msg.Text, 0, 0)
	}

	return string(result.Code), nil
}
