package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranspile_LowersJSX(t *testing.T) {
	code, err := Transpile(`render(<div className="a">{x}</div>)`)
	require.NoError(t, err)

	assert.Contains(t, code, `React.createElement("div"`)
	assert.NotContains(t, code, "<div")
}

func TestTranspile_Fragment(t *testing.T) {
	code, err := Transpile(`render(<><b /></>)`)
	require.NoError(t, err)

	assert.Contains(t, code, "React.Fragment")
}

func TestTranspile_ImportsBecomeRequire(t *testing.T) {
	code, err := Transpile(`import styledLib from "styled-components"
render(<p />)`)
	require.NoError(t, err)

	assert.Contains(t, code, `require("styled-components")`)
	assert.NotContains(t, code, `from "styled-components"`)
}

func TestTranspile_SyntaxError(t *testing.T) {
	_, err := Transpile("const a = 1\nrender(<div>)")
	require.Error(t, err)

	sbErr, ok := errors.AsType[*Error](err)
	require.True(t, ok)
	assert.Equal(t, CompileError, sbErr.Kind)
	assert.Positive(t, sbErr.Line)
	assert.NotEmpty(t, sbErr.Message)
}
