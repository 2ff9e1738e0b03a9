package sandbox

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

type Kind string

const (
	CompileError Kind = "compile"
	RuntimeError Kind = "runtime"
)

// Error is a failure shown inline next to the overlay instead of the rendered tree.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s error at %d:%d: %s", e.Kind, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func compileError(message string, line, column int) *Error {
	return &Error{Kind: CompileError, Message: message, Line: line, Column: column}
}

func runtimeError(message string) *Error {
	return &Error{Kind: RuntimeError, Message: message}
}

// fromScriptError maps an error returned by goja onto the sandbox taxonomy.
func fromScriptError(err error) *Error {
	if sbErr, ok := errors.AsType[*Error](err); ok {
		return sbErr
	}
	if syntaxErr, ok := errors.AsType[*goja.CompilerSyntaxError](err); ok {
		return compileError(syntaxErr.Error(), 0, 0)
	}
	if _, ok := errors.AsType[*goja.InterruptedError](err); ok {
		return runtimeError("script execution timed out")
	}
	if ex, ok := errors.AsType[*goja.Exception](err); ok {
		return runtimeError(ex.Value().String())
	}
	return runtimeError(err.Error())
}
