// Package sandbox compiles and runs user-authored overlay sources.
//
// A source is JSX-flavoured script. Transpile lowers it to plain script with esbuild;
// Execute evaluates it in a fresh goja runtime that exposes only a fixed set of
// capabilities (useTimerData, React, UI/Mui, styled, motion, render). The tree handed
// to render is wrapped in a Boundary, which re-runs component functions on every paint
// and turns any failure into an *Error instead of a panic.
//
// A runtime is single-goroutine. Never share a Boundary across goroutines.
package sandbox
