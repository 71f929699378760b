// Package repl implements the interactive read-type-normalize-print loop.
package repl

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"

	"github.com/clavoie-takt/dhall/ast"
	"github.com/clavoie-takt/dhall/eval"
	"github.com/clavoie-takt/dhall/imports"
	"github.com/clavoie-takt/dhall/parser"
	"github.com/clavoie-takt/dhall/types"
)

// Color functions for pretty output
var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	dim   = color.New(color.Faint).SprintFunc()
)

type binding struct {
	name  string
	value ast.Expr
}

// REPL is one interactive session. The import session persists across
// entries, so the memo and HTTP client carry over.
type REPL struct {
	version  string
	bindings []binding
	session  *imports.Status
	out      io.Writer
}

// New creates a REPL that resolves imports within the given session.
func New(session *imports.Status, version string, out io.Writer) *REPL {
	return &REPL{
		version: version,
		session: session,
		out:     out,
	}
}

// Run drives the loop until :quit or EOF.
func (r *REPL) Run() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Fprintf(r.out, "%s %s\n", cyan("dhall repl"), dim(r.version))
	fmt.Fprintf(r.out, "%s\n", dim("Type :help for commands, :quit to exit"))

	for {
		input, err := line.Prompt("⊢ ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if input == ":quit" || input == ":q" {
			return nil
		}
		r.handle(input)
	}
}

func (r *REPL) handle(input string) {
	switch {
	case input == ":help":
		r.printHelp()
	case strings.HasPrefix(input, ":type "):
		r.showType(strings.TrimPrefix(input, ":type "))
	case strings.HasPrefix(input, ":hash "):
		r.showHash(strings.TrimPrefix(input, ":hash "))
	case strings.HasPrefix(input, ":let "):
		r.define(strings.TrimPrefix(input, ":let "))
	case strings.HasPrefix(input, ":"):
		r.errorf("unknown command %s", input)
	default:
		r.evaluate(input)
	}
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out, ":type EXPR     show the type of an expression")
	fmt.Fprintln(r.out, ":hash EXPR     show the sha256 of a resolved expression")
	fmt.Fprintln(r.out, ":let x = EXPR  bind a name for later entries")
	fmt.Fprintln(r.out, ":quit          exit")
}

func (r *REPL) errorf(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "%s %s\n", red("Error:"), fmt.Sprintf(format, args...))
}

// resolve parses the input, wraps it in the accumulated let bindings, and
// resolves its imports.
func (r *REPL) resolve(input string) (ast.Expr, error) {
	expr, err := parser.Parse(input)
	if err != nil {
		return nil, err
	}
	for i := len(r.bindings) - 1; i >= 0; i-- {
		expr = ast.Let{Label: r.bindings[i].name, Value: r.bindings[i].value, Body: expr}
	}
	return imports.LoadWith(context.Background(), r.session, expr)
}

// check resolves and type-checks one entry.
func (r *REPL) check(input string) (ast.Expr, ast.Expr, error) {
	resolved, err := r.resolve(input)
	if err != nil {
		return nil, nil, err
	}
	ty, err := types.TypeOf(r.session.Context, resolved)
	if err != nil {
		return nil, nil, err
	}
	return resolved, ty, nil
}

func (r *REPL) evaluate(input string) {
	resolved, ty, err := r.check(input)
	if err != nil {
		r.errorf("%v", err)
		return
	}
	fmt.Fprintf(r.out, "%s %s\n", dim(":"), cyan(ty.String()))
	fmt.Fprintf(r.out, "%s\n", green(eval.NormalizeWith(r.session.Normalizer, resolved).String()))
}

func (r *REPL) showType(input string) {
	_, ty, err := r.check(input)
	if err != nil {
		r.errorf("%v", err)
		return
	}
	fmt.Fprintf(r.out, "%s\n", cyan(ty.String()))
}

func (r *REPL) showHash(input string) {
	resolved, _, err := r.check(input)
	if err != nil {
		r.errorf("%v", err)
		return
	}
	code, err := imports.HashExpressionToCode(r.session.Version, eval.NormalizeWith(r.session.Normalizer, resolved))
	if err != nil {
		r.errorf("%v", err)
		return
	}
	fmt.Fprintf(r.out, "%s\n", green(code))
}

func (r *REPL) define(input string) {
	name, rest, found := strings.Cut(input, "=")
	if !found {
		r.errorf(":let needs the form x = EXPR")
		return
	}
	name = strings.TrimSpace(name)
	resolved, _, err := r.check(strings.TrimSpace(rest))
	if err != nil {
		r.errorf("%v", err)
		return
	}
	r.bindings = append(r.bindings, binding{name: name, value: resolved})
	fmt.Fprintf(r.out, "%s %s\n", dim("bound"), name)
}
