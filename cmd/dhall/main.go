// Command dhall resolves, type-checks, normalizes, hashes and encodes
// Dhall expressions.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clavoie-takt/dhall/ast"
	"github.com/clavoie-takt/dhall/binary"
	"github.com/clavoie-takt/dhall/eval"
	"github.com/clavoie-takt/dhall/imports"
	"github.com/clavoie-takt/dhall/internal/repl"
	"github.com/clavoie-takt/dhall/parser"
	"github.com/clavoie-takt/dhall/types"
)

var (
	// Version info - set by ldflags during build
	Version = "dev"

	red = color.New(color.FgRed).SprintFunc()
)

var protocolFlag string

func main() {
	root := &cobra.Command{
		Use:           "dhall",
		Short:         "A pure, total, typed configuration language",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&protocolFlag, "protocol-version", "5.0.0",
		"binary protocol version (4.0.0 or 5.0.0)")

	root.AddCommand(
		resolveCommand(),
		normalizeCommand(),
		typeCommand(),
		hashCommand(),
		encodeCommand(),
		decodeCommand(),
		replCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(1)
	}
}

func protocolVersion() (binary.ProtocolVersion, error) {
	switch protocolFlag {
	case "4.0.0":
		return binary.V4, nil
	case "5.0.0":
		return binary.V5, nil
	}
	return 0, fmt.Errorf("unknown protocol version %q", protocolFlag)
}

// newSession builds a session rooted at the working directory, with any
// configured per-origin headers applied.
func newSession() (*imports.Status, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	version, err := protocolVersion()
	if err != nil {
		return nil, err
	}
	session := imports.EmptyStatus(cwd)
	session.Version = version
	headers, err := loadOriginHeaders()
	if err != nil {
		return nil, err
	}
	session.OriginHeaders = headers
	return session, nil
}

// readInput reads the named file, or stdin when no argument was given.
func readInput(args []string) (string, error) {
	if len(args) == 0 {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(args[0])
	return string(data), err
}

// loadInput parses the input and resolves its imports.
func loadInput(args []string) (ast.Expr, *imports.Status, error) {
	src, err := readInput(args)
	if err != nil {
		return nil, nil, err
	}
	expr, err := parser.Parse(src)
	if err != nil {
		return nil, nil, err
	}
	session, err := newSession()
	if err != nil {
		return nil, nil, err
	}
	resolved, err := imports.LoadWith(context.Background(), session, expr)
	if err != nil {
		return nil, nil, err
	}
	return resolved, session, nil
}

func resolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [file]",
		Short: "Resolve all imports in an expression",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, _, err := loadInput(args)
			if err != nil {
				return err
			}
			fmt.Println(resolved)
			return nil
		},
	}
}

func normalizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [file]",
		Short: "Resolve, type-check and normalize an expression",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, session, err := loadInput(args)
			if err != nil {
				return err
			}
			if _, err := types.TypeOf(session.Context, resolved); err != nil {
				return err
			}
			fmt.Println(eval.NormalizeWith(session.Normalizer, resolved))
			return nil
		},
	}
}

func typeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "type [file]",
		Short: "Print the inferred type of an expression",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, session, err := loadInput(args)
			if err != nil {
				return err
			}
			ty, err := types.TypeOf(session.Context, resolved)
			if err != nil {
				return err
			}
			fmt.Println(ty)
			return nil
		},
	}
}

func hashCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash [file]",
		Short: "Print the sha256 of a resolved, normalized expression",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, session, err := loadInput(args)
			if err != nil {
				return err
			}
			if _, err := types.TypeOf(session.Context, resolved); err != nil {
				return err
			}
			code, err := imports.HashExpressionToCode(session.Version,
				eval.NormalizeWith(session.Normalizer, resolved))
			if err != nil {
				return err
			}
			fmt.Println(code)
			return nil
		},
	}
}

func encodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encode [file]",
		Short: "Encode a resolved expression to canonical binary on stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, session, err := loadInput(args)
			if err != nil {
				return err
			}
			data, err := binary.Encode(session.Version, eval.AlphaNormalize(
				eval.NormalizeWith(session.Normalizer, resolved)))
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}

func decodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode canonical binary back to an expression",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if len(args) == 0 {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			expr, err := binary.Decode(data)
			if err != nil {
				return err
			}
			fmt.Println(expr)
			return nil
		},
	}
}

func replCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start the interactive REPL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := newSession()
			if err != nil {
				return err
			}
			return repl.New(session, Version, os.Stdout).Run()
		},
	}
}
