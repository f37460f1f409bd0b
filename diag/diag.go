// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.
//
// Package diag classifies the fatal error kinds that can abort a
// compilation and renders them to stderr. Every error that aborts a
// compilation passes through here exactly once, at the outermost
// boundary (cmd/irasmc); packages below diag return plain *Error values
// and never call os.Exit themselves.
package diag

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

// Kind identifies which of the four fatal error families produced an
// error.
type Kind int

const (
	// ParseError: unexpected token, missing keyword, malformed construct.
	ParseError Kind = iota
	// ValidationError: undefined variable, size mismatch, operand-count
	// mismatch, phi label/operand mismatch, malformed set-operand,
	// void/non-void return mismatch.
	ValidationError
	// LoweringError: no free/non-frozen register for a required temporary,
	// unknown operand kind in operand construction. Should be impossible
	// under the fixed opcode set; raised rather than silently miscompiling.
	LoweringError
	// ToolError: non-zero exit from nasm or gcc.
	ToolError
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "parse error"
	case ValidationError:
		return "validation error"
	case LoweringError:
		return "lowering error"
	case ToolError:
		return "tool error"
	}
	return "error"
}

// Error is the single error type that crosses every package boundary in
// this module. Cause, when present, was wrapped with github.com/pkg/errors
// so a "%+v" format recovers the full chain.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Newf builds an Error with no wrapped cause.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind/message to an existing error, preserving it as Cause
// via github.com/pkg/errors so the chain survives formatting with %+v.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   errors.WithStack(cause),
	}
}

// Fatal prints err to stderr, colorized by severity, and exits the
// process with a non-zero status. There is no retry and no continuation
// past the first fatal error.
func Fatal(err error) {
	red := color.New(color.FgRed, color.Bold)
	var de *Error
	if errors.As(err, &de) {
		red.Fprintf(os.Stderr, "error: ")
		fmt.Fprintf(os.Stderr, "%s: %s\n", de.Kind, de.Message)
		if de.Cause != nil && os.Getenv("IRASM_DEBUG") != "" {
			fmt.Fprintf(os.Stderr, "%+v\n", de.Cause)
		}
	} else {
		red.Fprintf(os.Stderr, "error: ")
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	os.Exit(1)
}

// Warn prints a non-fatal diagnostic to stderr.
func Warn(format string, args ...interface{}) {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Fprintf(os.Stderr, "warning: ")
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
