// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ActionableError reports what esdata was doing, the file it was working
	// on and how to recover:
	//
	//	return issue.NewErrorContext().
	//		WithOperation("load data loader").
	//		WithResource("/src/posts.data.ts").
	//		WithIssue(issue.LoaderExecuteFailedId).
	//		Wrap(cause).
	//		BuildError()
	ActionableError struct {
		// Operation is a verb phrase such as "load data loader".
		Operation string
		// Resource is the file involved, if any.
		Resource string
		// Suggestions are one-line hints printed under the message.
		Suggestions []string
		// Issue links to a catalog entry with long-form guidance.
		Issue Id
		// Cause is the underlying error.
		Cause error
	}

	// ErrorContext accumulates the fields of an ActionableError.
	ErrorContext struct {
		err ActionableError
	}
)

// NewErrorContext starts an empty ErrorContext.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// Error renders "failed to <operation>: <resource>: <cause>", leaving out
// empty parts.
func (e *ActionableError) Error() string {
	parts := []string{"failed to " + e.Operation}
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Format returns the message and its suggestions. verbose appends the
// numbered chain of wrapped errors.
func (e *ActionableError) Format(verbose bool) string {
	var msg strings.Builder
	msg.WriteString(e.Error())

	if len(e.Suggestions) > 0 {
		msg.WriteString("\n")
		for _, suggestion := range e.Suggestions {
			msg.WriteString("\n  • " + suggestion)
		}
	}

	if verbose && e.Cause != nil {
		msg.WriteString("\n\nError chain:")
		for depth, err := 1, e.Cause; err != nil; depth, err = depth+1, errors.Unwrap(err) {
			fmt.Fprintf(&msg, "\n  %d. %s", depth, err.Error())
		}
	}
	return msg.String()
}

// Guide returns the linked catalog entry, or nil.
func (e *ActionableError) Guide() *Issue {
	if e.Issue == 0 {
		return nil
	}
	return Get(e.Issue)
}

func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.err.Operation = op
	return c
}

func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.err.Resource = res
	return c
}

// WithSuggestions appends remediation hints in display order.
func (c *ErrorContext) WithSuggestions(sugs ...string) *ErrorContext {
	c.err.Suggestions = append(c.err.Suggestions, sugs...)
	return c
}

func (c *ErrorContext) WithIssue(id Id) *ErrorContext {
	c.err.Issue = id
	return c
}

func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.err.Cause = err
	return c
}

// BuildError returns the ActionableError, or a nil error when no operation
// was set.
func (c *ErrorContext) BuildError() error {
	if c.err.Operation == "" {
		return nil
	}
	ae := c.err
	return &ae
}
