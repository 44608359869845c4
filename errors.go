package fragments

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrShapeMismatch indicates a resolved default value whose runtime shape
	// does not match the attribute kind.
	ErrShapeMismatch = errors.New("fragments: shape mismatch")
	// ErrInvalidAssignment indicates a write with a value of an unsupported shape.
	ErrInvalidAssignment = errors.New("fragments: invalid assignment")
	// ErrInvalidTarget indicates an ownership operation on a non-fragment value.
	ErrInvalidTarget = errors.New("fragments: invalid target")
	// ErrUnknownModel indicates a lookup for a model that was never registered.
	ErrUnknownModel = errors.New("fragments: unknown model")
	// ErrDuplicateModel indicates a model registered twice under the same name.
	ErrDuplicateModel = errors.New("fragments: duplicate model")
	// ErrRecordNotFound indicates the persistence adapter has no snapshot for a record.
	ErrRecordNotFound = errors.New("fragments: record not found")
)

// AttributeError captures the attribute an operation failed on alongside the
// originating error.
type AttributeError struct {
	Op    string
	Model string
	Key   string
	Err   error
}

func (e *AttributeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("fragments: ")
	b.WriteString(e.Op)
	if e.Model != "" || e.Key != "" {
		fmt.Fprintf(&b, " %s.%s", describeModel(e.Model), e.Key)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(strings.TrimPrefix(e.Err.Error(), "fragments: "))
	}
	return b.String()
}

func (e *AttributeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeModel(name string) string {
	if name == "" {
		return "<anonymous>"
	}
	return name
}

// attributeError wraps err with operation metadata, keeping the innermost
// attribute details when err already carries them.
func attributeError(op, model, key string, err error) error {
	if err == nil {
		return nil
	}
	var attrErr *AttributeError
	if errors.As(err, &attrErr) {
		return err
	}
	return &AttributeError{Op: op, Model: model, Key: key, Err: err}
}

// invalidAssignment builds an ErrInvalidAssignment with a detail message.
func invalidAssignment(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAssignment, fmt.Sprintf(format, args...))
}

// EvaluationError captures expression metadata for failures raised by
// expression-backed type resolvers.
type EvaluationError struct {
	Engine string
	Expr   string
	Type   string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("fragments: %s resolver %s declared=%s: %v", e.Engine, describeExpression(e.Expr), e.Type, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluationError(engine, expr, declared string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Type == "" {
			evalErr.Type = declared
		}
		return evalErr
	}

	return &EvaluationError{
		Engine: engine,
		Expr:   expr,
		Type:   declared,
		Err:    err,
	}
}
