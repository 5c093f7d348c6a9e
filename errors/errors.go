package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which pipeline stage produced the error
type Phase string

const (
	PhaseGraph     Phase = "graph"     // graph construction and validation
	PhaseDecompose Phase = "decompose" // async/panic node decomposition
	PhaseGroup     Phase = "group"     // async state grouping
	PhaseCompile   Phase = "compile"   // code generation
	PhaseEncode    Phase = "encode"    // wasm binary encoding
	PhaseRuntime   Phase = "runtime"   // execution of built modules
	PhaseConfig    Phase = "config"    // configuration loading
	PhaseHost      Phase = "host"      // host function registration
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupported      Kind = "unsupported"
	KindNotImplemented   Kind = "not_implemented"
	KindMissingStrategy  Kind = "missing_strategy"
	KindMissingTrait     Kind = "missing_trait"
	KindInvalidParameter Kind = "invalid_parameter"
	KindCapability       Kind = "capability"
	KindTypeMismatch     Kind = "type_mismatch"
	KindNotFound         Kind = "not_found"
	KindInvalidInput     Kind = "invalid_input"
	KindLimit            Kind = "limit"
	KindStalled          Kind = "stalled"
	KindInstantiation    Kind = "instantiation"
	KindTrap             Kind = "trap"
)

// Error is the structured error type used throughout the compiler
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Type   string
	Detail string
	Path   []string
	Node   int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}
	if e.Node > 0 {
		fmt.Fprintf(&b, " (node %d)", e.Node)
	}

	if e.Type != "" {
		b.WriteString(": type ")
		b.WriteString(e.Type)
	}

	if e.Detail != "" {
		if e.Type != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path (definition, diagram, terminal names)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Node sets the offending graph node id
func (b *Builder) Node(id int) *Builder {
	b.err.Node = id
	return b
}

// Type sets the offending type name
func (b *Builder) Type(t string) *Builder {
	b.err.Type = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Unsupported creates an unsupported construct error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotImplemented creates an error for constructs that are recognized but not lowered
func NotImplemented(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotImplemented,
		Detail: what,
	}
}

// MissingStrategy creates an error for a primitive operation without a lowering strategy
func MissingStrategy(op string) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindMissingStrategy,
		Detail: fmt.Sprintf("no lowering strategy for %q", op),
		Value:  op,
	}
}

// MissingTrait creates an error for a type that declares a trait without an implementation
func MissingTrait(trait, typeName string) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindMissingTrait,
		Type:   typeName,
		Detail: fmt.Sprintf("no %s implementation", trait),
	}
}

// InoutNotReference creates an error for an inout parameter with a value type
func InoutNotReference(param, typeName string) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindInvalidParameter,
		Path:   []string{param},
		Type:   typeName,
		Detail: "inout parameter must have a reference type",
	}
}

// Capability creates an error for an unsupported value source capability
func Capability(source, capability string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindCapability,
		Path:   []string{source},
		Detail: capability,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Limit creates an error for an exceeded implementation limit
func Limit(phase Phase, what string, value, max int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindLimit,
		Detail: fmt.Sprintf("%s: %d exceeds limit %d", what, value, max),
		Value:  value,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Stalled reports an activation that can make no further progress
func Stalled(entry string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindStalled,
		Path:   []string{entry},
		Detail: "no runnable tasks and promise not ready",
	}
}
