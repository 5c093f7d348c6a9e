// Package valuesource maps compiled variables to storage.
//
// A Source hides whether a variable lives in a wasm local, in the stack frame
// of the current invocation, or in the continuation record of an
// asynchronous activation. Code generation asks a Source for its value, its
// address, or to store into it, and gets the same emitted shape back
// regardless of where the variable lives.
//
// Scalar values travel on the operand stack. Aggregates travel by address:
// GetValue of an aggregate pushes its address, and the value closure given
// to UpdateValue or InitializeValue must push the address of the bytes to
// copy in.
package valuesource

import (
	"fmt"

	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/internal/codegen"
	"github.com/wippyai/asyncgraph/types"
)

// Kind is where a Source keeps its value.
type Kind uint8

const (
	// Register is a wasm local. Registers hold scalars and have no address.
	Register Kind = iota
	// StackLocal is a slot in the invocation's stack frame.
	StackLocal
	// StateField is a slot in the continuation record.
	StateField
)

func (k Kind) String() string {
	switch k {
	case Register:
		return "register"
	case StackLocal:
		return "stack"
	case StateField:
		return "state"
	}
	return "Kind(?)"
}

var (
	ErrNotAddressable     = fmt.Errorf("value source has no stable address")
	ErrNotUpdateable      = fmt.Errorf("value source is immutable after initialization")
	ErrAlreadyInitialized = fmt.Errorf("value source is already initialized")
	ErrUnboundRegister    = fmt.Errorf("register has no local assigned")
)

// Base names the wasm local holding the address that memory sources are
// relative to: the frame pointer or the state pointer of the function being
// emitted.
type Base struct {
	Local uint32
}

// Source is the storage of one variable.
type Source struct {
	Type *types.Type
	Name string
	Kind Kind
	// Offset of a memory source from its base.
	Offset uint32

	base        *Base
	local       uint32
	bound       bool
	mutable     bool
	initialized bool
}

// IsMemory reports whether the value lives in linear memory.
func (s *Source) IsMemory() bool { return s.Kind != Register }

// Mutable reports whether UpdateValue is allowed.
func (s *Source) Mutable() bool { return s.mutable }

// Local returns the wasm local of a register.
func (s *Source) Local() (uint32, bool) { return s.local, s.bound }

// Bind assigns the wasm local of a register.
func (s *Source) Bind(local uint32) {
	s.local = local
	s.bound = true
}

// Reset forgets that the source was initialized. The compiler calls it when
// it starts emitting a new activation scope.
func (s *Source) Reset() { s.initialized = false }

func (s *Source) fail(capability string, cause error) error {
	return errors.Capability(s.Name, capability, cause)
}

// GetValue pushes the value of a scalar, or the address of an aggregate.
func (s *Source) GetValue(e *codegen.Emitter) error {
	if s.Kind == Register {
		if !s.bound {
			return s.fail("get value", ErrUnboundRegister)
		}
		e.LocalGet(s.local)
		return nil
	}
	e.LocalGet(s.base.Local)
	if s.Type.IsScalar() {
		e.Load(s.Type, s.Offset)
		return nil
	}
	e.AddOffset(s.Offset)
	return nil
}

// GetAddress pushes the address of the value.
func (s *Source) GetAddress(e *codegen.Emitter) error {
	if s.Kind == Register {
		return s.fail("get address", ErrNotAddressable)
	}
	e.LocalGet(s.base.Local).AddOffset(s.Offset)
	return nil
}

// UpdateValue stores the value pushed by value.
func (s *Source) UpdateValue(e *codegen.Emitter, value func(*codegen.Emitter) error) error {
	if !s.mutable {
		return s.fail("update value", ErrNotUpdateable)
	}
	return s.store(e, value)
}

// InitializeValue stores the first value of the variable. It may be called
// once per activation scope.
func (s *Source) InitializeValue(e *codegen.Emitter, value func(*codegen.Emitter) error) error {
	if s.initialized {
		return s.fail("initialize value", ErrAlreadyInitialized)
	}
	s.initialized = true
	return s.store(e, value)
}

// InitializeAddress marks a memory source initialized and pushes its
// address, for values built field by field in place.
func (s *Source) InitializeAddress(e *codegen.Emitter) error {
	if s.Kind == Register {
		return s.fail("initialize in place", ErrNotAddressable)
	}
	if s.initialized {
		return s.fail("initialize in place", ErrAlreadyInitialized)
	}
	s.initialized = true
	e.LocalGet(s.base.Local).AddOffset(s.Offset)
	return nil
}

// ZeroValue initializes the variable to all zero bytes.
func (s *Source) ZeroValue(e *codegen.Emitter) error {
	if s.Kind == Register {
		return s.InitializeValue(e, func(e *codegen.Emitter) error {
			if s.Type.Scalar() == types.ScalarI64 {
				e.I64Const(0)
			} else {
				e.I32Const(0)
			}
			return nil
		})
	}
	if s.initialized {
		return s.fail("initialize value", ErrAlreadyInitialized)
	}
	s.initialized = true
	e.LocalGet(s.base.Local).AddOffset(s.Offset).ZeroBytes(s.Type.Size())
	return nil
}

func (s *Source) store(e *codegen.Emitter, value func(*codegen.Emitter) error) error {
	if s.Kind == Register {
		if !s.bound {
			return s.fail("store value", ErrUnboundRegister)
		}
		if err := value(e); err != nil {
			return err
		}
		e.LocalSet(s.local)
		return nil
	}
	if s.Type.IsScalar() {
		e.LocalGet(s.base.Local)
		if err := value(e); err != nil {
			return err
		}
		e.Store(s.Type, s.Offset)
		return nil
	}
	e.LocalGet(s.base.Local).AddOffset(s.Offset)
	if err := value(e); err != nil {
		return err
	}
	e.CopyBytes(s.Type.Size())
	return nil
}

func (s *Source) String() string {
	switch s.Kind {
	case Register:
		return fmt.Sprintf("%s: %s register", s.Name, s.Type)
	default:
		return fmt.Sprintf("%s: %s %s+%d", s.Name, s.Type, s.Kind, s.Offset)
	}
}
