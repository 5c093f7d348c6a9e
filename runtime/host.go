package runtime

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/asyncgraph/compiler"
	"github.com/wippyai/asyncgraph/errors"
	"github.com/wippyai/asyncgraph/types"
	"github.com/wippyai/asyncgraph/wasm"
)

// guest gives host functions checked access to the calling instance. The
// first failure sticks; later accessors return zero values.
type guest struct {
	mem api.Memory
	s   *session
	err error
}

func (g *guest) fail(err error) {
	if g.err == nil {
		g.err = err
	}
}

func (g *guest) outOfRange(addr, n uint32) {
	g.fail(errors.New(errors.PhaseRuntime, errors.KindTrap).
		Value(addr).Detail("access of %d bytes at %#x out of range", n, addr).Build())
}

func (g *guest) u32(addr uint32) uint32 {
	if g.err != nil {
		return 0
	}
	v, ok := g.mem.ReadUint32Le(addr)
	if !ok {
		g.outOfRange(addr, 4)
	}
	return v
}

func (g *guest) putU32(addr, v uint32) {
	if g.err != nil {
		return
	}
	if !g.mem.WriteUint32Le(addr, v) {
		g.outOfRange(addr, 4)
	}
}

func (g *guest) putByte(addr uint32, v byte) {
	if g.err != nil {
		return
	}
	if !g.mem.WriteByte(addr, v) {
		g.outOfRange(addr, 1)
	}
}

// bytes copies n bytes out of guest memory.
func (g *guest) bytes(addr, n uint32) []byte {
	if g.err != nil || n == 0 {
		return nil
	}
	b, ok := g.mem.Read(addr, n)
	if !ok {
		g.outOfRange(addr, n)
		return nil
	}
	return append([]byte(nil), b...)
}

func (g *guest) write(addr uint32, b []byte) {
	if g.err != nil || len(b) == 0 {
		return
	}
	if !g.mem.Write(addr, b) {
		g.outOfRange(addr, uint32(len(b)))
	}
}

func (g *guest) alloc(size, align uint32) uint32 {
	if g.err != nil {
		return 0
	}
	ptr, err := g.s.heap.alloc(g.mem, size, align)
	if err != nil {
		g.fail(err)
	}
	return ptr
}

func (g *guest) free(ptr uint32) {
	if g.err != nil {
		return
	}
	if err := g.s.heap.release(ptr); err != nil {
		g.fail(err)
	}
}

// slice reads the bytes a {ptr, len} pair at addr describes.
func (g *guest) slice(addr uint32) []byte {
	ptr := g.u32(addr + types.FatPtrOffset)
	n := g.u32(addr + types.FatLenOffset)
	return g.bytes(ptr, n)
}

// str reads the String at addr.
func (g *guest) str(addr uint32) []byte {
	ptr := g.u32(addr + types.BufferPtrOffset)
	n := g.u32(addr + types.BufferLenOffset)
	return g.bytes(ptr, n)
}

// newString stores a freshly allocated String holding data at out.
func (g *guest) newString(out uint32, data []byte) {
	var ptr uint32
	if len(data) > 0 {
		ptr = g.alloc(uint32(len(data)), 1)
		g.write(ptr, data)
	}
	g.putU32(out+types.BufferPtrOffset, ptr)
	g.putU32(out+types.BufferLenOffset, uint32(len(data)))
	g.putU32(out+types.BufferCapOffset, uint32(len(data)))
}

// some writes an option tag at out and returns the payload address.
func (g *guest) option(out uint32, opt *types.Type, present bool) uint32 {
	var tag byte
	if present {
		tag = 1
	}
	g.putByte(out+types.TagOffset, tag)
	return out + opt.PayloadOffset()
}

type hostFunc func(g *guest, stack []uint64)

func (h hostFunc) goFunc() api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		s := sessionFrom(ctx)
		if s == nil {
			_ = mod.CloseWithExitCode(ctx, 1)
			return
		}
		g := &guest{mem: mod.Memory(), s: s}
		h(g, stack)
		if g.err != nil {
			s.abort(ctx, mod, g.err)
		}
	}
}

var (
	optionInt32  = types.Option(types.Int32)
	optionStr    = types.Option(types.ImmutableRef(types.StringSlice, ""))
	optionString = types.Option(types.String)
	optionFile   = types.Option(types.FileHandle)
)

func outputInt(conv func(uint64) int64) hostFunc {
	return func(g *guest, stack []uint64) {
		g.s.output(strconv.FormatInt(conv(stack[0]), 10))
	}
}

func outputUint(conv func(uint64) uint64) hostFunc {
	return func(g *guest, stack []uint64) {
		g.s.output(strconv.FormatUint(conv(stack[0]), 10))
	}
}

// surface implements every function of compiler.RuntimeImports.
var surface = map[string]hostFunc{
	compiler.SymAlloc: func(g *guest, stack []uint64) {
		stack[0] = api.EncodeU32(g.alloc(api.DecodeU32(stack[0]), api.DecodeU32(stack[1])))
	},
	compiler.SymFree: func(g *guest, stack []uint64) {
		g.free(api.DecodeU32(stack[0]))
	},
	compiler.SymSchedule: func(g *guest, stack []uint64) {
		g.s.schedule(api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
	},
	compiler.SymFakeDrop: func(g *guest, stack []uint64) {
		g.s.fakeDrops = append(g.s.fakeDrops, api.DecodeI32(stack[0]))
	},

	compiler.SymOutputBool: func(g *guest, stack []uint64) {
		g.s.output(strconv.FormatBool(api.DecodeU32(stack[0]) != 0))
	},
	compiler.SymOutputInt8:   outputInt(func(v uint64) int64 { return int64(int8(v)) }),
	compiler.SymOutputUInt8:  outputUint(func(v uint64) uint64 { return uint64(uint8(v)) }),
	compiler.SymOutputInt16:  outputInt(func(v uint64) int64 { return int64(int16(v)) }),
	compiler.SymOutputUInt16: outputUint(func(v uint64) uint64 { return uint64(uint16(v)) }),
	compiler.SymOutputInt32:  outputInt(func(v uint64) int64 { return int64(int32(v)) }),
	compiler.SymOutputUInt32: outputUint(func(v uint64) uint64 { return uint64(uint32(v)) }),
	compiler.SymOutputInt64:  outputInt(func(v uint64) int64 { return int64(v) }),
	compiler.SymOutputUInt64: outputUint(func(v uint64) uint64 { return v }),
	compiler.SymOutputString: func(g *guest, stack []uint64) {
		b := g.bytes(api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
		if g.err == nil {
			g.s.output(string(b))
		}
	},

	compiler.SymStringFromSlice: func(g *guest, stack []uint64) {
		g.newString(api.DecodeU32(stack[1]), g.slice(api.DecodeU32(stack[0])))
	},
	compiler.SymStringConcat: func(g *guest, stack []uint64) {
		a := g.slice(api.DecodeU32(stack[0]))
		b := g.slice(api.DecodeU32(stack[1]))
		g.newString(api.DecodeU32(stack[2]), append(a, b...))
	},
	compiler.SymStringAppend: func(g *guest, stack []uint64) {
		s := api.DecodeU32(stack[0])
		tail := g.slice(api.DecodeU32(stack[1]))
		if len(tail) == 0 {
			return
		}
		ptr := g.u32(s + types.BufferPtrOffset)
		n := g.u32(s + types.BufferLenOffset)
		capacity := g.u32(s + types.BufferCapOffset)
		need := n + uint32(len(tail))
		if need > capacity {
			capacity = max(need, capacity*2)
			grown := g.alloc(capacity, 1)
			g.write(grown, g.bytes(ptr, n))
			g.free(ptr)
			ptr = grown
			g.putU32(s+types.BufferPtrOffset, ptr)
			g.putU32(s+types.BufferCapOffset, capacity)
		}
		g.write(ptr+n, tail)
		g.putU32(s+types.BufferLenOffset, need)
	},
	compiler.SymStringClone: func(g *guest, stack []uint64) {
		g.newString(api.DecodeU32(stack[1]), g.str(api.DecodeU32(stack[0])))
	},
	compiler.SymStringDrop: func(g *guest, stack []uint64) {
		g.free(g.u32(api.DecodeU32(stack[0]) + types.BufferPtrOffset))
	},

	compiler.SymStringSplitIteratorNext: func(g *guest, stack []uint64) {
		it, out := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
		ptr := g.u32(it + types.FatPtrOffset)
		rest := string(g.bytes(ptr, g.u32(it+types.FatLenOffset)))
		trimmed := strings.TrimLeftFunc(rest, unicode.IsSpace)
		ptr += uint32(len(rest) - len(trimmed))
		if trimmed == "" {
			g.putU32(it+types.FatPtrOffset, ptr)
			g.putU32(it+types.FatLenOffset, 0)
			g.option(out, optionStr, false)
			return
		}
		end := strings.IndexFunc(trimmed, unicode.IsSpace)
		if end < 0 {
			end = len(trimmed)
		}
		payload := g.option(out, optionStr, true)
		g.putU32(payload+types.FatPtrOffset, ptr)
		g.putU32(payload+types.FatLenOffset, uint32(end))
		g.putU32(it+types.FatPtrOffset, ptr+uint32(end))
		g.putU32(it+types.FatLenOffset, uint32(len(trimmed)-end))
	},
	compiler.SymRangeIteratorNext: func(g *guest, stack []uint64) {
		it, out := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
		cur := int32(g.u32(it + types.RangeCurrentOffset))
		high := int32(g.u32(it + types.RangeHighOffset))
		if cur >= high {
			g.option(out, optionInt32, false)
			return
		}
		g.putU32(g.option(out, optionInt32, true), uint32(cur))
		g.putU32(it+types.RangeCurrentOffset, uint32(cur+1))
	},

	compiler.SymOpenFileHandle: func(g *guest, stack []uint64) {
		name := string(g.slice(api.DecodeU32(stack[0])))
		out := api.DecodeU32(stack[1])
		if g.err != nil {
			return
		}
		h, ok := g.s.files.open(name)
		if !ok {
			g.option(out, optionFile, false)
			return
		}
		g.putU32(g.option(out, optionFile, true), h)
	},
	compiler.SymReadLine: func(g *guest, stack []uint64) {
		h := g.u32(api.DecodeU32(stack[0]))
		out := api.DecodeU32(stack[1])
		if g.err != nil {
			return
		}
		line, ok, err := g.s.files.readLine(h)
		if err != nil {
			g.fail(err)
			return
		}
		if !ok {
			g.option(out, optionString, false)
			return
		}
		g.newString(g.option(out, optionString, true), []byte(line))
	},
	compiler.SymWriteString: func(g *guest, stack []uint64) {
		h := g.u32(api.DecodeU32(stack[0]))
		data := g.slice(api.DecodeU32(stack[1]))
		if g.err != nil {
			return
		}
		if err := g.s.files.write(h, data); err != nil {
			g.fail(err)
		}
	},
	compiler.SymDropFileHandle: func(g *guest, stack []uint64) {
		if h := api.DecodeU32(stack[0]); h != 0 {
			if err := g.s.files.close(h); err != nil {
				g.fail(err)
			}
		}
	},
}

func valueTypes(vts []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(vts))
	for i, vt := range vts {
		if vt == wasm.ValI64 {
			out[i] = api.ValueTypeI64
		} else {
			out[i] = api.ValueTypeI32
		}
	}
	return out
}

// instantiateHost registers the runtime surface under the "rt" module.
func instantiateHost(ctx context.Context, wz wazero.Runtime) error {
	b := wz.NewHostModuleBuilder(compiler.RuntimeModule)
	for _, imp := range compiler.RuntimeImports {
		fn, ok := surface[imp.Name]
		if !ok {
			return errors.NotFound(errors.PhaseHost, "runtime function", imp.Name)
		}
		b = b.NewFunctionBuilder().
			WithGoModuleFunction(fn.goFunc(), valueTypes(imp.Type.Params), valueTypes(imp.Type.Results)).
			WithName(imp.Name).
			Export(imp.Name)
	}
	_, err := b.Instantiate(ctx)
	return err
}
