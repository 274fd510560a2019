package wasm

import (
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/errors"
)

// Section IDs used by the builder.
const (
	sectionType     = 0x01
	sectionImport   = 0x02
	sectionFunction = 0x03
	sectionMemory   = 0x05
	sectionGlobal   = 0x06
	sectionExport   = 0x07
	sectionCode     = 0x0a
)

// Limits describes a memory's page bounds.
// Shared memories must declare a maximum.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
	Shared bool
}

func (l Limits) encode() []byte {
	var flags byte
	if l.HasMax {
		flags |= 0x01
	}
	if l.Shared {
		flags |= 0x02
	}
	out := []byte{flags}
	out = append(out, EncodeULEB128(l.Min)...)
	if l.HasMax {
		out = append(out, EncodeULEB128(l.Max)...)
	}
	return out
}

type funcType struct {
	params, results []api.ValueType
}

func (f funcType) key() string {
	var b strings.Builder
	for _, p := range f.params {
		b.WriteByte(ValTypeToWasm(p))
	}
	b.WriteByte(':')
	for _, r := range f.results {
		b.WriteByte(ValTypeToWasm(r))
	}
	return b.String()
}

type funcImport struct {
	module, name string
	typeIdx      uint32
}

type memImport struct {
	module, name string
	limits       Limits
}

type function struct {
	typeIdx uint32
	locals  []api.ValueType
	body    []byte
}

type global struct {
	valType api.ValueType
	mutable bool
	init    int64
}

type export struct {
	name  string
	kind  api.ExternType
	index uint32
}

// ModuleBuilder assembles a small core module: imported and defined
// functions, one memory (imported or defined), globals and exports.
//
// Imported functions occupy the first indices of the function index space,
// so all ImportFunc calls must come before the first DefineFunc.
type ModuleBuilder struct {
	types     []funcType
	typeIndex map[string]uint32
	imports   []funcImport
	memImport *memImport
	memory    *Limits
	funcs     []function
	globals   []global
	exports   []export
	err       error
}

// NewModuleBuilder creates an empty builder.
func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{typeIndex: make(map[string]uint32)}
}

func (b *ModuleBuilder) fail(detail string) {
	if b.err == nil {
		b.err = errors.InvalidInput(errors.PhaseLoad, detail)
	}
}

func (b *ModuleBuilder) typeOf(params, results []api.ValueType) uint32 {
	ft := funcType{params: params, results: results}
	k := ft.key()
	if idx, ok := b.typeIndex[k]; ok {
		return idx
	}
	idx := uint32(len(b.types))
	b.types = append(b.types, ft)
	b.typeIndex[k] = idx
	return idx
}

// ImportFunc declares a function import and returns its function index.
func (b *ModuleBuilder) ImportFunc(module, name string, params, results []api.ValueType) uint32 {
	if len(b.funcs) > 0 {
		b.fail("function import " + module + "." + name + " declared after a defined function")
	}
	b.imports = append(b.imports, funcImport{module: module, name: name, typeIdx: b.typeOf(params, results)})
	return uint32(len(b.imports) - 1)
}

// ImportMemory declares the module's memory as an import.
func (b *ModuleBuilder) ImportMemory(module, name string, limits Limits) {
	if b.memory != nil || b.memImport != nil {
		b.fail("module already has a memory")
		return
	}
	b.memImport = &memImport{module: module, name: name, limits: limits}
}

// DefineMemory declares a memory owned by the module. Its index is 0.
func (b *ModuleBuilder) DefineMemory(limits Limits) {
	if b.memory != nil || b.memImport != nil {
		b.fail("module already has a memory")
		return
	}
	b.memory = &limits
}

// DefineGlobal adds a global initialized to a constant and returns its index.
func (b *ModuleBuilder) DefineGlobal(valType api.ValueType, mutable bool, init int64) uint32 {
	b.globals = append(b.globals, global{valType: valType, mutable: mutable, init: init})
	return uint32(len(b.globals) - 1)
}

// DefineFunc adds a function whose body is code (without the final end)
// and returns its function index.
func (b *ModuleBuilder) DefineFunc(params, results, locals []api.ValueType, code *Code) uint32 {
	var body []byte
	if code != nil {
		body = code.Bytes()
	}
	b.funcs = append(b.funcs, function{typeIdx: b.typeOf(params, results), locals: locals, body: body})
	return uint32(len(b.imports) + len(b.funcs) - 1)
}

// Export exports the entity of kind at index under name.
func (b *ModuleBuilder) Export(name string, kind api.ExternType, index uint32) {
	for _, e := range b.exports {
		if e.name == name {
			b.fail("duplicate export " + name)
			return
		}
	}
	b.exports = append(b.exports, export{name: name, kind: kind, index: index})
}

// Build encodes the module.
func (b *ModuleBuilder) Build() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.memImport != nil && b.memImport.limits.Shared && !b.memImport.limits.HasMax {
		return nil, errors.InvalidInput(errors.PhaseLoad, "shared memory requires a maximum")
	}
	if b.memory != nil && b.memory.Shared && !b.memory.HasMax {
		return nil, errors.InvalidInput(errors.PhaseLoad, "shared memory requires a maximum")
	}

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(b.types) > 0 {
		out = appendSection(out, sectionType, b.typeSection())
	}
	if len(b.imports) > 0 || b.memImport != nil {
		out = appendSection(out, sectionImport, b.importSection())
	}
	if len(b.funcs) > 0 {
		sec := EncodeULEB128(uint32(len(b.funcs)))
		for _, f := range b.funcs {
			sec = append(sec, EncodeULEB128(f.typeIdx)...)
		}
		out = appendSection(out, sectionFunction, sec)
	}
	if b.memory != nil {
		sec := EncodeULEB128(1)
		sec = append(sec, b.memory.encode()...)
		out = appendSection(out, sectionMemory, sec)
	}
	if len(b.globals) > 0 {
		out = appendSection(out, sectionGlobal, b.globalSection())
	}
	if len(b.exports) > 0 {
		sec := EncodeULEB128(uint32(len(b.exports)))
		for _, e := range b.exports {
			sec = appendName(sec, e.name)
			sec = append(sec, e.kind)
			sec = append(sec, EncodeULEB128(e.index)...)
		}
		out = appendSection(out, sectionExport, sec)
	}
	if len(b.funcs) > 0 {
		out = appendSection(out, sectionCode, b.codeSection())
	}

	return out, nil
}

func (b *ModuleBuilder) typeSection() []byte {
	sec := EncodeULEB128(uint32(len(b.types)))
	for _, ft := range b.types {
		sec = append(sec, 0x60)
		sec = append(sec, EncodeULEB128(uint32(len(ft.params)))...)
		for _, t := range ft.params {
			sec = append(sec, ValTypeToWasm(t))
		}
		sec = append(sec, EncodeULEB128(uint32(len(ft.results)))...)
		for _, t := range ft.results {
			sec = append(sec, ValTypeToWasm(t))
		}
	}
	return sec
}

func (b *ModuleBuilder) importSection() []byte {
	n := len(b.imports)
	if b.memImport != nil {
		n++
	}
	sec := EncodeULEB128(uint32(n))
	for _, imp := range b.imports {
		sec = appendName(sec, imp.module)
		sec = appendName(sec, imp.name)
		sec = append(sec, api.ExternTypeFunc)
		sec = append(sec, EncodeULEB128(imp.typeIdx)...)
	}
	if m := b.memImport; m != nil {
		sec = appendName(sec, m.module)
		sec = appendName(sec, m.name)
		sec = append(sec, api.ExternTypeMemory)
		sec = append(sec, m.limits.encode()...)
	}
	return sec
}

func (b *ModuleBuilder) globalSection() []byte {
	sec := EncodeULEB128(uint32(len(b.globals)))
	for _, g := range b.globals {
		sec = append(sec, ValTypeToWasm(g.valType))
		if g.mutable {
			sec = append(sec, 0x01)
		} else {
			sec = append(sec, 0x00)
		}
		switch g.valType {
		case api.ValueTypeI64:
			sec = append(sec, 0x42)
			sec = append(sec, EncodeSLEB128(g.init)...)
		default:
			sec = append(sec, 0x41)
			sec = append(sec, EncodeSLEB128(int32(g.init))...)
		}
		sec = append(sec, 0x0b)
	}
	return sec
}

func (b *ModuleBuilder) codeSection() []byte {
	sec := EncodeULEB128(uint32(len(b.funcs)))
	for _, f := range b.funcs {
		var body []byte
		// one local entry per declared local keeps the encoding trivial
		body = append(body, EncodeULEB128(uint32(len(f.locals)))...)
		for _, l := range f.locals {
			body = append(body, 0x01, ValTypeToWasm(l))
		}
		body = append(body, f.body...)
		body = append(body, 0x0b)
		sec = append(sec, EncodeULEB128(uint32(len(body)))...)
		sec = append(sec, body...)
	}
	return sec
}
