// Package wasm provides the small part of the WebAssembly binary format the
// bridge needs to synthesize modules: LEB128 encoding and a builder for
// modules with function imports, one (optionally shared) memory, constant
// globals, simple function bodies and exports.
//
// The engine uses it to build the module that owns the shared linear memory;
// tests use it to build guests that speak the bridge protocol.
//
//	b := wasm.NewModuleBuilder()
//	b.DefineMemory(wasm.Limits{Min: 17, Max: 1024, HasMax: true, Shared: true})
//	b.Export("memory", api.ExternTypeMemory, 0)
//	bin, err := b.Build()
package wasm
