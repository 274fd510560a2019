package wasm

// Code accumulates the instructions of a function body.
type Code struct {
	buf []byte
}

// NewCode returns an empty instruction sequence.
func NewCode() *Code {
	return &Code{}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	return c.buf
}

func (c *Code) op(b ...byte) *Code {
	c.buf = append(c.buf, b...)
	return c
}

// I32Const pushes v.
func (c *Code) I32Const(v int32) *Code {
	return c.op(0x41).op(EncodeSLEB128(v)...)
}

// LocalGet pushes local i.
func (c *Code) LocalGet(i uint32) *Code {
	return c.op(0x20).op(EncodeULEB128(i)...)
}

// LocalSet pops into local i.
func (c *Code) LocalSet(i uint32) *Code {
	return c.op(0x21).op(EncodeULEB128(i)...)
}

// GlobalGet pushes global i.
func (c *Code) GlobalGet(i uint32) *Code {
	return c.op(0x23).op(EncodeULEB128(i)...)
}

// GlobalSet pops into global i.
func (c *Code) GlobalSet(i uint32) *Code {
	return c.op(0x24).op(EncodeULEB128(i)...)
}

// Call calls function index fn.
func (c *Code) Call(fn uint32) *Code {
	return c.op(0x10).op(EncodeULEB128(fn)...)
}

// I32Load loads an i32 from address+offset (align 4).
func (c *Code) I32Load(offset uint32) *Code {
	return c.op(0x28, 0x02).op(EncodeULEB128(offset)...)
}

// I32Store stores an i32 at address+offset (align 4).
func (c *Code) I32Store(offset uint32) *Code {
	return c.op(0x36, 0x02).op(EncodeULEB128(offset)...)
}

// I32Add adds the two topmost i32 values.
func (c *Code) I32Add() *Code {
	return c.op(0x6a)
}

// Drop discards the top of the stack.
func (c *Code) Drop() *Code {
	return c.op(0x1a)
}
