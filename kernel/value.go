package kernel

import (
	"fmt"
)

// Value represents a Mycelia machine word using tag bits.
//
// All values are 64-bit words. The top 16 bits carry a tag and the low
// 48 bits carry the payload. The kernel has no float type, so the tag
// space is a plain prefix rather than a NaN box.
//
// Encoding scheme:
//   - Block: tagBlock + 48-bit arena index (a capability, never a raw pointer)
//   - Int: tagInt + 48-bit signed payload
//   - Atom: tagAtom + interned atom ID
//   - Op: tagOp + opcode number
//   - Special: tagSpecial + special value ID (nil/true/false)
type Value uint64

// Tag constants.
const (
	// Tag mask: top 16 bits.
	tagMask uint64 = 0xFFFF000000000000

	// Payload mask: 48 bits for index/int/id.
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	// Tag values (shifted into position).
	tagBlock   uint64 = 0x0001000000000000 // arena block index
	tagInt     uint64 = 0x0002000000000000 // 48-bit signed integer
	tagSpecial uint64 = 0x0003000000000000 // nil, true, false
	tagAtom    uint64 = 0x0004000000000000 // interned atom ID
	tagOp      uint64 = 0x0005000000000000 // dispatcher opcode

	// Sign bit for 48-bit integer sign extension.
	intSignBit uint64 = 0x0000800000000000

	// Mask for sign extension.
	intSignExtend uint64 = 0xFFFF000000000000
)

// Special value payloads.
const (
	specialNil   uint64 = 0
	specialTrue  uint64 = 1
	specialFalse uint64 = 2
)

// Pre-defined special values.
const (
	Nil   Value = Value(tagSpecial | specialNil)
	True  Value = Value(tagSpecial | specialTrue)
	False Value = Value(tagSpecial | specialFalse)
)

// Int range (48-bit signed).
const (
	MaxInt int64 = (1 << 47) - 1
	MinInt int64 = -(1 << 47)
)

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsBlock returns true if v is a block reference.
func (v Value) IsBlock() bool {
	return (uint64(v) & tagMask) == tagBlock
}

// IsInt returns true if v is a small integer.
func (v Value) IsInt() bool {
	return (uint64(v) & tagMask) == tagInt
}

// IsAtom returns true if v is an interned atom.
func (v Value) IsAtom() bool {
	return (uint64(v) & tagMask) == tagAtom
}

// IsOp returns true if v is a dispatcher opcode.
func (v Value) IsOp() bool {
	return (uint64(v) & tagMask) == tagOp
}

// IsSpecial returns true if v is nil, true, or false.
func (v Value) IsSpecial() bool {
	return (uint64(v) & tagMask) == tagSpecial
}

// IsNil returns true if v is the nil value.
func (v Value) IsNil() bool {
	return v == Nil
}

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool {
	return v == True || v == False
}

// Truthy returns false only for Nil and False, mirroring conditional
// dispatch in the instruction set.
func (v Value) Truthy() bool {
	return v != Nil && v != False
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// FromBlockIndex creates a block reference value from an arena index.
func FromBlockIndex(index uint32) Value {
	return Value(tagBlock | (uint64(index) & payloadMask))
}

// FromInt creates an integer value. Values outside the 48-bit signed
// range are truncated into it.
func FromInt(i int64) Value {
	return Value(tagInt | (uint64(i) & payloadMask))
}

// FromBool converts a Go bool to True or False.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromAtomID creates an atom value from an interned atom ID.
func FromAtomID(id uint32) Value {
	return Value(tagAtom | (uint64(id) & payloadMask))
}

// FromOpcode creates an opcode value.
func FromOpcode(op Opcode) Value {
	return Value(tagOp | (uint64(op) & payloadMask))
}

// ---------------------------------------------------------------------------
// Payload extraction
// ---------------------------------------------------------------------------

// BlockIndex returns the arena index of a block reference.
// Result is undefined if v is not a block reference.
func (v Value) BlockIndex() uint32 {
	return uint32(uint64(v) & payloadMask)
}

// Int returns the sign-extended integer payload.
// Result is undefined if v is not an integer.
func (v Value) Int() int64 {
	payload := uint64(v) & payloadMask
	if payload&intSignBit != 0 {
		payload |= intSignExtend
	}
	return int64(payload)
}

// AtomID returns the interned atom ID.
// Result is undefined if v is not an atom.
func (v Value) AtomID() uint32 {
	return uint32(uint64(v) & payloadMask)
}

// Opcode returns the opcode payload.
// Result is undefined if v is not an opcode.
func (v Value) Opcode() Opcode {
	return Opcode(uint64(v) & payloadMask)
}

// ---------------------------------------------------------------------------
// Debug formatting
// ---------------------------------------------------------------------------

// String renders a value for diagnostics. Atom names are not available
// without the runtime's atom table; use Runtime.FormatValue for those.
func (v Value) String() string {
	switch {
	case v == Nil:
		return "nil"
	case v == True:
		return "true"
	case v == False:
		return "false"
	case v.IsBlock():
		return fmt.Sprintf("#%d", v.BlockIndex())
	case v.IsInt():
		return fmt.Sprintf("%d", v.Int())
	case v.IsAtom():
		return fmt.Sprintf("atom:%d", v.AtomID())
	case v.IsOp():
		return v.Opcode().String()
	default:
		return fmt.Sprintf("value:%016x", uint64(v))
	}
}
