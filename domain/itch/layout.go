package itch

import "sort"

// FieldType says how the bytes of a field are interpreted.
type FieldType uint8

const (
	// Uint is an unsigned big-endian integer of 1 to 8 bytes. Single byte
	// character codes (side, event code, cross type) are also Uint.
	Uint FieldType = iota + 1
	// Alpha is space padded ASCII.
	Alpha
	// PriceField is an unsigned integer with Scale implied decimals.
	PriceField
	// Opaque bytes are part of the layout length but not decoded.
	Opaque
)

// FieldName identifies a decoded value independently of its offset.
type FieldName uint8

const (
	fieldNone FieldName = iota
	FieldTag
	FieldLocate
	FieldTracking
	FieldTimestamp
	FieldSeconds
	FieldEventCode
	FieldStock
	FieldReason
	FieldOrderRef
	FieldNewOrderRef
	FieldSide
	FieldShares
	FieldPrice
	FieldAttribution
	FieldMatch
	FieldPrintable
	FieldCrossType
	FieldPaired
	FieldImbalance
	FieldDirection
	FieldFarPrice
	FieldNearPrice
	FieldRefPrice
	FieldVariation
	FieldLevel1
	FieldLevel2
	FieldLevel3
	numFieldNames
)

// Field is one fixed-width field of a layout.
type Field struct {
	Name   FieldName
	Type   FieldType
	Offset int
	Width  int
	Scale  uint8
}

// Layout is the fixed byte plan of one message type in one version.
type Layout struct {
	Version Version
	Tag     byte
	Kind    Kind
	Length  int
	Fields  []Field

	priced bool
}

// Field returns the field called name.
func (l *Layout) Field(name FieldName) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func u(name FieldName, width int) Field { return Field{Name: name, Type: Uint, Width: width} }
func a(name FieldName, width int) Field { return Field{Name: name, Type: Alpha, Width: width} }
func skip(width int) Field              { return Field{Type: Opaque, Width: width} }

func px(name FieldName, width int, scale uint8) Field {
	return Field{Name: name, Type: PriceField, Width: width, Scale: scale}
}

type msgDef struct {
	tag    byte
	kind   Kind
	bare   bool
	fields []Field
}

func msg(tag byte, kind Kind, fields ...Field) msgDef {
	return msgDef{tag: tag, kind: kind, fields: fields}
}

// bareMsg has no timestamp field after the tag.
func bareMsg(tag byte, kind Kind, fields ...Field) msgDef {
	return msgDef{tag: tag, kind: kind, bare: true, fields: fields}
}

func header(v Version, bare bool) []Field {
	tag := u(FieldTag, 1)
	switch {
	case bare:
		return []Field{tag}
	case v == V41:
		return []Field{tag, u(FieldTimestamp, 4)}
	default:
		return []Field{tag, u(FieldLocate, 2), u(FieldTracking, 2), u(FieldTimestamp, 6)}
	}
}

func buildTable(v Version, defs ...msgDef) map[byte]*Layout {
	table := make(map[byte]*Layout, len(defs))
	for _, s := range defs {
		l := &Layout{Version: v, Tag: s.tag, Kind: s.kind}
		fields := append(header(v, s.bare), s.fields...)
		off := 0
		for _, f := range fields {
			f.Offset = off
			off += f.Width
			if f.Name == FieldPrice {
				l.priced = true
			}
			l.Fields = append(l.Fields, f)
		}
		l.Length = off
		table[s.tag] = l
	}
	return table
}

var layouts = map[Version]map[byte]*Layout{
	V41: buildTable(V41,
		bareMsg('T', KindClock, u(FieldSeconds, 4)),
		msg('S', KindSystem, u(FieldEventCode, 1)),
		msg('R', KindOther, a(FieldStock, 8), skip(7)),
		msg('H', KindSystem, a(FieldStock, 8), u(FieldEventCode, 1), skip(1), a(FieldReason, 4)),
		msg('Y', KindOther, a(FieldStock, 8), skip(1)),
		msg('L', KindOther, skip(4), a(FieldStock, 8), skip(3)),
		msg('A', KindOrder, u(FieldOrderRef, 8), u(FieldSide, 1), u(FieldShares, 4), a(FieldStock, 8), px(FieldPrice, 4, 4)),
		msg('F', KindOrder, u(FieldOrderRef, 8), u(FieldSide, 1), u(FieldShares, 4), a(FieldStock, 8), px(FieldPrice, 4, 4), a(FieldAttribution, 4)),
		msg('E', KindOrder, u(FieldOrderRef, 8), u(FieldShares, 4), u(FieldMatch, 8)),
		msg('C', KindOrder, u(FieldOrderRef, 8), u(FieldShares, 4), u(FieldMatch, 8), u(FieldPrintable, 1), px(FieldPrice, 4, 4)),
		msg('X', KindOrder, u(FieldOrderRef, 8), u(FieldShares, 4)),
		msg('D', KindOrder, u(FieldOrderRef, 8)),
		msg('U', KindOrder, u(FieldOrderRef, 8), u(FieldNewOrderRef, 8), u(FieldShares, 4), px(FieldPrice, 4, 4)),
		msg('P', KindTrade, u(FieldOrderRef, 8), u(FieldSide, 1), u(FieldShares, 4), a(FieldStock, 8), px(FieldPrice, 4, 4), u(FieldMatch, 8)),
		msg('Q', KindTrade, u(FieldShares, 8), a(FieldStock, 8), px(FieldPrice, 4, 4), u(FieldMatch, 8), u(FieldCrossType, 1)),
		msg('B', KindTrade, u(FieldMatch, 8)),
		msg('I', KindNOII, u(FieldPaired, 8), u(FieldImbalance, 8), u(FieldDirection, 1), a(FieldStock, 8),
			px(FieldFarPrice, 4, 4), px(FieldNearPrice, 4, 4), px(FieldRefPrice, 4, 4), u(FieldCrossType, 1), u(FieldVariation, 1)),
		msg('N', KindOther, a(FieldStock, 8), skip(1)),
	),
	V50: buildTable(V50,
		msg('S', KindSystem, u(FieldEventCode, 1)),
		msg('R', KindOther, a(FieldStock, 8), skip(20)),
		msg('H', KindSystem, a(FieldStock, 8), u(FieldEventCode, 1), skip(1), a(FieldReason, 4)),
		msg('Y', KindOther, a(FieldStock, 8), skip(1)),
		msg('L', KindOther, skip(4), a(FieldStock, 8), skip(3)),
		msg('V', KindOther, px(FieldLevel1, 8, 8), px(FieldLevel2, 8, 8), px(FieldLevel3, 8, 8)),
		msg('W', KindOther, skip(1)),
		msg('K', KindOther, a(FieldStock, 8), skip(5), px(FieldLevel1, 4, 4)),
		msg('J', KindOther, a(FieldStock, 8), px(FieldLevel1, 4, 4), px(FieldLevel2, 4, 4), px(FieldLevel3, 4, 4), skip(4)),
		msg('h', KindOther, a(FieldStock, 8), skip(2)),
		msg('A', KindOrder, u(FieldOrderRef, 8), u(FieldSide, 1), u(FieldShares, 4), a(FieldStock, 8), px(FieldPrice, 4, 4)),
		msg('F', KindOrder, u(FieldOrderRef, 8), u(FieldSide, 1), u(FieldShares, 4), a(FieldStock, 8), px(FieldPrice, 4, 4), a(FieldAttribution, 4)),
		msg('E', KindOrder, u(FieldOrderRef, 8), u(FieldShares, 4), u(FieldMatch, 8)),
		msg('C', KindOrder, u(FieldOrderRef, 8), u(FieldShares, 4), u(FieldMatch, 8), u(FieldPrintable, 1), px(FieldPrice, 4, 4)),
		msg('X', KindOrder, u(FieldOrderRef, 8), u(FieldShares, 4)),
		msg('D', KindOrder, u(FieldOrderRef, 8)),
		msg('U', KindOrder, u(FieldOrderRef, 8), u(FieldNewOrderRef, 8), u(FieldShares, 4), px(FieldPrice, 4, 4)),
		msg('P', KindTrade, u(FieldOrderRef, 8), u(FieldSide, 1), u(FieldShares, 4), a(FieldStock, 8), px(FieldPrice, 4, 4), u(FieldMatch, 8)),
		msg('Q', KindTrade, u(FieldShares, 8), a(FieldStock, 8), px(FieldPrice, 4, 4), u(FieldMatch, 8), u(FieldCrossType, 1)),
		msg('B', KindTrade, u(FieldMatch, 8)),
		msg('I', KindNOII, u(FieldPaired, 8), u(FieldImbalance, 8), u(FieldDirection, 1), a(FieldStock, 8),
			px(FieldFarPrice, 4, 4), px(FieldNearPrice, 4, 4), px(FieldRefPrice, 4, 4), u(FieldCrossType, 1), u(FieldVariation, 1)),
		msg('N', KindOther, a(FieldStock, 8), skip(1)),
	),
}

// Lookup returns the layout of tag in version v.
func Lookup(v Version, tag byte) (*Layout, bool) {
	l, ok := layouts[v][tag]
	return l, ok
}

// Tags lists the type tags defined for v in ascending order.
func Tags(v Version) []byte {
	tags := make([]byte, 0, len(layouts[v]))
	for tag := range layouts[v] {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
