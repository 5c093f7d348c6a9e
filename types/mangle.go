package types

import "strings"

// String renders t with the deterministic tokens used for monomorphized
// names. The rendering must stay stable: generated helper names and their
// memoization key depend on it.
func (t *Type) String() string {
	var b strings.Builder
	t.writeTo(&b)
	return b.String()
}

var kindTokens = [...]string{
	KindBool:                "bool",
	KindInt8:                "i8",
	KindUInt8:               "u8",
	KindInt16:               "i16",
	KindUInt16:              "u16",
	KindInt32:               "i32",
	KindUInt32:              "u32",
	KindInt64:               "i64",
	KindUInt64:              "u64",
	KindString:              "string",
	KindStringSlice:         "str",
	KindFileHandle:          "filehandle",
	KindFakeDrop:            "fakedrop",
	KindRangeIterator:       "rangeiterator",
	KindStringSplitIterator: "stringsplititerator",
	KindWaker:               "waker",
}

var wrapperTokens = map[Kind]string{
	KindSlice:                 "slice",
	KindReference:             "ref",
	KindOption:                "option",
	KindPanicResult:           "panicResult",
	KindVector:                "vec",
	KindShared:                "shared",
	KindYieldPromise:          "yieldPromise",
	KindMethodCallPromise:     "methodCallPromise",
	KindNotifierReader:        "notifierReader",
	KindNotifierWriter:        "notifierWriter",
	KindNotifierReaderPromise: "notifierReaderPromise",
}

func (t *Type) writeTo(b *strings.Builder) {
	if t == nil {
		b.WriteString("<nil>")
		return
	}
	switch t.kind {
	case KindReference:
		if t.elem.kind == KindStringSlice {
			b.WriteString("str")
			return
		}
	case KindCluster:
		b.WriteByte('{')
		for i, f := range t.fields {
			if i > 0 {
				b.WriteByte(',')
			}
			f.writeTo(b)
		}
		b.WriteByte('}')
		return
	case KindVariant:
		b.WriteString("variant[")
		for i, f := range t.fields {
			if i > 0 {
				b.WriteByte('|')
			}
			f.writeTo(b)
		}
		b.WriteByte(']')
		return
	case KindValueClass:
		b.WriteString(t.QualifiedName())
		return
	}

	if tok, ok := wrapperTokens[t.kind]; ok {
		b.WriteString(tok)
		b.WriteByte('[')
		t.elem.writeTo(b)
		b.WriteByte(']')
		return
	}
	if int(t.kind) < len(kindTokens) && kindTokens[t.kind] != "" {
		b.WriteString(kindTokens[t.kind])
		return
	}
	b.WriteString("invalid")
}

// Monomorphize returns the specialized name of a generic helper: the base
// name followed by one token per type argument.
func Monomorphize(name string, args ...*Type) string {
	var b strings.Builder
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte('_')
		a.writeTo(&b)
	}
	return b.String()
}
