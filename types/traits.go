package types

// Trait is a bit set of trait facts.
type Trait uint8

const (
	TraitCopy Trait = 1 << iota
	TraitClone
	TraitDrop
	TraitDisplay
)

func (t Trait) String() string {
	switch t {
	case TraitCopy:
		return "Copy"
	case TraitClone:
		return "Clone"
	case TraitDrop:
		return "Drop"
	case TraitDisplay:
		return "Display"
	}
	return "Trait"
}

// Has reports whether t carries the given trait fact.
func (t *Type) Has(tr Trait) bool {
	switch tr {
	case TraitCopy:
		return t.isCopy()
	case TraitClone:
		return t.isClone()
	case TraitDrop:
		return t.isDrop()
	case TraitDisplay:
		return t.isDisplay()
	}
	return false
}

func (t *Type) isCopy() bool {
	switch t.kind {
	case KindBool, KindWaker:
		return true
	case KindReference:
		return t.mut == Immutable
	case KindValueClass:
		return t.traits&TraitCopy != 0
	}
	return t.IsInteger()
}

func (t *Type) isClone() bool {
	if t.isCopy() {
		return true
	}
	switch t.kind {
	case KindString, KindShared:
		return true
	case KindVector, KindOption:
		return t.elem.isClone()
	case KindCluster:
		for _, f := range t.fields {
			if !f.isClone() {
				return false
			}
		}
		return true
	case KindValueClass:
		return t.traits&TraitClone != 0
	}
	return false
}

func (t *Type) isDrop() bool {
	switch t.kind {
	case KindString, KindVector, KindFileHandle, KindFakeDrop, KindShared,
		KindNotifierReader, KindNotifierWriter, KindNotifierReaderPromise:
		return true
	case KindOption, KindPanicResult, KindYieldPromise:
		return t.elem.isDrop()
	case KindCluster, KindVariant:
		for _, f := range t.fields {
			if f.isDrop() {
				return true
			}
		}
		return false
	case KindValueClass:
		return t.traits&TraitDrop != 0
	}
	return false
}

func (t *Type) isDisplay() bool {
	switch t.kind {
	case KindBool, KindString, KindStringSlice:
		return true
	}
	return t.IsInteger()
}
