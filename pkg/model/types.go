package model

// Kind identifies the shape of a recorded mutation.
type Kind string

const (
	KindValueChange        Kind = "value_change"
	KindClearField         Kind = "clear_field"
	KindArtworkChange      Kind = "artwork_change"
	KindArtworkDelete      Kind = "artwork_delete"
	KindFieldDelete        Kind = "field_delete"
	KindFieldCreate        Kind = "field_create"
	KindBatchValueChange   Kind = "batch_value_change"
	KindBatchArtworkChange Kind = "batch_artwork_change"
	KindBatchFieldDelete   Kind = "batch_field_delete"
	KindBatchFieldCreate   Kind = "batch_field_create"
)

// Kinds lists every kind in declaration order.
var Kinds = []Kind{
	KindValueChange, KindClearField, KindArtworkChange, KindArtworkDelete,
	KindFieldDelete, KindFieldCreate, KindBatchValueChange,
	KindBatchArtworkChange, KindBatchFieldDelete, KindBatchFieldCreate,
}

// IsBatch reports whether actions of this kind may span several files.
func (k Kind) IsBatch() bool {
	switch k {
	case KindBatchValueChange, KindBatchArtworkChange, KindBatchFieldDelete, KindBatchFieldCreate:
		return true
	}
	return false
}

// IsArtwork reports whether the kind stores blob references rather than text.
func (k Kind) IsArtwork() bool {
	return k == KindArtworkChange || k == KindArtworkDelete || k == KindBatchArtworkChange
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// HashValue is a BLAKE2b-256 content hash stored as hex string.
type HashValue string

// ArtworkField is the display label carried by artwork actions.
const ArtworkField = "art"

// Value is the state of one field (or the artwork slot) of one file.
// Exactly one of Text and Blob is meaningful unless Absent is set.
type Value struct {
	Text   string    `json:"text,omitempty"`
	Blob   HashValue `json:"blob,omitempty"`
	Absent bool      `json:"absent,omitempty"`
}

// Text returns a present text value.
func Text(s string) Value { return Value{Text: s} }

// Blob returns a blob reference, or an absent value when h is empty.
func Blob(h HashValue) Value {
	if h == "" {
		return Value{Absent: true}
	}
	return Value{Blob: h}
}

// Absent returns the value of a field that does not exist.
func Absent() Value { return Value{Absent: true} }

// Display renders the value the way history listings show it.
func (v Value) Display() string {
	switch {
	case v.Absent:
		return ""
	case v.Blob != "":
		return string(v.Blob)
	default:
		return v.Text
	}
}
