package model

// Payload holds the before/after data of an action. The set of
// implementations is closed: one per Kind, all declared in this file.
type Payload interface {
	Kind() Kind
	before(target string) Value
	after(target string) Value
	keys() []string
	rekey(rewrite func(string) string) Payload
	blobRefs() []HashValue
}

// ValueChange replaces the text of one field in one file.
type ValueChange struct {
	Old string
	New string
}

func (ValueChange) Kind() Kind                          { return KindValueChange }
func (p ValueChange) before(string) Value               { return Text(p.Old) }
func (p ValueChange) after(string) Value                { return Text(p.New) }
func (ValueChange) keys() []string                      { return nil }
func (p ValueChange) rekey(func(string) string) Payload { return p }
func (ValueChange) blobRefs() []HashValue               { return nil }

// ClearField empties one field in one file. New is the raw blank value the
// handler wrote, usually "".
type ClearField struct {
	Old string
	New string
}

func (ClearField) Kind() Kind                          { return KindClearField }
func (p ClearField) before(string) Value               { return Text(p.Old) }
func (p ClearField) after(string) Value                { return Text(p.New) }
func (ClearField) keys() []string                      { return nil }
func (p ClearField) rekey(func(string) string) Payload { return p }
func (ClearField) blobRefs() []HashValue               { return nil }

// ArtworkChange replaces the embedded artwork of one file. An empty hash
// means the file had (or has) no artwork.
type ArtworkChange struct {
	Old HashValue
	New HashValue
}

func (ArtworkChange) Kind() Kind                          { return KindArtworkChange }
func (p ArtworkChange) before(string) Value               { return Blob(p.Old) }
func (p ArtworkChange) after(string) Value                { return Blob(p.New) }
func (ArtworkChange) keys() []string                      { return nil }
func (p ArtworkChange) rekey(func(string) string) Payload { return p }
func (p ArtworkChange) blobRefs() []HashValue             { return hashes(p.Old, p.New) }

// ArtworkDelete removes the embedded artwork of one file.
type ArtworkDelete struct {
	Old HashValue
}

func (ArtworkDelete) Kind() Kind                          { return KindArtworkDelete }
func (p ArtworkDelete) before(string) Value               { return Blob(p.Old) }
func (ArtworkDelete) after(string) Value                  { return Absent() }
func (ArtworkDelete) keys() []string                      { return nil }
func (p ArtworkDelete) rekey(func(string) string) Payload { return p }
func (p ArtworkDelete) blobRefs() []HashValue             { return hashes(p.Old) }

// FieldDelete removes one field from one file.
type FieldDelete struct {
	Old string
}

func (FieldDelete) Kind() Kind                          { return KindFieldDelete }
func (p FieldDelete) before(string) Value               { return Text(p.Old) }
func (FieldDelete) after(string) Value                  { return Absent() }
func (FieldDelete) keys() []string                      { return nil }
func (p FieldDelete) rekey(func(string) string) Payload { return p }
func (FieldDelete) blobRefs() []HashValue               { return nil }

// FieldCreate adds a new field to one file.
type FieldCreate struct {
	New string
}

func (FieldCreate) Kind() Kind                          { return KindFieldCreate }
func (FieldCreate) before(string) Value                 { return Absent() }
func (p FieldCreate) after(string) Value                { return Text(p.New) }
func (FieldCreate) keys() []string                      { return nil }
func (p FieldCreate) rekey(func(string) string) Payload { return p }
func (FieldCreate) blobRefs() []HashValue               { return nil }

// TextPair is the before/after text of one file in a batch.
type TextPair struct {
	Old string
	New string
}

// BlobPair is the before/after artwork of one file in a batch.
type BlobPair struct {
	Old HashValue
	New HashValue
}

// BatchValueChange sets one field across several files.
type BatchValueChange struct {
	Changes map[string]TextPair
}

func (BatchValueChange) Kind() Kind { return KindBatchValueChange }

func (p BatchValueChange) before(target string) Value {
	c, ok := p.Changes[target]
	if !ok {
		return Absent()
	}
	return Text(c.Old)
}

func (p BatchValueChange) after(target string) Value {
	c, ok := p.Changes[target]
	if !ok {
		return Absent()
	}
	return Text(c.New)
}

func (p BatchValueChange) keys() []string { return mapKeys(p.Changes) }

func (p BatchValueChange) rekey(rewrite func(string) string) Payload {
	return BatchValueChange{Changes: rekeyMap(p.Changes, rewrite)}
}

func (BatchValueChange) blobRefs() []HashValue { return nil }

// BatchArtworkChange applies artwork across several files.
type BatchArtworkChange struct {
	Changes map[string]BlobPair
}

func (BatchArtworkChange) Kind() Kind { return KindBatchArtworkChange }

func (p BatchArtworkChange) before(target string) Value {
	return Blob(p.Changes[target].Old)
}

func (p BatchArtworkChange) after(target string) Value {
	return Blob(p.Changes[target].New)
}

func (p BatchArtworkChange) keys() []string { return mapKeys(p.Changes) }

func (p BatchArtworkChange) rekey(rewrite func(string) string) Payload {
	return BatchArtworkChange{Changes: rekeyMap(p.Changes, rewrite)}
}

func (p BatchArtworkChange) blobRefs() []HashValue {
	var refs []HashValue
	for _, c := range p.Changes {
		refs = append(refs, c.Old, c.New)
	}
	return hashes(refs...)
}

// BatchFieldDelete removes one field from several files.
type BatchFieldDelete struct {
	Old map[string]string
}

func (BatchFieldDelete) Kind() Kind { return KindBatchFieldDelete }

func (p BatchFieldDelete) before(target string) Value {
	old, ok := p.Old[target]
	if !ok {
		return Absent()
	}
	return Text(old)
}

func (BatchFieldDelete) after(string) Value { return Absent() }

func (p BatchFieldDelete) keys() []string { return mapKeys(p.Old) }

func (p BatchFieldDelete) rekey(rewrite func(string) string) Payload {
	return BatchFieldDelete{Old: rekeyMap(p.Old, rewrite)}
}

func (BatchFieldDelete) blobRefs() []HashValue { return nil }

// BatchFieldCreate adds one field to several files.
type BatchFieldCreate struct {
	New map[string]string
}

func (BatchFieldCreate) Kind() Kind { return KindBatchFieldCreate }

func (BatchFieldCreate) before(string) Value { return Absent() }

func (p BatchFieldCreate) after(target string) Value {
	v, ok := p.New[target]
	if !ok {
		return Absent()
	}
	return Text(v)
}

func (p BatchFieldCreate) keys() []string { return mapKeys(p.New) }

func (p BatchFieldCreate) rekey(rewrite func(string) string) Payload {
	return BatchFieldCreate{New: rekeyMap(p.New, rewrite)}
}

func (BatchFieldCreate) blobRefs() []HashValue { return nil }

func mapKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// rekeyMap rewrites the keys of m. When a moved key lands on a key that was
// not moved, the moved entry wins: that file's content now lives there.
func rekeyMap[V any](m map[string]V, rewrite func(string) string) map[string]V {
	out := make(map[string]V, len(m))
	moved := make(map[string]V)
	for k, v := range m {
		if nk := rewrite(k); nk != k {
			moved[nk] = v
			continue
		}
		out[k] = v
	}
	for k, v := range moved {
		out[k] = v
	}
	return out
}

// hashes returns the distinct non-empty hashes in first-seen order.
func hashes(in ...HashValue) []HashValue {
	var out []HashValue
	seen := make(map[HashValue]struct{}, len(in))
	for _, h := range in {
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
