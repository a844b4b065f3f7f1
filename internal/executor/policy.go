package executor

import (
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/config"
	"github.com/wow-signal-dev/metadata-remote-sub000/pkg/errclass"
)

// FieldNamePolicy chooses the field name written when a field creation is
// redone. It is not consulted for any other kind.
type FieldNamePolicy interface {
	RedoCreateName(target, field string) string
}

// ReverseMapPolicy asks Resolver to turn a stored container identifier
// (an ID3 frame such as TIT2) back into the semantic name the tag writer
// expects. Unresolved names pass through.
type ReverseMapPolicy struct {
	Resolver SemanticNameResolver
}

func (p ReverseMapPolicy) RedoCreateName(target, field string) string {
	if p.Resolver == nil {
		return field
	}
	if name, ok := p.Resolver.ResolveSemanticName(target, field); ok {
		return name
	}
	return field
}

// StoredNamePolicy writes the field name exactly as recorded.
type StoredNamePolicy struct{}

func (StoredNamePolicy) RedoCreateName(_, field string) string { return field }

// PolicyFor maps a config policy name to a FieldNamePolicy.
func PolicyFor(name string, resolver SemanticNameResolver) (FieldNamePolicy, error) {
	switch name {
	case config.PolicyReverseMap, "":
		return ReverseMapPolicy{Resolver: resolver}, nil
	case config.PolicyStored:
		return StoredNamePolicy{}, nil
	default:
		return nil, errclass.ErrConfigInvalid.WithMessagef("unknown field name policy %q", name)
	}
}
