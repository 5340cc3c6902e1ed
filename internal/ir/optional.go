package ir

import (
	"encoding/json"
	"fmt"
)

// OptionalTag classifies whether a projected value may be absent (NULL).
//
// The four-way split exists because outer joins and nested groups introduce
// two different reasons for absence:
//   - Optional: the value is independently nullable
//   - OriginallyRequired: NOT NULL at its source, but reached through an outer join
//   - RequiredInOptionalObject: present whenever its enclosing group is present
type OptionalTag uint8

const (
	Required OptionalTag = iota
	Optional
	OriginallyRequired
	RequiredInOptionalObject
)

var optionalTagNames = [...]string{
	Required:                 "required",
	Optional:                 "optional",
	OriginallyRequired:       "originallyRequired",
	RequiredInOptionalObject: "requiredInOptionalObject",
}

// String returns the canonical name of the tag.
func (t OptionalTag) String() string {
	if int(t) < len(optionalTagNames) {
		return optionalTagNames[t]
	}
	return fmt.Sprintf("OptionalTag(%d)", uint8(t))
}

// Valid reports whether t is one of the four declared tags.
func (t OptionalTag) Valid() bool {
	return int(t) < len(optionalTagNames)
}

// IsRequired reports whether the value is guaranteed present at the row level.
func (t OptionalTag) IsRequired() bool {
	return t == Required
}

// ParseOptionalTag converts a canonical tag name back to an OptionalTag.
func ParseOptionalTag(s string) (OptionalTag, error) {
	for i, name := range optionalTagNames {
		if name == s {
			return OptionalTag(i), nil
		}
	}
	return Required, fmt.Errorf("unknown optional tag %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t OptionalTag) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid optional tag %d", uint8(t))
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *OptionalTag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOptionalTag(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MergeOptional combines the tags of two operands of a composite expression.
//
// Precedence: Optional wins, then OriginallyRequired, then
// RequiredInOptionalObject; two Required operands stay Required.
func MergeOptional(a, b OptionalTag) OptionalTag {
	switch {
	case a == Optional || b == Optional:
		return Optional
	case a == OriginallyRequired || b == OriginallyRequired:
		return OriginallyRequired
	case a == RequiredInOptionalObject || b == RequiredInOptionalObject:
		return RequiredInOptionalObject
	default:
		return Required
	}
}

// MergeAllOptional folds MergeOptional over tags. No tags yields Required.
func MergeAllOptional(tags ...OptionalTag) OptionalTag {
	result := Required
	for _, t := range tags {
		result = MergeOptional(result, t)
	}
	return result
}

// OuterJoined returns the tag a value takes when read through an outer join.
func (t OptionalTag) OuterJoined() OptionalTag {
	if t == Required {
		return OriginallyRequired
	}
	return t
}
