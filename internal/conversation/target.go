// Package conversation models who a message is addressed to and which
// conversation a contacts page has open.
package conversation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindNone Kind = iota
	KindDirect
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "user"
	case KindGroup:
		return "group"
	default:
		return "none"
	}
}

// Target is None, Direct(user) or Group(group). The zero value is None.
type Target struct {
	kind Kind
	id   uint
}

var ErrInvalidTarget = errors.New("invalid conversation target")

func None() Target { return Target{} }

// Direct addresses a person. Direct(0) is None.
func Direct(userID uint) Target {
	if userID == 0 {
		return Target{}
	}
	return Target{kind: KindDirect, id: userID}
}

// Group addresses a group. Group(0) is None.
func Group(groupID uint) Target {
	if groupID == 0 {
		return Target{}
	}
	return Target{kind: KindGroup, id: groupID}
}

func (t Target) Kind() Kind     { return t.kind }
func (t Target) ID() uint       { return t.id }
func (t Target) IsNone() bool   { return t.kind == KindNone }
func (t Target) IsDirect() bool { return t.kind == KindDirect }
func (t Target) IsGroup() bool  { return t.kind == KindGroup }

// Key renders the target as "user:7", "group:3" or "" for None.
func (t Target) Key() string {
	if t.IsNone() {
		return ""
	}
	return t.kind.String() + ":" + strconv.FormatUint(uint64(t.id), 10)
}

func (t Target) String() string {
	if t.IsNone() {
		return "none"
	}
	return t.Key()
}

// ParseTarget reads "user:<id>", "group:<id>" or a bare "<id>", which means
// a person. Anything else is ErrInvalidTarget.
func ParseTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	kind, idPart, found := strings.Cut(raw, ":")
	if !found {
		kind, idPart = "user", raw
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil || id == 0 {
		return None(), fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
	}
	switch kind {
	case "user":
		return Direct(uint(id)), nil
	case "group":
		return Group(uint(id)), nil
	}
	return None(), fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
}

func (t Target) MarshalText() ([]byte, error) {
	return []byte(t.Key()), nil
}

func (t *Target) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = None()
		return nil
	}
	parsed, err := ParseTarget(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
