package conversation

// Selector holds the single open conversation of one page. It is not safe
// for concurrent use; the owning session serializes access.
type Selector struct {
	active     Target
	deepLinked bool
}

// Select opens t and returns what was open before. Opening a person closes
// any group and vice versa since there is only one slot.
func (s *Selector) Select(t Target) Target {
	prev := s.active
	s.active = t
	return prev
}

func (s *Selector) Clear() Target {
	return s.Select(None())
}

// ClearIf closes the conversation only if t is still the open one.
func (s *Selector) ClearIf(t Target) bool {
	if t.IsNone() || s.active != t {
		return false
	}
	s.active = None()
	return true
}

func (s *Selector) Active() Target { return s.active }

func (s *Selector) ActiveGroup() (uint, bool) {
	if s.active.IsGroup() {
		return s.active.id, true
	}
	return 0, false
}

func (s *Selector) ActivePerson() (uint, bool) {
	if s.active.IsDirect() {
		return s.active.id, true
	}
	return 0, false
}

// ApplyDeepLink opens the conversation named by a ?chat= value. Only the
// first call per selector does anything, whatever its input; the boolean
// reports whether this call changed the selection.
func (s *Selector) ApplyDeepLink(raw string) (Target, bool) {
	if s.deepLinked {
		return s.active, false
	}
	s.deepLinked = true
	if raw == "" {
		return s.active, false
	}
	t, err := ParseTarget(raw)
	if err != nil {
		return s.active, false
	}
	s.active = t
	return t, true
}

// DeepLinkApplied reports whether ApplyDeepLink has run.
func (s *Selector) DeepLinkApplied() bool { return s.deepLinked }
