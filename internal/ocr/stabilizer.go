package ocr

// stabilizer debounces per-field values across decode passes. A raw value
// different from the stable one must repeat on confirmPasses consecutive
// passes before it replaces the stable value; a single borderline pass never
// flickers the output.
type stabilizer struct {
	confirmPasses int
	fields        map[Tag]*fieldState
}

type fieldState struct {
	stable    Field
	hasStable bool
	candidate Field
	streak    int
}

func newStabilizer(confirmPasses int) *stabilizer {
	return &stabilizer{
		confirmPasses: confirmPasses,
		fields:        make(map[Tag]*fieldState),
	}
}

// observe feeds one raw pass result and returns the current stable field.
// The very first observation for a tag is adopted immediately so startup
// does not lag behind the first good decode.
func (s *stabilizer) observe(tag Tag, raw Field) Field {
	st, ok := s.fields[tag]
	if !ok {
		st = &fieldState{}
		s.fields[tag] = st
	}

	if !st.hasStable {
		st.stable = raw
		st.hasStable = true
		st.streak = 0
		return st.stable
	}

	if raw.Value == st.stable.Value {
		// Confirmation of the current value; refresh its confidence.
		st.stable.Confidence = raw.Confidence
		st.streak = 0
		return st.stable
	}

	if st.streak > 0 && raw.Value == st.candidate.Value {
		st.streak++
	} else {
		st.candidate = raw
		st.streak = 1
	}
	if st.streak >= s.confirmPasses {
		st.stable = st.candidate
		st.streak = 0
	}
	return st.stable
}

func (s *stabilizer) reset() {
	s.fields = make(map[Tag]*fieldState)
}
