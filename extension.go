package imaf

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Interactive music extension boxes (grco, prco, ruco). These carry the
// grouping, preset and rule structure of an interactive album and live as
// direct children of moov. The layouts are not part of ISO-BMFF proper, so
// both directions are hand-rolled here and must agree byte for byte.

// Group activation modes.
const (
	ActivationManual         = 0
	ActivationAlways         = 1
	ActivationCountTriggered = 2
)

// Selection rule types.
const (
	SelectionRuleMinMax      = 0
	SelectionRuleExclusion   = 1
	SelectionRuleAlwaysOn    = 2
	SelectionRuleImplication = 3
)

// Mixing rule types.
const (
	MixingRuleEquivalence = 0
	MixingRuleUpper       = 1
	MixingRuleLower       = 2
	MixingRuleLimit       = 3
)

// Group collects audio elements that are selected and activated together.
type Group struct {
	ID              uint32
	ElementIDs      []uint32
	ActivationMode  uint8
	ActivationCount uint16 // meaningful only for ActivationCountTriggered
	ReferenceVolume float64
	Name            string
	Description     string
}

// Preset assigns a stored mix to a set of elements. ElementVolumeIndex holds
// one volume step per element, parallel to ElementIDs.
type Preset struct {
	ID                 uint8
	ElementIDs         []uint32
	Type               uint8
	GlobalVolumeIndex  uint8
	ElementVolumeIndex []uint8
	Name               string
}

// SelectionRule constrains which elements may be active at once. The fields
// that apply depend on Type: MinMax uses Min/Max, Exclusion and Implication
// use KeyElementID, AlwaysOn uses neither.
type SelectionRule struct {
	Type         uint8
	ElementID    uint32
	Min          uint16
	Max          uint16
	KeyElementID uint32
	Description  string
}

// MixingRule constrains element volumes. Limit uses MinVolume/MaxVolume,
// every other type relates ElementID to KeyElementID.
type MixingRule struct {
	Type         uint8
	ElementID    uint32
	MinVolume    float64
	MaxVolume    float64
	KeyElementID uint32
	Description  string
}

// Spec is the complete interactive structure of an album.
type Spec struct {
	Groups            []Group
	Presets           []Preset
	GlobalPresetSteps uint8
	SelectionRules    []SelectionRule
	MixingRules       []MixingRule
}

// Validate checks field widths and cross-field consistency before any bytes
// are written.
func (s *Spec) Validate() error {
	if len(s.Groups) > 0xFFFF {
		return fmt.Errorf("%w: %d groups do not fit in 16 bits", ErrValidation, len(s.Groups))
	}
	for i := range s.Groups {
		if len(s.Groups[i].ElementIDs) > 0xFFFF {
			return fmt.Errorf("%w: group %d has %d elements", ErrValidation, s.Groups[i].ID, len(s.Groups[i].ElementIDs))
		}
	}
	if len(s.Presets) > 0xFF {
		return fmt.Errorf("%w: %d presets do not fit in 8 bits", ErrValidation, len(s.Presets))
	}
	for i := range s.Presets {
		p := &s.Presets[i]
		if len(p.ElementIDs) > 0xFF {
			return fmt.Errorf("%w: preset %d has %d elements", ErrValidation, p.ID, len(p.ElementIDs))
		}
		if len(p.ElementVolumeIndex) != len(p.ElementIDs) {
			return fmt.Errorf("%w: preset %d has %d volume indices for %d elements",
				ErrValidation, p.ID, len(p.ElementVolumeIndex), len(p.ElementIDs))
		}
	}
	if len(s.SelectionRules) > 0xFFFF || len(s.MixingRules) > 0xFFFF {
		return fmt.Errorf("%w: rule count does not fit in 16 bits", ErrValidation)
	}
	return nil
}

// WriteSpec writes the grco, prco and ruco boxes for s in that order,
// skipping any box s has no entries for. Out-of-range enumerated
// fields are clamped with a warning rather than rejected.
func (w *Writer) WriteSpec(s *Spec, log zerolog.Logger) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if len(s.Groups) > 0 {
		w.StartBox(TypeGrco)
		w.PutU16(uint16(len(s.Groups)))
		for i := range s.Groups {
			w.writeGroup(&s.Groups[i], log)
		}
		w.EndBox()
	}
	if len(s.Presets) > 0 {
		w.StartBox(TypePrco)
		w.PutU8(uint8(len(s.Presets)))
		w.PutU8(s.GlobalPresetSteps)
		for i := range s.Presets {
			w.writePreset(&s.Presets[i], log)
		}
		w.EndBox()
	}
	if len(s.SelectionRules) > 0 || len(s.MixingRules) > 0 {
		w.StartBox(TypeRuco)
		w.PutU16(uint16(len(s.SelectionRules)))
		w.PutU16(uint16(len(s.MixingRules)))
		for i := range s.SelectionRules {
			w.writeSelectionRule(&s.SelectionRules[i], log)
		}
		for i := range s.MixingRules {
			w.writeMixingRule(&s.MixingRules[i], log)
		}
		w.EndBox()
	}
	return w.Err()
}

func (w *Writer) writeGroup(g *Group, log zerolog.Logger) {
	mode := clampEnum(g.ActivationMode, ActivationCountTriggered, "activationMode", log)
	w.StartFullBox(TypeGrup, 0, 0)
	w.PutU32(g.ID)
	w.PutU16(uint16(len(g.ElementIDs)))
	for _, id := range g.ElementIDs {
		w.PutU32(id)
	}
	w.PutU8(mode)
	if mode == ActivationCountTriggered {
		w.PutU16(g.ActivationCount)
	}
	w.putFixed88(g.ReferenceVolume)
	w.PutCString(g.Name)
	w.PutCString(g.Description)
	w.EndBox()
}

func (w *Writer) writePreset(p *Preset, log zerolog.Logger) {
	w.StartFullBox(TypePrst, 0, 0)
	w.PutU8(p.ID)
	w.PutU8(uint8(len(p.ElementIDs)))
	for _, id := range p.ElementIDs {
		w.PutU32(id)
	}
	w.PutU8(clampEnum(p.Type, 0, "presetType", log))
	w.PutU8(p.GlobalVolumeIndex)
	for _, v := range p.ElementVolumeIndex {
		w.PutU8(v)
	}
	w.PutCString(p.Name)
	w.EndBox()
}

func (w *Writer) writeSelectionRule(r *SelectionRule, log zerolog.Logger) {
	typ := clampEnum(r.Type, SelectionRuleImplication, "selectionRuleType", log)
	w.StartFullBox(TypeRusc, 0, 0)
	w.PutU8(typ)
	w.PutU32(r.ElementID)
	switch typ {
	case SelectionRuleMinMax:
		w.PutU16(r.Min)
		w.PutU16(r.Max)
	case SelectionRuleExclusion, SelectionRuleImplication:
		w.PutU32(r.KeyElementID)
	}
	w.PutCString(r.Description)
	w.EndBox()
}

func (w *Writer) writeMixingRule(r *MixingRule, log zerolog.Logger) {
	typ := clampEnum(r.Type, MixingRuleLimit, "mixingRuleType", log)
	w.StartFullBox(TypeRumx, 0, 0)
	w.PutU8(typ)
	w.PutU32(r.ElementID)
	if typ == MixingRuleLimit {
		w.putFixed88(r.MinVolume)
		w.putFixed88(r.MaxVolume)
	} else {
		w.PutU32(r.KeyElementID)
	}
	w.PutCString(r.Description)
	w.EndBox()
}

func (w *Writer) putFixed88(v float64) {
	q, err := Fixed88(v)
	if err != nil {
		w.setErr(err)
		return
	}
	w.PutI16(q)
}

func clampEnum(v, max uint8, field string, log zerolog.Logger) uint8 {
	if v > max {
		log.Warn().Str("field", field).Uint8("value", v).Uint8("clamped", max).
			Msg("unknown enumerated value clamped")
		return max
	}
	return v
}

// DecodeGroups parses a grco payload.
func DecodeGroups(data []byte, lim Limits, log zerolog.Logger) ([]Group, error) {
	lim = lim.withDefaults()
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: short grco", ErrCorruptData)
	}
	n := int(be.Uint16(data))
	if n > lim.MaxElements {
		return nil, fmt.Errorf("%w: %d groups", ErrLimitExceeded, n)
	}
	groups := make([]Group, 0, n)
	r := NewReader(data[2:])
	for r.Next() {
		if r.Type() != TypeGrup {
			continue
		}
		g, err := decodeGroup(r.Data(), lim, log)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if len(groups) != n {
		return nil, fmt.Errorf("%w: grco declares %d groups, found %d", ErrCorruptData, n, len(groups))
	}
	return groups, nil
}

func decodeGroup(data []byte, lim Limits, log zerolog.Logger) (Group, error) {
	var g Group
	if len(data) < 6 {
		return g, fmt.Errorf("%w: short grup", ErrCorruptData)
	}
	g.ID = be.Uint32(data)
	n := int(be.Uint16(data[4:]))
	if n > lim.MaxElements {
		return g, fmt.Errorf("%w: %d group elements", ErrLimitExceeded, n)
	}
	ptr := 6
	if ptr+4*n+1 > len(data) {
		return g, fmt.Errorf("%w: short grup", ErrCorruptData)
	}
	g.ElementIDs = make([]uint32, n)
	for i := range g.ElementIDs {
		g.ElementIDs[i] = be.Uint32(data[ptr:])
		ptr += 4
	}
	// The count field is present only when the stored mode is 2, so the
	// layout follows the raw byte even when the value gets clamped.
	rawMode := data[ptr]
	g.ActivationMode = clampEnum(rawMode, ActivationCountTriggered, "activationMode", log)
	ptr++
	if rawMode == ActivationCountTriggered {
		if ptr+2 > len(data) {
			return g, fmt.Errorf("%w: short grup", ErrCorruptData)
		}
		g.ActivationCount = be.Uint16(data[ptr:])
		ptr += 2
	}
	if ptr+2 > len(data) {
		return g, fmt.Errorf("%w: short grup", ErrCorruptData)
	}
	g.ReferenceVolume = Fixed88Float(int16(be.Uint16(data[ptr:])))
	ptr += 2
	var err error
	g.Name, ptr, err = readCString(data, ptr, lim.MaxStringLen)
	if err != nil {
		return g, err
	}
	g.Description, _, err = readCString(data, ptr, lim.MaxStringLen)
	return g, err
}

// DecodePresets parses a prco payload, returning the presets and the global
// preset step count.
func DecodePresets(data []byte, lim Limits, log zerolog.Logger) ([]Preset, uint8, error) {
	lim = lim.withDefaults()
	if len(data) < 2 {
		return nil, 0, fmt.Errorf("%w: short prco", ErrCorruptData)
	}
	n := int(data[0])
	steps := data[1]
	presets := make([]Preset, 0, n)
	r := NewReader(data[2:])
	for r.Next() {
		if r.Type() != TypePrst {
			continue
		}
		p, err := decodePreset(r.Data(), lim, log)
		if err != nil {
			return nil, 0, err
		}
		presets = append(presets, p)
	}
	if len(presets) != n {
		return nil, 0, fmt.Errorf("%w: prco declares %d presets, found %d", ErrCorruptData, n, len(presets))
	}
	return presets, steps, nil
}

func decodePreset(data []byte, lim Limits, log zerolog.Logger) (Preset, error) {
	var p Preset
	if len(data) < 2 {
		return p, fmt.Errorf("%w: short prst", ErrCorruptData)
	}
	p.ID = data[0]
	n := int(data[1])
	ptr := 2
	if ptr+4*n+2+n > len(data) {
		return p, fmt.Errorf("%w: short prst", ErrCorruptData)
	}
	p.ElementIDs = make([]uint32, n)
	for i := range p.ElementIDs {
		p.ElementIDs[i] = be.Uint32(data[ptr:])
		ptr += 4
	}
	p.Type = clampEnum(data[ptr], 0, "presetType", log)
	p.GlobalVolumeIndex = data[ptr+1]
	ptr += 2
	p.ElementVolumeIndex = make([]uint8, n)
	copy(p.ElementVolumeIndex, data[ptr:ptr+n])
	ptr += n
	var err error
	p.Name, _, err = readCString(data, ptr, lim.MaxStringLen)
	return p, err
}

// DecodeRules parses a ruco payload into its selection and mixing rules.
func DecodeRules(data []byte, lim Limits, log zerolog.Logger) ([]SelectionRule, []MixingRule, error) {
	lim = lim.withDefaults()
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("%w: short ruco", ErrCorruptData)
	}
	nSel := int(be.Uint16(data))
	nMix := int(be.Uint16(data[2:]))
	if nSel > lim.MaxElements || nMix > lim.MaxElements {
		return nil, nil, fmt.Errorf("%w: %d rules", ErrLimitExceeded, nSel+nMix)
	}
	sel := make([]SelectionRule, 0, nSel)
	mix := make([]MixingRule, 0, nMix)
	r := NewReader(data[4:])
	for r.Next() {
		switch r.Type() {
		case TypeRusc:
			s, err := decodeSelectionRule(r.Data(), lim, log)
			if err != nil {
				return nil, nil, err
			}
			sel = append(sel, s)
		case TypeRumx:
			m, err := decodeMixingRule(r.Data(), lim, log)
			if err != nil {
				return nil, nil, err
			}
			mix = append(mix, m)
		}
	}
	if len(sel) != nSel || len(mix) != nMix {
		return nil, nil, fmt.Errorf("%w: ruco declares %d+%d rules, found %d+%d",
			ErrCorruptData, nSel, nMix, len(sel), len(mix))
	}
	return sel, mix, nil
}

func decodeSelectionRule(data []byte, lim Limits, log zerolog.Logger) (SelectionRule, error) {
	var s SelectionRule
	if len(data) < 5 {
		return s, fmt.Errorf("%w: short rusc", ErrCorruptData)
	}
	s.Type = clampEnum(data[0], SelectionRuleImplication, "selectionRuleType", log)
	s.ElementID = be.Uint32(data[1:])
	ptr := 5
	switch s.Type {
	case SelectionRuleMinMax:
		if ptr+4 > len(data) {
			return s, fmt.Errorf("%w: short rusc", ErrCorruptData)
		}
		s.Min = be.Uint16(data[ptr:])
		s.Max = be.Uint16(data[ptr+2:])
		ptr += 4
	case SelectionRuleExclusion, SelectionRuleImplication:
		if ptr+4 > len(data) {
			return s, fmt.Errorf("%w: short rusc", ErrCorruptData)
		}
		s.KeyElementID = be.Uint32(data[ptr:])
		ptr += 4
	}
	var err error
	s.Description, _, err = readCString(data, ptr, lim.MaxStringLen)
	return s, err
}

func decodeMixingRule(data []byte, lim Limits, log zerolog.Logger) (MixingRule, error) {
	var m MixingRule
	if len(data) < 5 {
		return m, fmt.Errorf("%w: short rumx", ErrCorruptData)
	}
	m.Type = clampEnum(data[0], MixingRuleLimit, "mixingRuleType", log)
	m.ElementID = be.Uint32(data[1:])
	ptr := 5
	if m.Type == MixingRuleLimit {
		if ptr+4 > len(data) {
			return m, fmt.Errorf("%w: short rumx", ErrCorruptData)
		}
		m.MinVolume = Fixed88Float(int16(be.Uint16(data[ptr:])))
		m.MaxVolume = Fixed88Float(int16(be.Uint16(data[ptr+2:])))
		ptr += 4
	} else {
		if ptr+4 > len(data) {
			return m, fmt.Errorf("%w: short rumx", ErrCorruptData)
		}
		m.KeyElementID = be.Uint32(data[ptr:])
		ptr += 4
	}
	var err error
	m.Description, _, err = readCString(data, ptr, lim.MaxStringLen)
	return m, err
}

// ExtractSpec locates moov and parses whichever of grco, prco and ruco are
// present as its direct children. It returns (nil, nil) when the container
// carries no interactive structure at all.
func ExtractSpec(buf []byte, lim Limits, log zerolog.Logger) (*Spec, error) {
	r := NewReader(buf)
	for r.Next() {
		if r.Type() != TypeMoov {
			continue
		}
		moov := r.Data()
		var s Spec
		found := false
		if data, ok := Child(moov, TypeGrco); ok {
			groups, err := DecodeGroups(data, lim, log)
			if err != nil {
				return nil, err
			}
			s.Groups = groups
			found = true
		}
		if data, ok := Child(moov, TypePrco); ok {
			presets, steps, err := DecodePresets(data, lim, log)
			if err != nil {
				return nil, err
			}
			s.Presets = presets
			s.GlobalPresetSteps = steps
			found = true
		}
		if data, ok := Child(moov, TypeRuco); ok {
			sel, mix, err := DecodeRules(data, lim, log)
			if err != nil {
				return nil, err
			}
			s.SelectionRules = sel
			s.MixingRules = mix
			found = true
		}
		if !found {
			return nil, nil
		}
		return &s, nil
	}
	return nil, nil
}
