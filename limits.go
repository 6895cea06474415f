package imaf

// Limits caps decode-side allocations so that a hostile container cannot
// request arbitrarily large tables from a small payload. The zero value of
// each field means its default.
type Limits struct {
	MaxTableEntries int // entries in any one sample table
	MaxSamples      int // expanded samples per track
	MaxStringLen    int // name/description bytes in extension boxes
	MaxElements     int // element IDs per group, preset, or rule set
}

func defaultLimits() Limits {
	return Limits{
		MaxTableEntries: 1 << 22,
		MaxSamples:      1 << 24,
		MaxStringLen:    1 << 16,
		MaxElements:     1 << 16,
	}
}

func (l Limits) withDefaults() Limits {
	d := defaultLimits()
	if l.MaxTableEntries == 0 {
		l.MaxTableEntries = d.MaxTableEntries
	}
	if l.MaxSamples == 0 {
		l.MaxSamples = d.MaxSamples
	}
	if l.MaxStringLen == 0 {
		l.MaxStringLen = d.MaxStringLen
	}
	if l.MaxElements == 0 {
		l.MaxElements = d.MaxElements
	}
	return l
}
