package gd32

// filterBank tracks the slice of the shared hardware banks one instance
// may program. CAN0 and CAN1 divide banks 0..MaxBank at the split point;
// CAN2 has its own fixed range. A bank must be written once before it can
// be re-enabled by index.
type filterBank struct {
	hw    Backend
	caps  Caps
	inst  Instance
	reg   *Registry
	first int16

	// configured marks banks that have been written at least once,
	// including the zeroed write done by clearAll.
	configured uint32
}

// maxBank returns the highest bank this instance currently owns. For CAN0
// the range shrinks when a CAN1 owner sets the split and grows back to the
// full range when none has.
func (fb *filterBank) maxBank() int {
	switch fb.inst {
	case CAN2:
		return int(fb.caps.CAN2MaxBank)
	case CAN1:
		return int(fb.caps.MaxBank)
	default:
		if s := fb.reg.CAN1Split(); s >= 0 {
			return s - 1
		}
		return int(fb.caps.MaxBank)
	}
}

func (fb *filterBank) owns(bank int) bool {
	return fb.first >= 0 && bank >= int(fb.first) && bank <= fb.maxBank()
}

// apply writes one bank. Out-of-range banks fail before any hardware or
// bookkeeping mutation.
func (fb *filterBank) apply(bank int, mode FilterMode, scale FilterScale, idWord, maskWord uint32, active bool) error {
	if !fb.owns(bank) {
		return ErrFilterRange
	}
	fb.configured |= 1 << uint(bank)
	fb.hw.ProgramFilter(uint8(bank), mode, scale, idWord, maskWord, active)
	return nil
}

// setActive flips a bank's activation state. Enabling demands a prior
// configuration write; disabling does not and is idempotent.
func (fb *filterBank) setActive(bank int, active bool) error {
	if !fb.owns(bank) {
		return ErrFilterRange
	}
	if active && fb.configured&(1<<uint(bank)) == 0 {
		return ErrFilterUnset
	}
	fb.hw.SetFilterActive(uint8(bank), active)
	return nil
}

// clearAll writes a zeroed, inactive 32-bit mask configuration across the
// owned range, leaving every bank silent but re-enableable.
func (fb *filterBank) clearAll() error {
	max := fb.maxBank()
	if fb.first < 0 || max < 0 {
		return nil
	}
	for bank := int(fb.first); bank <= max; bank++ {
		if err := fb.apply(bank, FilterModeMask, FilterScale32, 0, 0, false); err != nil {
			return err
		}
	}
	return nil
}
