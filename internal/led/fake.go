package led

// FakeSetter records LED switches for test assertions.
type FakeSetter struct {
	// On is the current LED state.
	On bool

	// Switches counts actual state changes (redundant Sets excluded).
	Switches int

	// SetError, if set, is returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSetter creates a FakeSetter, initially off.
func NewFakeSetter() *FakeSetter {
	return &FakeSetter{}
}

// Set records the LED state.
func (f *FakeSetter) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	if on != f.On {
		f.Switches++
	}
	f.On = on
	return nil
}

// Close marks the setter as closed and the LED off.
func (f *FakeSetter) Close() error {
	f.On = false
	f.Closed = true
	return nil
}
