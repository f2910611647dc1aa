package serial

// FakeSource is a test double that returns scripted lines.
type FakeSource struct {
	// Lines contains the scripted lines to return, one per ReadLine call.
	// Once exhausted, ReadLine reports "no new sample" ("", nil).
	Lines []string

	// ReadError, if set, is returned by every ReadLine call.
	ReadError error

	// Closed tracks if Close was called.
	Closed bool

	index int
}

// NewFakeSource creates a FakeSource with the given lines.
func NewFakeSource(lines []string) *FakeSource {
	return &FakeSource{Lines: lines}
}

// ReadLine returns the next scripted line.
func (f *FakeSource) ReadLine() (string, error) {
	if f.ReadError != nil {
		return "", f.ReadError
	}
	if f.index >= len(f.Lines) {
		return "", nil
	}
	line := f.Lines[f.index]
	f.index++
	return line, nil
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the script.
func (f *FakeSource) Reset() {
	f.index = 0
	f.Closed = false
	f.ReadError = nil
}
