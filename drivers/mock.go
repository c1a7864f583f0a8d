// Package drivers provides implementations of the servo Driver
// capability: a Pololu Maestro serial backend for host builds, a PWM
// backend for TinyGo targets, and a mock for tests.
package drivers

// MockDriver implements the Driver capability for testing. The zero
// value is a detached driver that records every call.
type MockDriver struct {
	IsAttached bool
	Writes     []int // positions written, in order

	AttachErr error
	DetachErr error
	WriteErr  error

	AttachCalls int
	DetachCalls int

	// WriteFunc allows custom write behavior for complex tests
	WriteFunc func(angle int) error
}

func (m *MockDriver) Attach() error {
	m.AttachCalls++
	if m.AttachErr != nil {
		return m.AttachErr
	}
	m.IsAttached = true
	return nil
}

func (m *MockDriver) Detach() error {
	m.DetachCalls++
	if m.DetachErr != nil {
		return m.DetachErr
	}
	m.IsAttached = false
	return nil
}

func (m *MockDriver) Attached() bool {
	return m.IsAttached
}

func (m *MockDriver) WritePosition(angle int) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(angle)
	}
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Writes = append(m.Writes, angle)
	return nil
}
