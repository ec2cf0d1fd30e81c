package ametal

// State is the opaque prior interrupt state returned by Locker.Lock. It must
// be passed back unmodified to the matching Locker.Unlock.
type State uintptr

// Locker masks and restores interrupts around a critical section.
//
// On bare metal this disables the CPU's global interrupt mask and restores
// the previous mask on unlock. The core never calls Lock while already holding
// the lock: user callbacks always run with the lock released.
type Locker interface {
	Lock() State
	Unlock(State)
}

// DefaultLocker returns the platform interrupt lock. All callers share the
// same lock, mirroring the single global interrupt mask of the CPU.
func DefaultLocker() Locker {
	return defaultLocker
}

// LockerOrDefault returns l, or DefaultLocker if l is nil.
func LockerOrDefault(l Locker) Locker {
	if l == nil {
		return defaultLocker
	}
	return l
}
