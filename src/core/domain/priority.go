package domain

import "fmt"

// Priority is one of five fixed tiers. Higher tiers play sooner.
type Priority int

const (
	PriorityFree Priority = 0
	Priority100  Priority = 100
	Priority200  Priority = 200
	Priority300  Priority = 300
	Priority400  Priority = 400
)

// Valid reports whether p is a known tier.
func (p Priority) Valid() bool {
	switch p {
	case PriorityFree, Priority100, Priority200, Priority300, Priority400:
		return true
	}
	return false
}

// IsPaid reports whether the tier requires payment.
func (p Priority) IsPaid() bool { return p > PriorityFree && p.Valid() }

// ParsePriority validates a raw tier value.
func ParsePriority(v int) (Priority, error) {
	p := Priority(v)
	if !p.Valid() {
		return 0, NewValidationError("priority", fmt.Sprintf("unknown priority tier %d", v))
	}
	return p, nil
}

// ParsePaidPriority validates a tier that must be paid for.
func ParsePaidPriority(v int) (Priority, error) {
	p, err := ParsePriority(v)
	if err != nil {
		return 0, err
	}
	if !p.IsPaid() {
		return 0, NewValidationError("priority", "paid priority must be 100, 200, 300 or 400")
	}
	return p, nil
}
