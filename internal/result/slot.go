package result

import "sync"

// Ticket identifies one request issued into a slot. A response may only be
// written back while its ticket is the slot's current generation.
type Ticket struct {
	gen     uint64
	subject string
}

// Generation returns the slot generation the ticket was issued for.
func (t Ticket) Generation() uint64 { return t.gen }

// Subject returns the entity key the request was issued for.
func (t Ticket) Subject() string { return t.subject }

// Transition describes a write that was applied to a slot.
type Transition struct {
	Slot       string
	Subject    string
	Generation uint64
	Status     Status
	// Value is the Result[T] now held by the slot.
	Value any
}

// Listener is invoked for every applied transition, in order, while the slot
// is locked. It must not call back into the same slot.
type Listener func(Transition)

// Slot holds the Result of one logical action.
type Slot[T any] struct {
	name     string
	listener Listener

	mu      sync.Mutex
	gen     uint64
	subject string
	cur     Result[T]
}

// NewSlot returns an Idle slot. listener may be nil.
func NewSlot[T any](name string, listener Listener) *Slot[T] {
	return &Slot[T]{name: name, listener: listener, cur: Idle[T]()}
}

// Name returns the slot name.
func (s *Slot[T]) Name() string { return s.name }

// Begin moves the slot to Loading for subject and supersedes any request
// still in flight.
func (s *Slot[T]) Begin(subject string) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.subject = subject
	s.set(Loading[T]())
	return Ticket{gen: s.gen, subject: subject}
}

// Resolve writes r if t is still current and reports whether it was applied.
// Loading and Idle are not valid outcomes and are rejected.
func (s *Slot[T]) Resolve(t Ticket, r Result[T]) bool {
	if !r.IsSuccess() && !r.IsError() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.gen != s.gen {
		return false
	}
	s.set(r)
	return true
}

// Clear moves the slot back to Idle. Requests in flight are discarded when
// they resolve.
func (s *Slot[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.subject = ""
	s.set(Idle[T]())
}

// Get returns the current value.
func (s *Slot[T]) Get() Result[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Subject returns the entity key the current value belongs to.
func (s *Slot[T]) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

// Generation returns the number of Begin and Clear calls so far.
func (s *Slot[T]) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Slot[T]) set(r Result[T]) {
	s.cur = r
	if s.listener != nil {
		s.listener(Transition{
			Slot:       s.name,
			Subject:    s.subject,
			Generation: s.gen,
			Status:     r.Status(),
			Value:      r,
		})
	}
}
