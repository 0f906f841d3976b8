package records

import "context"

// Listener is called after an observation has been durably appended.
type Listener func(Observation)

type notifyingStore struct {
	Store
	listeners []Listener
}

// WithListener wraps store so every successful Append is reported to the
// listeners, in order, on the caller's goroutine.
func WithListener(store Store, listeners ...Listener) Store {
	return &notifyingStore{Store: store, listeners: listeners}
}

func (s *notifyingStore) Append(ctx context.Context, obs Observation) error {
	if err := s.Store.Append(ctx, obs); err != nil {
		return err
	}
	for _, l := range s.listeners {
		l(obs)
	}
	return nil
}
