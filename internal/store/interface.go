package store

// Snapshot is a consistent copy of the store's state. Pending fields hold
// operator input exactly as typed and are nil when nothing is pending.
type Snapshot struct {
	Version           uint64  `json:"version"`
	Address           string  `json:"address"`
	ConfirmedBaseline float64 `json:"confirmed_baseline"`
	PendingBaseline   *string `json:"pending_baseline,omitempty"`
	PendingAddress    *string `json:"pending_address,omitempty"`
}

// Observer is notified after every effective change. Notifications are
// delivered outside the store lock, so observers may call back into the
// store. Concurrent changes can arrive out of order; Version orders them.
type Observer interface {
	StoreChanged(s Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(s Snapshot)

func (f ObserverFunc) StoreChanged(s Snapshot) {
	f(s)
}
