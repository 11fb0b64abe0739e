package journal

// Storage keys shared with the web client's localStorage layout.
const (
	KeyEntries    = "pulse_entries"
	KeySettings   = "pulse_settings"
	KeyOnboarding = "pulse_onboarding_complete"
)

// Storage is the durable string key-value substrate the stores write
// through to. storage.Store (SQLite) and storage.DiskStore (diskv)
// implement it; NopStorage stands in when no durable storage is available.
type Storage interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// NopStorage reports every key as absent and discards writes. Stores
// built on it keep their state in memory for the process lifetime.
type NopStorage struct{}

func (NopStorage) GetItem(string) (string, bool, error) { return "", false, nil }
func (NopStorage) SetItem(string, string) error         { return nil }
func (NopStorage) RemoveItem(string) error              { return nil }

// durable reports whether s persists anything at all.
func durable(s Storage) bool {
	_, nop := s.(NopStorage)
	return !nop
}
