package workflow

// Version is the optimistic-lock counter carried by every entity. A persisted
// write is accepted only when the stored version equals the version the caller
// last read; every successful write moves the counter forward by one.
type Version int64

// InitialVersion is the version assigned to a freshly created entity
func InitialVersion() Version {
	return 1
}

// Next returns the version after one successful write
func (v Version) Next() Version {
	return v + 1
}

// Int64 returns the counter as a plain int64 for persistence
func (v Version) Int64() int64 {
	return int64(v)
}
