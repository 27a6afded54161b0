package eventstore

// Request status history query
type Request struct {
	// MaxID only statuses strictly older than this one, newest page when nil
	MaxID *uint64
	Limit int
	// Where raw filter fragment over the statuses table
	Where string
}
