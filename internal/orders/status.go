package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var validStatus = map[Status]bool{
	StatusPending:   true,
	StatusCompleted: true,
	StatusCancelled: true,
}

func (s Status) Valid() bool { return validStatus[s] }

// ParseStatus accepts only the exact lowercase names.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, st.Valid()
}
