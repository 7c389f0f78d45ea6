package orders

// Status is the order lifecycle state. The ordinal values are part of the
// wire format: outbound events and cache entries carry the integer.
type Status int

const (
	StatusPending Status = iota
	StatusProcessing
	StatusReserved
	StatusPaid
	StatusCompleted
	StatusCancelled
	StatusFailed
)

var statusNames = map[Status]string{
	StatusPending:    "Pending",
	StatusProcessing: "Processing",
	StatusReserved:   "Reserved",
	StatusPaid:       "Paid",
	StatusCompleted:  "Completed",
	StatusCancelled:  "Cancelled",
	StatusFailed:     "Failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// ParseStatus maps a canonical name back to a Status. Unknown strings
// parse to Pending so a corrupt row never derails the read path.
func ParseStatus(s string) Status {
	for st, name := range statusNames {
		if name == s {
			return st
		}
	}
	return StatusPending
}

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusReserved: true, StatusCancelled: true, StatusFailed: true},
	StatusProcessing: {StatusReserved: true, StatusCancelled: true, StatusFailed: true},
	StatusReserved:   {StatusPaid: true, StatusCancelled: true, StatusFailed: true},
	StatusPaid:       {StatusCompleted: true, StatusCancelled: true},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusFailed:     {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}
