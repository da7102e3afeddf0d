package orderstatus

import (
	"strings"
)

type Status struct {
	Name string
}

func (s Status) Code() string {
	return s.Name
}

func (s Status) Label() string {
	if s.Name == "" {
		return ""
	}
	lower := strings.ToLower(s.Name)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// Terminal reports whether an order in this status has left the kitchen flow.
func (s Status) Terminal() bool {
	return s == Statuses.Delivered || s == Statuses.Cancelled
}

type Enum struct {
	Cooking   Status
	Done      Status
	Ready     Status
	Delivered Status
	Cancelled Status
}

var Statuses = Enum{
	Cooking:   Status{Name: "COOKING"},
	Done:      Status{Name: "DONE"},
	Ready:     Status{Name: "READY"},
	Delivered: Status{Name: "DELIVERED"},
	Cancelled: Status{Name: "CANCELLED"},
}

var All = []Status{
	Statuses.Cooking,
	Statuses.Done,
	Statuses.Ready,
	Statuses.Delivered,
	Statuses.Cancelled,
}

// Parse resolves a status code, case-insensitively.
func Parse(code string) (Status, bool) {
	upper := strings.ToUpper(strings.TrimSpace(code))
	for _, s := range All {
		if s.Name == upper {
			return s, true
		}
	}
	return Status{}, false
}
