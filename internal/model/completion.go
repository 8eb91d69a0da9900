package model

// Completion is the enrollment status of a member.
type Completion int

const (
	Pending Completion = iota
	Complete
)

func (c Completion) String() string {
	if c == Complete {
		return "complete"
	}
	return "pending"
}

// Label is the Spanish status label shown next to a member.
func (c Completion) Label() string {
	if c == Complete {
		return "Completo"
	}
	return "Pendiente"
}

// Classifier parses the raw completion flag. A raw value is Complete only when
// it exactly equals one of the accepted literals; there is no case folding or
// boolean coercion because historical records use inconsistent spellings.
type Classifier struct {
	accepted map[string]struct{}
	first    string
}

// NewClassifier builds a Classifier from the accepted literals. The first
// literal is the canonical value written when marking a member complete.
func NewClassifier(accepted []string) Classifier {
	c := Classifier{accepted: make(map[string]struct{}, len(accepted))}
	for _, v := range accepted {
		if c.first == "" {
			c.first = v
		}
		c.accepted[v] = struct{}{}
	}
	return c
}

// Parse maps a raw flag value to a Completion.
func (c Classifier) Parse(raw string) Completion {
	if _, ok := c.accepted[raw]; ok {
		return Complete
	}
	return Pending
}

// IsComplete reports whether raw is one of the accepted literals.
func (c Classifier) IsComplete(raw string) bool {
	return c.Parse(raw) == Complete
}

// CompleteValue is the literal written when a member's process is completed.
func (c Classifier) CompleteValue() string {
	return c.first
}
