package domain

import "fmt"

// TosState is the per-user terms-of-service acknowledgment.
type TosState int

const (
	// TosUnsigned means the user still has to accept the current ToS.
	TosUnsigned TosState = 0
	// TosSigned means the user accepted the current ToS.
	TosSigned TosState = 1
)

func (s TosState) String() string {
	switch s {
	case TosSigned:
		return "signed"
	case TosUnsigned:
		return "unsigned"
	default:
		return fmt.Sprintf("TosState(%d)", int(s))
	}
}

// ParseTosState accepts "signed"/"unsigned" as well as the stored "1"/"0".
func ParseTosState(s string) (TosState, error) {
	switch s {
	case "signed", "1", "true":
		return TosSigned, nil
	case "unsigned", "0", "false":
		return TosUnsigned, nil
	default:
		return TosUnsigned, fmt.Errorf("invalid tos state %q", s)
	}
}

// Assignment is the permanent binding of a user to a node for a service.
// Node and UID never change once created.
type Assignment struct {
	Email   string
	Service string
	UID     int64
	Node    string
	Tos     TosState
}

// Lookup is the result of GetAssignment.
//
//   - unassigned:          Assigned=false, TosURL set (if the service has one)
//   - assigned, unsigned:  Assigned=true, TosURL set
//   - assigned, signed:    Assigned=true, TosURL empty
type Lookup struct {
	Assigned bool
	UID      int64
	Node     string
	TosURL   string
}
