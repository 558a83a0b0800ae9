package errors

// ErrorCode represents a unique identifier for error types.
// Codes are organized by category:
//   - E4xxx: Injection errors
//   - E5xxx: Plan and pipeline errors
type ErrorCode string

const (
	// Injection errors (E4xxx)
	E4001 ErrorCode = "E4001" // Strict argument mismatch
	E4002 ErrorCode = "E4002" // Local not found
	E4003 ErrorCode = "E4003" // Unsupported binding state
	E4004 ErrorCode = "E4004" // Invalid target modifiers
	E4005 ErrorCode = "E4005" // Invalid handler
	E4006 ErrorCode = "E4006" // Injection point count
	E4007 ErrorCode = "E4007" // Stack imbalance

	// Plan and pipeline errors (E5xxx)
	E5001 ErrorCode = "E5001" // Invalid plan
	E5002 ErrorCode = "E5002" // Invalid assembly
	E5003 ErrorCode = "E5003" // Target method not found
)

var codeDescriptions = map[ErrorCode]string{
	E4001: "strict argument mismatch",
	E4002: "local not found",
	E4003: "unsupported binding state",
	E4004: "invalid target modifiers",
	E4005: "invalid handler",
	E4006: "injection point count",
	E4007: "stack imbalance",

	E5001: "invalid plan",
	E5002: "invalid assembly",
	E5003: "target method not found",
}

// Description returns the short description for an error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// Category returns the error category based on the code prefix.
func (c ErrorCode) Category() string {
	if len(c) < 2 {
		return "unknown"
	}
	switch c[1] {
	case '4':
		return "injection"
	case '5':
		return "plan"
	default:
		return "unknown"
	}
}
