package match

// Method identifies which strategy produced a candidate.
type Method string

const (
	MethodRefExact      Method = "ref_exact"
	MethodRefFuzzy      Method = "ref_fuzzy"
	MethodNameExact     Method = "name_exact"
	MethodNameFuzzy     Method = "name_fuzzy"
	MethodHistoryAssist Method = "history_assist"
	MethodFallback      Method = "fallback"
)

// Priority returns the ranking priority of the method. Lower is stronger.
func (m Method) Priority() int {
	switch m {
	case MethodRefExact:
		return 0
	case MethodRefFuzzy:
		return 1
	case MethodNameExact:
		return 2
	case MethodNameFuzzy:
		return 3
	case MethodHistoryAssist:
		return 4
	default:
		return 5
	}
}

// Exact reports whether the method is an exact strategy as opposed to a
// fuzzy or historical one.
func (m Method) Exact() bool {
	return m == MethodRefExact || m == MethodNameExact
}

// Account is the in-memory roster entry candidate generation runs against.
// It is loaded once per batch and shared read-only.
type Account struct {
	ID            int64
	ReferenceCode string
	GivenName     string
	FamilyName    string
	LongName      string
}

// Candidate is a provisional (account, method, confidence) hypothesis.
// Candidates are never persisted; the decision engine consumes them
// immediately.
type Candidate struct {
	AccountID  int64
	Method     Method
	Confidence float64
	Evidence   string

	// Code is set for reference-based candidates so the decision engine can
	// detect multi-way split payments.
	Code string
}

// Input carries the extracted signals for one payment record.
type Input struct {
	// Codes are the extracted reference codes, uppercased, capped at four.
	Codes []string
	// Text is the normalized concatenation of the payment's free-text fields.
	Text string
}
