package domain

// SignalKind distinguishes the two resolution paths: live website traffic
// and bulk-imported contribution records.
type SignalKind string

const (
	SignalLiveVisitor  SignalKind = "live_visitor"
	SignalImportRecord SignalKind = "import_record"
)

// Signal is an inbound partially-identified observation. Signals are
// immutable once received; the engine consumes them and never writes back.
type Signal struct {
	Kind SignalKind

	// SignalID is stable per observation: the per-row transaction id for
	// import records, the fingerprint/IP composite for live visitors.
	// Reconciliation idempotency keys off this value.
	SignalID string

	RawName    string
	RawAddress string
	RawCity    string
	RawState   string
	RawZip     string

	Email string
	Phone string

	// Hashed identifiers from the traffic receiver. May be absent.
	EmailHash       string
	IPHash          string
	FingerprintHash string

	// IPRegion is the coarse geo bucket the traffic receiver derived
	// from the raw IP before hashing it. Informational only; when absent
	// the geo tier derives a bucket from the IP hash prefix instead.
	IPRegion string

	// AccountID is a first-party account reference (logged-in cookie).
	AccountID string

	// Import-record provenance.
	CommitteeID   string
	TransactionID string
	SourceTag     string
	AmountCents   int64
}

// IsImport reports whether the signal came from the bulk import path.
func (s Signal) IsImport() bool {
	return s.Kind == SignalImportRecord
}

// NormalizedFields holds the comparable forms of a signal's identifying
// fields. Produced only by the normalize package; empty components mean a
// field was missing or unparseable, never a wildcard.
type NormalizedFields struct {
	LastName   string
	FirstName  string
	MiddleName string
	Suffix     string

	// FirstNameVariants always contains FirstName itself plus any
	// nickname-table expansions (JIM -> JAMES). Matchers that compare
	// first names iterate this set.
	FirstNameVariants []string

	City  string
	State string
	Zip5  string
	Zip4  string

	Email string
	Phone string
}

// FirstInitial returns the first letter of the normalized first name, or
// empty when no first name was parsed.
func (nf NormalizedFields) FirstInitial() string {
	if nf.FirstName == "" {
		return ""
	}
	return nf.FirstName[:1]
}
