package product

// RejectReason classifies why a record failed validation.
type RejectReason string

const (
	ReasonMissingName  RejectReason = "MISSING_NAME"
	ReasonMissingMedia RejectReason = "MISSING_MEDIA"
	ReasonMissingPrice RejectReason = "MISSING_PRICE"
)

// Validate checks a record against the delivery invariants: non-empty name,
// at least one image, and a usable current price. It returns the first
// failing reason and false, or "" and true for a valid record.
func Validate(r *Record) (RejectReason, bool) {
	if r.Name == "" {
		return ReasonMissingName, false
	}

	if len(r.Images) == 0 {
		return ReasonMissingMedia, false
	}

	if !r.Prices.Valid() {
		return ReasonMissingPrice, false
	}

	return "", true
}
