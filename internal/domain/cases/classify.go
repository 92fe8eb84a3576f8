package cases

const (
	summaryNoCause            = "no underlying genetic cause identified"
	summaryPreviouslyReported = "see previously reported variant(s)"

	negativeReportCharge = 150.00
)

// Classify maps a result code to its report summary, billing category and
// terminal-status flag. The enumeration is fixed: callers must not infer
// additional codes, and an unknown code is an error for the case, never a
// silent default.
func Classify(code ResultCode) (Classification, error) {
	switch code {
	case ResultNegative:
		return Classification{
			Summary:       summaryNoCause,
			BillingType:   BillingNEG,
			BillingAmount: negativeReportCharge,
		}, nil
	case ResultNegativeNegative:
		// Negative-negative closes the case. It bills under its own category
		// even though the clinical summary matches a plain negative.
		return Classification{
			Summary:       summaryNoCause,
			BillingType:   BillingNEGNEG,
			BillingAmount: negativeReportCharge,
			Terminal:      true,
		}, nil
	case ResultPreviouslyReported:
		return Classification{
			Summary:       summaryPreviouslyReported,
			BillingType:   BillingNEG,
			BillingAmount: negativeReportCharge,
		}, nil
	default:
		return Classification{}, &ClassificationError{Code: code}
	}
}
