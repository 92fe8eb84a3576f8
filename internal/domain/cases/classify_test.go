package cases

import (
	"errors"
	"testing"
)

func TestClassify_Negative(t *testing.T) {
	cls, err := Classify(ResultNegative)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cls.Summary != "no underlying genetic cause identified" {
		t.Errorf("summary = %q", cls.Summary)
	}
	if cls.BillingType != BillingNEG {
		t.Errorf("billing type = %q, want NEG", cls.BillingType)
	}
	if cls.BillingAmount != 150.00 {
		t.Errorf("amount = %v, want 150", cls.BillingAmount)
	}
	if cls.Terminal {
		t.Error("negative result must not be terminal")
	}
}

func TestClassify_NegativeNegative(t *testing.T) {
	cls, err := Classify(ResultNegativeNegative)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cls.Summary != "no underlying genetic cause identified" {
		t.Errorf("summary = %q", cls.Summary)
	}
	// Billing category differs from a plain negative even though the summary
	// text is the same.
	if cls.BillingType != BillingNEGNEG {
		t.Errorf("billing type = %q, want NEGNEG", cls.BillingType)
	}
	if cls.BillingAmount != 150.00 {
		t.Errorf("amount = %v, want 150", cls.BillingAmount)
	}
	if !cls.Terminal {
		t.Error("negneg result must be terminal")
	}
}

func TestClassify_PreviouslyReported(t *testing.T) {
	cls, err := Classify(ResultPreviouslyReported)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cls.Summary != "see previously reported variant(s)" {
		t.Errorf("summary = %q", cls.Summary)
	}
	if cls.BillingType != BillingNEG {
		t.Errorf("billing type = %q, want NEG", cls.BillingType)
	}
	if cls.Terminal {
		t.Error("previously-reported result must not be terminal")
	}
}

func TestClassify_UnknownCode(t *testing.T) {
	for _, code := range []ResultCode{0, 1, 999999, -5} {
		_, err := Classify(code)
		if err == nil {
			t.Fatalf("code %d: expected error, got nil", code)
		}
		var cerr *ClassificationError
		if !errors.As(err, &cerr) {
			t.Fatalf("code %d: error type = %T, want *ClassificationError", code, err)
		}
		if cerr.Code != code {
			t.Errorf("error code = %d, want %d", cerr.Code, code)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	first, _ := Classify(ResultNegativeNegative)
	for i := 0; i < 10; i++ {
		again, _ := Classify(ResultNegativeNegative)
		if again != first {
			t.Fatalf("classification unstable: %+v vs %+v", again, first)
		}
	}
}
