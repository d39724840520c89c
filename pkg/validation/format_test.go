package validation

import (
	"math"
	"strings"
	"testing"
)

func TestValidateOutputFormat(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		expectErr bool
	}{
		{
			name:      "Valid pretty format",
			format:    "pretty",
			expectErr: false,
		},
		{
			name:      "Valid csv format",
			format:    "csv",
			expectErr: false,
		},
		{
			name:      "Valid json format",
			format:    "json",
			expectErr: false,
		},
		{
			name:      "Invalid format",
			format:    "xml",
			expectErr: true,
		},
		{
			name:      "Empty format",
			format:    "",
			expectErr: true,
		},
		{
			name:      "Case sensitive - uppercase",
			format:    "PRETTY",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputFormat(tt.format)
			if tt.expectErr && err == nil {
				t.Errorf("ValidateOutputFormat(%q) expected error, got nil", tt.format)
			}
			if !tt.expectErr && err != nil {
				t.Errorf("ValidateOutputFormat(%q) unexpected error: %v", tt.format, err)
			}
		})
	}
}

func TestValidateOutputFormatErrorMessage(t *testing.T) {
	err := ValidateOutputFormat("xml")
	if err == nil {
		t.Fatal("expected error")
	}
	for _, format := range SupportedOutputFormats {
		if !strings.Contains(err.Error(), format) {
			t.Errorf("error message %q does not mention %s", err.Error(), format)
		}
	}
}

func TestValidateBudget(t *testing.T) {
	tests := []struct {
		name      string
		budget    float64
		expectErr bool
	}{
		{"Positive", 5000, false},
		{"Tiny positive", 0.01, false},
		{"Zero", 0, true},
		{"Negative", -10, true},
		{"NaN", math.NaN(), true},
		{"Infinite", math.Inf(1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBudget(tt.budget)
			if (err != nil) != tt.expectErr {
				t.Errorf("ValidateBudget(%v) error = %v, expectErr %v", tt.budget, err, tt.expectErr)
			}
		})
	}
}
