package validator

import (
	"reflect"
	"strings"
	"testing"

	"github.com/foxzi/numcheck/internal/rules"
)

func TestValidateCongo(t *testing.T) {
	res := Validate("+242061234567", rules.Default())

	if !res.Valid {
		t.Fatalf("Valid = false, errors = %v", res.Errors)
	}
	if res.Country == nil || res.Country.CountryName != "Republic of Congo" {
		t.Errorf("Country = %+v, want Republic of Congo", res.Country)
	}
	if res.LocalNumber != "061234567" {
		t.Errorf("LocalNumber = %q, want 061234567", res.LocalNumber)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want empty", res.Errors)
	}
	if res.Code != "" {
		t.Errorf("Code = %q, want empty", res.Code)
	}
	want := Steps{HasPlusPrefix: true, CountryRecognized: true, LengthValid: true, PrefixValid: true, AllDigits: true}
	if res.Steps != want {
		t.Errorf("Steps = %+v, want all true", res.Steps)
	}
	if got := E164(res); got != "+242061234567" {
		t.Errorf("E164() = %q, want +242061234567", got)
	}
}

func TestValidateCongoShortLength(t *testing.T) {
	res := Validate("+24206123456", rules.Default())
	if res.Valid {
		t.Fatal("Valid = true, want false for 8-digit local number")
	}
	if res.Code != CodeLengthMismatch {
		t.Errorf("Code = %q, want %q", res.Code, CodeLengthMismatch)
	}
}

func TestValidateMissingCountryCode(t *testing.T) {
	res := Validate("0612345678", rules.Default())

	if res.Valid {
		t.Fatal("Valid = true, want false")
	}
	if res.Steps.HasPlusPrefix {
		t.Error("Steps.HasPlusPrefix = true, want false")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "must include country code") {
		t.Errorf("Errors = %v, want missing country code message", res.Errors)
	}
	if res.Code != CodeMissingCountryCode {
		t.Errorf("Code = %q, want %q", res.Code, CodeMissingCountryCode)
	}
}

func TestValidateNoPlusNeverPasses(t *testing.T) {
	table := rules.Default()
	inputs := []string{
		"242061234567",
		"  242061234567  ",
		"00242061234567",
		"061234567",
		"abc",
		"2 4 2 0 6 1 2 3 4 5 6 7",
		"-+242061234567",
	}

	for _, in := range inputs {
		res := Validate(in, table)
		if res.Valid {
			t.Errorf("Validate(%q).Valid = true", in)
		}
		if res.Steps.HasPlusPrefix {
			t.Errorf("Validate(%q).Steps.HasPlusPrefix = true", in)
		}
		if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "country code") {
			t.Errorf("Validate(%q).Errors = %v, want country code message", in, res.Errors)
		}
	}
}

func TestValidateSenegalFailsAtLength(t *testing.T) {
	res := Validate("+22170000000", rules.Default())

	if res.Valid {
		t.Fatal("Valid = true, want false")
	}
	if res.LocalNumber != "70000000" {
		t.Errorf("LocalNumber = %q, want 70000000", res.LocalNumber)
	}
	if !res.Steps.CountryRecognized {
		t.Error("Steps.CountryRecognized = false, want true")
	}
	if res.Steps.LengthValid {
		t.Error("Steps.LengthValid = true, want false")
	}
	if res.Steps.PrefixValid {
		t.Error("Steps.PrefixValid = true, want false (step not reached)")
	}
	if res.Code != CodeLengthMismatch {
		t.Errorf("Code = %q, want %q", res.Code, CodeLengthMismatch)
	}
	if !strings.Contains(res.Errors[0], "expected 9") || !strings.Contains(res.Errors[0], "got 8") {
		t.Errorf("Errors[0] = %q, want expected vs actual length", res.Errors[0])
	}
}

func TestValidateSteps(t *testing.T) {
	table := rules.Default()

	tests := []struct {
		name  string
		input string
		code  ErrorCode
		steps Steps
	}{
		{
			name:  "empty",
			input: "",
			code:  CodeEmptyInput,
		},
		{
			name:  "whitespace only",
			input: " \t\n ",
			code:  CodeEmptyInput,
		},
		{
			name:  "unsupported country",
			input: "+999123456789",
			code:  CodeUnsupportedCountryCode,
			steps: Steps{HasPlusPrefix: true},
		},
		{
			name:  "wrong prefix",
			input: "+242071234567",
			code:  CodePrefixMismatch,
			steps: Steps{HasPlusPrefix: true, CountryRecognized: true, LengthValid: true},
		},
		{
			name:  "letters in local number",
			input: "+24206123456a",
			code:  CodeNonDigitLocalNumber,
			steps: Steps{HasPlusPrefix: true, CountryRecognized: true, LengthValid: true, PrefixValid: true},
		},
		{
			name:  "internal whitespace removed",
			input: " +242 06 123 45 67 ",
			steps: Steps{HasPlusPrefix: true, CountryRecognized: true, LengthValid: true, PrefixValid: true, AllDigits: true},
		},
		{
			name:  "senegal valid",
			input: "+221771234567",
			steps: Steps{HasPlusPrefix: true, CountryRecognized: true, LengthValid: true, PrefixValid: true, AllDigits: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.input, table)
			if res.Code != tt.code {
				t.Errorf("Code = %q, want %q (errors %v)", res.Code, tt.code, res.Errors)
			}
			if res.Steps != tt.steps {
				t.Errorf("Steps = %+v, want %+v", res.Steps, tt.steps)
			}
			if res.Valid != (tt.code == "") {
				t.Errorf("Valid = %v, want %v", res.Valid, tt.code == "")
			}
			if res.Valid != (len(res.Errors) == 0) {
				t.Errorf("Valid = %v but Errors = %v", res.Valid, res.Errors)
			}
		})
	}
}

func TestValidateUnsupportedListsCodes(t *testing.T) {
	table := rules.Default()
	res := Validate("+999123", table)
	for _, code := range table.Codes() {
		if !strings.Contains(res.Errors[0], code) {
			t.Errorf("error %q does not list %s", res.Errors[0], code)
		}
	}
}

func TestValidateIdempotent(t *testing.T) {
	table := rules.Default()
	inputs := []string{"+242061234567", "0612345678", "+22170000000", "", "+24206123456a", "+999"}

	for _, in := range inputs {
		first := Validate(in, table)
		second := Validate(in, table)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Validate(%q) not idempotent:\n%+v\n%+v", in, first, second)
		}
	}
}

func TestValidateFirstMatchInTableOrder(t *testing.T) {
	table, err := rules.NewTable([]rules.CountryRule{
		{CountryCode: "+44", CountryName: "United Kingdom", TotalLength: 10, MobilePrefixes: []string{"7"}, Region: rules.RegionAnglophone},
		{CountryCode: "+1", CountryName: "United States/Canada", TotalLength: 10, MobilePrefixes: []string{"2"}, Region: rules.RegionAnglophone},
	})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	res := Validate("+447700900123", table)
	if !res.Valid {
		t.Fatalf("Valid = false, errors = %v", res.Errors)
	}
	if res.Country.CountryCode != "+44" {
		t.Errorf("Country = %s, want +44", res.Country.CountryCode)
	}
}

func TestMask(t *testing.T) {
	if got := Mask("+242061234567"); got != "*********4567" {
		t.Errorf("Mask() = %q", got)
	}
	if got := Mask("123"); got != "****" {
		t.Errorf("Mask(short) = %q", got)
	}
}
