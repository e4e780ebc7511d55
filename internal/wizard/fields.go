package wizard

import (
	"fmt"
	"strings"
	"time"
)

// Field names a form input.
type Field string

const (
	FieldMobile         Field = "mobileNumber"
	FieldOTP            Field = "otp"
	FieldName           Field = "name"
	FieldDOB            Field = "dob"
	FieldGender         Field = "gender"
	FieldBaseAddress    Field = "baseAddress"
	FieldPostOfficeName Field = "postOfficeName"
	FieldPincode        Field = "pincode"
	FieldCity           Field = "city"
	FieldDistrict       Field = "district"
	FieldState          Field = "state"
)

// DOBLayout is the date of birth format sent to the API.
const DOBLayout = "2006-01-02"

// Genders lists the accepted gender values.
var Genders = []string{"male", "female", "other"}

// StepFields lists the inputs of each step in display order.
var StepFields = map[Step][]Field{
	StepPhone:   {FieldMobile},
	StepOTP:     {FieldOTP},
	StepProfile: {FieldName, FieldDOB, FieldGender},
	StepAddress: {FieldBaseAddress, FieldPostOfficeName, FieldPincode, FieldCity, FieldDistrict, FieldState},
}

// Fields holds the raw form values.
type Fields map[Field]string

// Get returns the trimmed value of f.
func (fs Fields) Get(f Field) string {
	return strings.TrimSpace(fs[f])
}

func (fs Fields) clone() Fields {
	out := make(Fields, len(fs))
	for k, v := range fs {
		out[k] = v
	}
	return out
}

// ValidationError is a client-side, field-scoped rejection. It never reaches the network.
type ValidationError struct {
	Field   Field
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("wizard: %s: %s", e.Field, e.Message)
}

// Validate checks the inputs of step and returns every failing field in display order.
// now bounds the date of birth.
func Validate(step Step, fs Fields, now time.Time) []*ValidationError {
	var errs []*ValidationError
	fail := func(f Field, msg string) {
		errs = append(errs, &ValidationError{Field: f, Message: msg})
	}

	switch step {
	case StepPhone:
		if !isDigits(fs.Get(FieldMobile), 10) {
			fail(FieldMobile, "Enter a 10 digit mobile number")
		}
	case StepOTP:
		if !isDigits(fs.Get(FieldOTP), 6) {
			fail(FieldOTP, "Enter the 6 digit OTP")
		}
	case StepProfile:
		if fs.Get(FieldName) == "" {
			fail(FieldName, "Name is required")
		}
		if msg := checkDOB(fs.Get(FieldDOB), now); msg != "" {
			fail(FieldDOB, msg)
		}
		if g := strings.ToLower(fs.Get(FieldGender)); g == "" {
			fail(FieldGender, "Gender is required")
		} else if !validGender(g) {
			fail(FieldGender, "Choose male, female or other")
		}
	case StepAddress:
		if fs.Get(FieldBaseAddress) == "" {
			fail(FieldBaseAddress, "Address is required")
		}
		if fs.Get(FieldPostOfficeName) == "" {
			fail(FieldPostOfficeName, "Post office is required")
		}
		if !isDigits(fs.Get(FieldPincode), 6) {
			fail(FieldPincode, "Enter a 6 digit pincode")
		}
		if fs.Get(FieldCity) == "" {
			fail(FieldCity, "City is required")
		}
	}
	return errs
}

func checkDOB(v string, now time.Time) string {
	if v == "" {
		return "Date of birth is required"
	}
	dob, err := time.Parse(DOBLayout, v)
	if err != nil {
		return "Use the format YYYY-MM-DD"
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if dob.After(today) {
		return "Date of birth cannot be in the future"
	}
	return ""
}

func validGender(g string) bool {
	for _, ok := range Genders {
		if g == ok {
			return true
		}
	}
	return false
}

// isDigits reports whether s is exactly n ASCII digits.
func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
