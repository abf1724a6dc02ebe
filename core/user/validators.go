package user

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/lumenedu/lumen/core"
)

var (
	roleTag  = "role"
	roleText = "invalid role"

	pwdConfirmTag  = "eqfield"
	pwdConfirmText = "passwords do not match"

	// password policy: the hosted store enforces the rest
	pwdMinLen     = 6
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	studentReqTag  = "studentreq"
	studentReqText = "this field is required for student accounts"
)

func init() {
	_ = core.Validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(roleTag, roleText)
	core.RegisterCustomTranslation(pwdConfirmTag, pwdConfirmText, true)
	core.RegisterCustomTranslation(pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(studentReqTag, studentReqText)

	core.Validate.RegisterStructValidation(registrationStructValidation, Registration{})
}

// roleValidation checks that the provided role is a known account type.
func roleValidation(fl validator.FieldLevel) bool {
	return ParseRole(fl.Field().String()).Valid()
}

// registrationStructValidation does struct level validation on Registration:
// password length and role-conditional student fields.
func registrationStructValidation(sl validator.StructLevel) {
	reg, ok := sl.Current().Interface().(Registration)
	if !ok {
		return
	}

	if reg.Password != "" && len(reg.Password) < pwdMinLen {
		sl.ReportError(reg.Password, "password", "Password", pwdMinLenTag, "")
	}

	if reg.Role == RoleStudent {
		if reg.StudentID == "" {
			sl.ReportError(reg.StudentID, "student_id", "StudentID", studentReqTag, "")
		}
		if reg.Major == "" {
			sl.ReportError(reg.Major, "major", "Major", studentReqTag, "")
		}
		if reg.AcademicYear == "" {
			sl.ReportError(reg.AcademicYear, "academic_year", "AcademicYear", studentReqTag, "")
		}
	}
}
