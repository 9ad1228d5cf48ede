package service

import (
	"unicode"

	"github.com/adsboard-next/internal/config"
)

// PasswordPolicyError 密码策略校验失败
// Rule 为违反的规则名，Min 仅在长度规则下有值。
type PasswordPolicyError struct {
	Rule string
	Min  int
}

func (e *PasswordPolicyError) Error() string {
	return "password policy violated: " + e.Rule
}

// Is 使 errors.Is(err, ErrWeakPassword) 成立
func (e *PasswordPolicyError) Is(target error) bool {
	return target == ErrWeakPassword
}

const (
	passwordRuleMinLength      = "min_length"
	passwordRuleRequireUpper   = "require_upper"
	passwordRuleRequireLower   = "require_lower"
	passwordRuleRequireNumber  = "require_number"
	passwordRuleRequireSpecial = "require_special"
)

func validatePassword(policy config.PasswordPolicyConfig, password string) error {
	if policy.MinLength > 0 && len([]rune(password)) < policy.MinLength {
		return &PasswordPolicyError{Rule: passwordRuleMinLength, Min: policy.MinLength}
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasNumber = true
		default:
			hasSpecial = true
		}
	}

	switch {
	case policy.RequireUpper && !hasUpper:
		return &PasswordPolicyError{Rule: passwordRuleRequireUpper}
	case policy.RequireLower && !hasLower:
		return &PasswordPolicyError{Rule: passwordRuleRequireLower}
	case policy.RequireNumber && !hasNumber:
		return &PasswordPolicyError{Rule: passwordRuleRequireNumber}
	case policy.RequireSpecial && !hasSpecial:
		return &PasswordPolicyError{Rule: passwordRuleRequireSpecial}
	}
	return nil
}
