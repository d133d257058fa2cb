package files

import (
	"strings"
	"unicode"

	"github.com/blockvault/internal/apperr"
)

// MaxNameLength is in bytes, matching common filesystem limits.
const MaxNameLength = 255

var (
	ErrNameTooLong = apperr.New(apperr.InvalidInput, "file name too long")
	ErrInvalidName = apperr.New(apperr.InvalidInput, "file name contains control characters")
)

// NameRule 文件名验证规则
type NameRule interface {
	Validate(name string) error
	RuleName() string
}

// RequiredRule 非空验证
type RequiredRule struct{}

func (RequiredRule) Validate(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	return nil
}

func (RequiredRule) RuleName() string { return "required" }

// LengthRule 长度验证
type LengthRule struct {
	MaxLength int
}

func (r LengthRule) Validate(name string) error {
	if len(name) > r.MaxLength {
		return ErrNameTooLong
	}
	return nil
}

func (LengthRule) RuleName() string { return "length" }

// PrintableRule 拒绝控制字符
type PrintableRule struct{}

func (PrintableRule) Validate(name string) error {
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return ErrInvalidName
	}
	return nil
}

func (PrintableRule) RuleName() string { return "printable" }

// NameValidator 复合验证器
//
// Rules run in order and the first failure wins.
type NameValidator struct {
	rules []NameRule
}

func NewNameValidator(rules ...NameRule) *NameValidator {
	return &NameValidator{rules: rules}
}

// DefaultNameValidator is applied to every upload.
func DefaultNameValidator() *NameValidator {
	return NewNameValidator(RequiredRule{}, LengthRule{MaxLength: MaxNameLength}, PrintableRule{})
}

func (v *NameValidator) AddRule(rule NameRule) {
	v.rules = append(v.rules, rule)
}

// Normalize strips client-side directories and surrounding whitespace,
// then validates what remains.
func (v *NameValidator) Normalize(name string) (string, error) {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	for _, rule := range v.rules {
		if err := rule.Validate(name); err != nil {
			return "", err
		}
	}
	return name, nil
}
