package validation

import (
	"fmt"
	"unicode"

	"github.com/devrev/kvring/internal/errors"
)

const (
	// Size limits
	MaxKeySize   = 1024             // 1 KB
	MaxValueSize = 10 * 1024 * 1024 // 10 MB
)

// Validator validates data-plane requests
type Validator struct {
	maxKeySize   int
	maxValueSize int
}

// NewValidator creates a new validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxKeySize:   MaxKeySize,
		maxValueSize: MaxValueSize,
	}
}

// NewValidatorWithLimits creates a validator with custom limits
func NewValidatorWithLimits(maxKeySize, maxValueSize int) *Validator {
	return &Validator{
		maxKeySize:   maxKeySize,
		maxValueSize: maxValueSize,
	}
}

// ValidatePut validates a write; an empty value is a delete
func (v *Validator) ValidatePut(key, value string) error {
	if err := v.ValidateKey(key); err != nil {
		return err
	}
	return v.ValidateValue(value)
}

// ValidateKey validates a key
func (v *Validator) ValidateKey(key string) error {
	if key == "" {
		return errors.InvalidArgument("key cannot be empty", nil)
	}
	if len(key) > v.maxKeySize {
		return errors.InvalidArgument(
			fmt.Sprintf("key too large: %d bytes (max: %d bytes)", len(key), v.maxKeySize), nil)
	}
	for i, r := range key {
		if unicode.IsControl(r) {
			return errors.InvalidArgument(
				fmt.Sprintf("key contains control character at position %d", i), nil)
		}
	}
	return nil
}

// ValidateValue validates a value
func (v *Validator) ValidateValue(value string) error {
	if len(value) > v.maxValueSize {
		return errors.InvalidArgument(
			fmt.Sprintf("value too large: %d bytes (max: %d bytes)", len(value), v.maxValueSize), nil)
	}
	return nil
}

// ValidateSubscriber validates a client callback address
func (v *Validator) ValidateSubscriber(addr string) error {
	if addr == "" {
		return errors.InvalidArgument("subscriber address cannot be empty", nil)
	}
	return nil
}
