package types

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the process-wide validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateAnalysisResult checks an upstream result before it enters the
// pipeline. Failures are returned as ErrCodeValidationAnalysis with the
// offending fields listed in Details.
func ValidateAnalysisResult(r *AnalysisResult) error {
	if r == nil {
		return NewAppError(ErrCodeValidationAnalysis, "analysis result is nil", nil)
	}
	if err := Validator().Struct(r); err != nil {
		return validationAppError(ErrCodeValidationAnalysis, "invalid analysis result", err)
	}
	return nil
}

// ValidateDispatchRequest checks an inbound dispatch request.
func ValidateDispatchRequest(req *DispatchRequest) error {
	if req == nil {
		return NewAppError(ErrCodeValidationInvalidPayload, "dispatch request is nil", nil)
	}
	if err := Validator().Struct(req); err != nil {
		return validationAppError(ErrCodeValidationInvalidPayload, "invalid dispatch request", err)
	}
	return nil
}

func validationAppError(code ErrorCode, msg string, err error) *AppError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewAppError(code, fmt.Sprintf("%s: %v", msg, err), err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
	}
	return NewAppErrorWithDetails(code, msg+": "+strings.Join(fields, "; "), err, map[string]any{
		"fields": fields,
	})
}
