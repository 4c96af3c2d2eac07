package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps err in a SiteError of errType. A SiteError cause keeps its
// context and component.
func Wrap(err error, errType ErrorType, code, message string) *SiteError {
	if err == nil {
		return nil
	}

	var se *SiteError
	if errors.As(err, &se) {
		return &SiteError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       err,
			Context:     se.Context,
			Component:   se.Component,
			Recoverable: se.Recoverable,
		}
	}

	return &SiteError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeStorage,
	}
}

// GetErrorContext flattens a SiteError into log fields.
func GetErrorContext(err error) map[string]interface{} {
	var se *SiteError
	if errors.As(err, &se) {
		context := make(map[string]interface{}, len(se.Context)+4)
		for k, v := range se.Context {
			context[k] = v
		}
		if se.Component != "" {
			context["component"] = se.Component
		}
		context["type"] = string(se.Type)
		context["code"] = se.Code
		context["recoverable"] = se.Recoverable
		return context
	}

	return map[string]interface{}{
		"message": err.Error(),
		"type":    "unknown",
	}
}

// CombineErrors returns nil, the single non-nil error, or one error listing
// all of them.
func CombineErrors(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}

	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	}

	messages := make([]string, 0, len(nonNil))
	for _, err := range nonNil {
		messages = append(messages, err.Error())
	}

	return &SiteError{
		Type:    ErrorTypeInternal,
		Code:    "ERR_MULTIPLE_ERRORS",
		Message: fmt.Sprintf("multiple errors occurred: %d errors", len(nonNil)),
		Cause:   errors.Join(nonNil...),
		Context: map[string]interface{}{
			"error_count": len(nonNil),
			"errors":      messages,
		},
	}
}
