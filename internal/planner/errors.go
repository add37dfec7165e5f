package planner

import (
	"fmt"
	"strings"
)

// InvalidRequestError reports a missing or malformed request parameter.
type InvalidRequestError struct {
	Param   string
	Message string
}

func (e *InvalidRequestError) Error() string {
	return e.Message
}

func invalidRequest(param, format string, args ...interface{}) *InvalidRequestError {
	return &InvalidRequestError{Param: param, Message: fmt.Sprintf(format, args...)}
}

// UnknownFieldError reports an axis that is not a column of the live table.
type UnknownFieldError struct {
	Param   string
	Field   string
	Allowed []string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("Invalid %s column name: %s. Allowed: %s", e.Param, e.Field, strings.Join(e.Allowed, ", "))
}
