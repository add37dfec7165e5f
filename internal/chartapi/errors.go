package chartapi

import (
	"errors"
	"net/http"

	"tidb-charts/internal/chartsvc"
	"tidb-charts/internal/introspection"
)

// brokenDependencyPrefix marks catalog failures caused by a view that
// references a dropped object, so clients can tell them from bad input.
const brokenDependencyPrefix = "Broken view dependency: "

// statusFor maps a pipeline error to its HTTP status.
func statusFor(err error) int {
	if chartsvc.IsRequestError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// messageFor returns the client-facing message. Execution errors pass the
// engine message through unchanged.
func messageFor(err error) string {
	var broken *introspection.BrokenDependencyError
	if errors.As(err, &broken) {
		return brokenDependencyPrefix + err.Error()
	}
	return err.Error()
}
