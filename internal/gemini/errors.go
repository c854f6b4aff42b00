package gemini

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/algovids/algovids-agent/internal/planner"
)

type grpcStatuser interface {
	GRPCStatus() *status.Status
}

type httpCoder interface {
	HTTPCode() int
}

// IsOverloaded reports whether err is the service's transient 503 overload.
// Every other failure is treated as permanent.
func IsOverloaded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, planner.ErrServiceOverloaded) {
		return true
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusServiceUnavailable
	}
	var hc httpCoder
	if errors.As(err, &hc) && hc.HTTPCode() > 0 {
		return hc.HTTPCode() == http.StatusServiceUnavailable
	}
	var gs grpcStatuser
	if errors.As(err, &gs) {
		if st := gs.GRPCStatus(); st != nil && st.Code() != codes.OK && st.Code() != codes.Unknown {
			return st.Code() == codes.Unavailable
		}
	}

	msg := err.Error()
	for _, phrase := range overloadPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// overloadPhrases match untyped errors that only carry the status text.
var overloadPhrases = []string{
	"503 Service Unavailable",
	"Error 503:",
	"UNAVAILABLE",
}

// classify tags overload errors with planner.ErrServiceOverloaded.
func classify(err error) error {
	if err == nil || !IsOverloaded(err) || errors.Is(err, planner.ErrServiceOverloaded) {
		return err
	}
	return fmt.Errorf("%w: %w", planner.ErrServiceOverloaded, err)
}
