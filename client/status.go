package client

import "net/http"

// StatusClass classifies a response status code. It is informational only:
// a response body is decoded whatever its class.
type StatusClass int

const (
	ClassUnknown StatusClass = iota
	ClassInformational
	ClassSuccess
	ClassRedirect
	ClassClientError
	ClassServerError
)

// Classify returns the class of an HTTP status code.
func Classify(code int) StatusClass {
	switch {
	case code >= 100 && code < 200:
		return ClassInformational
	case code >= 200 && code < 300:
		return ClassSuccess
	case code >= 300 && code < 400:
		return ClassRedirect
	case code >= 400 && code < 500:
		return ClassClientError
	case code >= 500 && code < 600:
		return ClassServerError
	default:
		return ClassUnknown
	}
}

func (c StatusClass) String() string {
	switch c {
	case ClassInformational:
		return "1xx"
	case ClassSuccess:
		return "2xx"
	case ClassRedirect:
		return "3xx"
	case ClassClientError:
		return "4xx"
	case ClassServerError:
		return "5xx"
	default:
		return "unknown"
	}
}

// Status is embedded in responses to expose status helpers.
type Status struct {
	StatusCode int
}

// Class returns the status class.
func (s Status) Class() StatusClass { return Classify(s.StatusCode) }

// IsSuccess reports a 2xx status.
func (s Status) IsSuccess() bool { return s.Class() == ClassSuccess }

// IsRedirect reports a 3xx status.
func (s Status) IsRedirect() bool { return s.Class() == ClassRedirect }

// IsServerError reports a 5xx status.
func (s Status) IsServerError() bool { return s.Class() == ClassServerError }

// IsInternalServerError reports a 500 status.
func (s Status) IsInternalServerError() bool { return s.StatusCode == http.StatusInternalServerError }
