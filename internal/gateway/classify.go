package gateway

import (
	"encoding/json"
	"strings"
)

// Class buckets a backend failure.
type Class string

const (
	ClassPermission      Class = "permission"
	ClassNotFound        Class = "not_found"
	ClassInvalidArgument Class = "invalid_argument"
	ClassQuota           Class = "quota"
	ClassUnknown         Class = "unknown"
)

// Decision is the outcome of classifying a failure. Message is the text to
// report: the nested backend message when one was found, else the raw error
// text.
type Decision struct {
	Class     Class
	Retryable bool
	Message   string
}

// retryablePatterns are matched case-sensitively against the raw message when
// no structured classification was possible. A hit marks the failure
// retryable through a credential refresh.
var retryablePatterns = []string{
	"403",
	"PERMISSION_DENIED",
	"The caller does not have permission",
	"API_KEY is not defined",
	"API key not valid",
	"INVALID_ARGUMENT",
	"quota",
	"404",
	"NOT_FOUND",
	"Requested entity was not found",
}

type errDescriptor struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errEnvelope struct {
	Error *errDescriptor `json:"error"`
}

// Classify derives a retry decision from a failure. It first looks for a JSON
// fragment embedded in the message (bounded by the first '{' and the last
// '}') carrying the backend's nested error descriptor; failing that it falls
// back to substring matching over the raw message.
func Classify(err error) Decision {
	raw := err.Error()
	msg := raw

	if desc := sniffDescriptor(raw); desc != nil {
		if desc.Message != "" {
			msg = desc.Message
		}
		switch {
		case desc.Code == 403 || desc.Status == "PERMISSION_DENIED":
			return Decision{Class: ClassPermission, Retryable: true, Message: msg}
		case desc.Code == 404 || desc.Status == "NOT_FOUND":
			return Decision{Class: ClassNotFound, Retryable: true, Message: msg}
		case desc.Code == 400:
			return Decision{Class: ClassInvalidArgument, Retryable: true, Message: msg}
		case strings.Contains(desc.Message, "quota"):
			return Decision{Class: ClassQuota, Retryable: true, Message: msg}
		}
	}

	for _, pat := range retryablePatterns {
		if strings.Contains(raw, pat) {
			return Decision{Class: ClassUnknown, Retryable: true, Message: msg}
		}
	}
	return Decision{Class: ClassUnknown, Retryable: false, Message: msg}
}

// sniffDescriptor extracts and parses the JSON fragment between the first '{'
// and the last '}' of the message, returning the nested error descriptor if
// one is present.
func sniffDescriptor(msg string) *errDescriptor {
	start := strings.Index(msg, "{")
	end := strings.LastIndex(msg, "}")
	if start < 0 || end <= start {
		return nil
	}
	var env errEnvelope
	if err := json.Unmarshal([]byte(msg[start:end+1]), &env); err != nil {
		return nil
	}
	return env.Error
}
