package ai

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

var ErrUnavailable = errors.New("ai provider unavailable")

type Kind int

const (
	KindGeneric Kind = iota
	KindConnectivity
	KindAuth
	KindQuota
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	}
	return "generic"
}

// Error is a provider failure tagged with the class callers branch on.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ai %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError carries the HTTP status returned by a provider.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider status %d: %s", e.Code, e.Message)
}

var connectivityWords = []string{"fetch", "networkerror", "closed", "reset", "connection"}

func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code == 429 {
		return &Error{Kind: KindQuota, Err: err}
	}
	if isConnectivity(err) {
		return &Error{Kind: KindConnectivity, Err: err}
	}
	if se != nil && (se.Code == 401 || se.Code == 403) {
		return &Error{Kind: KindAuth, Err: err}
	}
	return &Error{Kind: KindGeneric, Err: err}
}

func isConnectivity(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, word := range connectivityWords {
		if strings.Contains(msg, word) {
			return true
		}
	}
	return false
}
