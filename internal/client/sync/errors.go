package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/marksync/internal/client/client"
)

var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrNotConfigured  = errors.New("local store is not configured")
	ErrOffline        = errors.New("server is not reachable")
)

// Kind is the class of a sync failure.
type Kind int

const (
	KindNone Kind = iota
	KindCancelled
	KindAuth
	KindTransport
	KindServer
	KindDecoding
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCancelled:
		return "cancelled"
	case KindAuth:
		return "auth"
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindDecoding:
		return "decoding"
	default:
		return "local"
	}
}

// Classify maps err onto a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, client.ErrNotAuthenticated) || errors.Is(err, client.ErrUnauthorized) {
		return KindAuth
	}

	var (
		de  *client.DecodingError
		se  *client.ServerError
		ue  *client.UnexpectedStatusError
		jse *json.SyntaxError
		jte *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &de), errors.As(err, &jse), errors.As(err, &jte):
		return KindDecoding
	case errors.As(err, &se), errors.As(err, &ue):
		return KindServer
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}
	var (
		ne net.Error
		ee *url.Error
	)
	if errors.As(err, &ne) || errors.As(err, &ee) {
		return KindTransport
	}
	return KindLocal
}

// Retryable reports whether a sync attempt failing with err should be retried.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindTransport:
		return true
	case KindServer:
		code := client.StatusCode(err)
		var se *client.ServerError
		if !errors.As(err, &se) {
			return true
		}
		return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
	default:
		return false
	}
}
