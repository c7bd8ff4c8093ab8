package ai

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"reset text", errors.New("read: connection reset by peer"), KindConnectivity},
		{"fetch text", errors.New("TypeError: Failed to fetch"), KindConnectivity},
		{"closed text", errors.New("stream closed unexpectedly"), KindConnectivity},
		{"network error text", errors.New("NetworkError when attempting to fetch resource"), KindConnectivity},
		{"net op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, KindConnectivity},
		{"errno reset", fmt.Errorf("post: %w", syscall.ECONNRESET), KindConnectivity},
		{"status 401", fmt.Errorf("gemini: %w", &StatusError{Code: 401, Message: "API key not valid"}), KindAuth},
		{"status 403", &StatusError{Code: 403, Message: "permission denied"}, KindAuth},
		{"status 429", &StatusError{Code: 429, Message: "quota"}, KindQuota},
		{"status 500", &StatusError{Code: 500, Message: "internal"}, KindGeneric},
		{"plain", errors.New("invalid json"), KindGeneric},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			require.NotNil(t, got)
			require.Equal(t, tc.kind, got.Kind)
			require.ErrorIs(t, got, tc.err)
		})
	}
}

func TestClassify_NilAndIdempotent(t *testing.T) {
	require.Nil(t, Classify(nil))

	first := Classify(&StatusError{Code: 401})
	second := Classify(fmt.Errorf("wrapped: %w", first))
	require.Same(t, first, second)
}
