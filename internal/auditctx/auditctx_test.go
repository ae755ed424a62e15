package auditctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	ctx := WithRequest(context.Background(), Request{UserID: "u1", IPAddress: "10.0.0.1", UserAgent: "curl/8"})
	req, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "10.0.0.1", req.IPAddress)
	require.Equal(t, "u1", req.UserID)
}
