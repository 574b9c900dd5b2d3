package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, ClientIP(ctx))
	assert.Empty(t, Device(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)

	fixed := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	ctx = WithTime(WithUserAgent(WithClientIP(WithRequestID(ctx, "req-1"), "10.0.0.1"), "curl/8"), fixed)
	ctx = WithDevice(ctx, "curl")

	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
	assert.Equal(t, "curl/8", UserAgent(ctx))
	assert.Equal(t, "curl", Device(ctx))
	assert.Equal(t, fixed, Now(ctx))
}
