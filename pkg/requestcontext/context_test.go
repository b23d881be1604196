package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActor(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ActorInfo{}, Actor(ctx))

	ctx = WithActor(ctx, ActorInfo{UserID: "u-1", Role: "Admin"})
	assert.Equal(t, ActorInfo{UserID: "u-1", Role: "Admin"}, Actor(ctx))
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
	assert.Equal(t, "req-9", RequestID(WithRequestID(context.Background(), "req-9")))
}

func TestNow(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed, Now(WithTime(context.Background(), fixed)))

	before := time.Now()
	assert.False(t, Now(context.Background()).Before(before))
}
