package httpcontext

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"

	appLogger "github.com/fastygo/tasktracker/pkg/logger"
)

func TestAttachCarriesIdentityAndRequestID(t *testing.T) {
	var rctx fasthttp.RequestCtx
	rctx.Request.Header.Set("X-Request-ID", "req-42")
	rctx.Request.Header.SetUserAgent("curl/8")
	SetIdentity(&rctx, "user-1", "sess-1")

	ctx, cancel := NewAdapter(time.Second).Attach(&rctx)
	defer cancel()

	assert.Equal(t, "req-42", appLogger.RequestID(ctx))
	assert.Equal(t, "req-42", string(rctx.Response.Header.Peek("X-Request-ID")))
	assert.Equal(t, "user-1", ctx.Value(KeyUserID))
	assert.Equal(t, "sess-1", ctx.Value(KeySessionID))
	assert.Equal(t, "curl/8", ctx.Value(KeyUserAgent))

	deadline, ok := ctx.Deadline()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)
}

func TestAttachGeneratesRequestID(t *testing.T) {
	var rctx fasthttp.RequestCtx
	ctx, cancel := NewAdapter(0).Attach(&rctx)
	defer cancel()

	assert.NotEmpty(t, appLogger.RequestID(ctx))
	assert.Nil(t, ctx.Value(KeyUserID))
	assert.Empty(t, UserID(&rctx))
}
