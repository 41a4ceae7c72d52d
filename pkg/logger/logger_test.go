package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewFromZap(zap.New(core)), logs
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, "ERROR", LevelError.String())
}

func TestCtx_AddsContextFields(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)

	ctx := WithContext(context.Background(), Int("worker", 2))
	ctx = WithContext(ctx, SourceID("c-1"))
	log.With(Component("queue_consumer")).Ctx(ctx).Info("trigger processed", Points(10))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(2), fields["worker"])
	assert.Equal(t, "c-1", fields["source_id"])
	assert.Equal(t, "queue_consumer", fields["component"])
	assert.Equal(t, int64(10), fields["points"])
}

func TestCtx_WithoutFieldsReturnsSameLogger(t *testing.T) {
	log, _ := observed(zapcore.InfoLevel)
	assert.Same(t, log, log.Ctx(context.Background()))
}

func TestWithContext_DoesNotShareParentFields(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)

	parent := WithContext(context.Background(), Int("worker", 0))
	a := WithContext(parent, SourceID("a"))
	_ = WithContext(parent, SourceID("b"))
	log.Ctx(a).Info("one")

	assert.Equal(t, "a", logs.All()[0].ContextMap()["source_id"])
}

func TestErr_NilIsSkipped(t *testing.T) {
	log, logs := observed(zapcore.DebugLevel)

	log.Warn("nil", Err(nil))
	log.Error("boom", Err(errors.New("boom")))

	assert.Empty(t, logs.All()[0].ContextMap())
	assert.Equal(t, "boom", logs.All()[1].ContextMap()["error"])
	assert.Equal(t, 1, logs.FilterMessage("boom").Len())
}
