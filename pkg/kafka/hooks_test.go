package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookChainOrderAndErrors(t *testing.T) {
	var order []string
	mk := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				order = append(order, "before-"+name)
				return ctx, km, data, nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) {
				order = append(order, "after-"+name)
			},
		}
	}
	chain := NewHookChain(mk("a"), nil, mk("b"))

	ctx, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	require.NoError(t, err)
	chain.AfterHandle(ctx, "t", kafka.Message{}, nil, nil)
	assert.Equal(t, []string{"before-a", "before-b", "after-b", "after-a"}, order)
}

func TestHookChainRecoversPanics(t *testing.T) {
	boom := HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("boom")
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { panic("boom") },
	}
	chain := NewHookChain(boom)
	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)

	var he *HookError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "ERR_HOOK_PANIC", he.Code)
	assert.NotPanics(t, func() { chain.AfterHandle(context.Background(), "t", kafka.Message{}, nil, nil) })
}

func TestTraceAndSizeHooks(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	chain := NewHookChain(TraceHook(), MaxSizeHook(4))

	ctx, _, _, err := chain.BeforeHandle(context.Background(), "t", km, []byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceIDFrom(ctx))

	_, _, _, err = chain.BeforeHandle(context.Background(), "t", km, []byte("too long"))
	var he *HookError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "ERR_SIZE", he.Code)
}
