package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoReq struct {
	Text string `json:"text"`
}

type echoRes struct {
	Text string `json:"text"`
}

func TestRouter_DispatchTypedHandler(t *testing.T) {
	r := NewRouter()
	Register(r, "echo", func(_ context.Context, _ *ConnContext, req echoReq) (echoRes, error) {
		return echoRes{Text: req.Text}, nil
	})

	res, err := r.dispatch(context.Background(), &ConnContext{}, Envelope{
		Event: "echo",
		Body:  json.RawMessage(`{"text":"hi"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, echoRes{Text: "hi"}, res)
}

func TestRouter_UnknownEvent(t *testing.T) {
	r := NewRouter()
	_, err := r.dispatch(context.Background(), &ConnContext{}, Envelope{Event: "nope"})
	require.EqualError(t, err, "unknown_event")
}

func TestRouter_MalformedBody(t *testing.T) {
	r := NewRouter()
	Register(r, "echo", func(_ context.Context, _ *ConnContext, req echoReq) (echoRes, error) {
		return echoRes{}, nil
	})

	_, err := r.dispatch(context.Background(), &ConnContext{}, Envelope{
		Event: "echo",
		Body:  json.RawMessage(`{"text":42}`),
	})
	assert.Error(t, err)
}

func TestRouter_EmptyBodyYieldsZeroRequest(t *testing.T) {
	r := NewRouter()
	Register(r, "echo", func(_ context.Context, _ *ConnContext, req echoReq) (echoRes, error) {
		return echoRes{Text: req.Text}, nil
	})

	res, err := r.dispatch(context.Background(), &ConnContext{}, Envelope{Event: "echo"})
	require.NoError(t, err)
	assert.Equal(t, echoRes{}, res)
}

func TestRouter_HandlerErrorPropagates(t *testing.T) {
	r := NewRouter()
	boom := errors.New("boom")
	Register(r, "fail", func(_ context.Context, _ *ConnContext, _ echoReq) (echoRes, error) {
		return echoRes{}, boom
	})

	_, err := r.dispatch(context.Background(), &ConnContext{}, Envelope{Event: "fail"})
	assert.ErrorIs(t, err, boom)
}

func TestRouter_EmptyEventPanics(t *testing.T) {
	r := NewRouter()
	assert.Panics(t, func() {
		Register(r, "", func(_ context.Context, _ *ConnContext, _ echoReq) (echoRes, error) {
			return echoRes{}, nil
		})
	})
}
