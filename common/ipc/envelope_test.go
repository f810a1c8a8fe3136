package ipc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequestReturnsValues(t *testing.T) {
	line, err := EncodeRequest(Attach{Surface: 3, Buffer: 7, X: 1, Y: -2})
	require.NoError(t, err)

	var env RequestEnvelope
	require.NoError(t, json.Unmarshal(line, &env))
	assert.Equal(t, "surface.attach", env.Op)

	req, err := DecodeRequest(env)
	require.NoError(t, err)
	assert.Equal(t, Attach{Surface: 3, Buffer: 7, X: 1, Y: -2}, req)
}

func TestDecodeRequestWithoutArgs(t *testing.T) {
	req, err := DecodeRequest(RequestEnvelope{Op: "data_offer.finish"})
	require.NoError(t, err)
	assert.Equal(t, DataOfferFinish{}, req)
}

func TestDecodeRequestErrors(t *testing.T) {
	_, err := DecodeRequest(RequestEnvelope{Op: "surface.explode"})
	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ErrCodeInvalidMethod, perr.Code)

	_, err = DecodeRequest(RequestEnvelope{Op: "surface.commit", Args: json.RawMessage(`{"surface":"nope"}`)})
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ErrCodeInvalidArgs, perr.Code)
}

func TestEveryRequestIsRegistered(t *testing.T) {
	for name, factory := range requestTypes {
		assert.Equal(t, name, factory().RequestName())
	}
	assert.Contains(t, requestTypes, OutputRequest{}.RequestName())
	assert.Contains(t, requestTypes, GetPopup{}.RequestName())
}

func TestEncodeEvent(t *testing.T) {
	line, err := EncodeEvent(Configure{Surface: 2, Serial: 9, Width: 640, Height: 480, States: []string{StateActivated}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"toplevel.configure","args":{"surface":2,"serial":9,"width":640,"height":480,"states":["activated"]}}`, string(line))

	line, err = EncodeEvent(NewProtocolError(4, ErrCodeRole, "surface %d already has a role", 4))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"error","args":{"object":4,"code":3,"message":"surface 4 already has a role"}}`, string(line))
}
