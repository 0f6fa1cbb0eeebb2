package client

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koltyakov/fbxos/internal/domain"
)

func TestBuildEnvelopeRejectsMalformed(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"failure without msg or code": `{"success": false}`,
		"failure without code":        `{"success": false, "msg": "x"}`,
		"failure without msg":         `{"success": false, "error_code": "y"}`,
		"missing success":             `{"result": {}}`,
		"string success":              `{"success": "true"}`,
		"null success":                `{"success": null}`,
		"array body":                  `[1, 2]`,
		"not json":                    `<html>`,
	}
	for name, body := range tests {
		body := body
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := BuildEnvelope([]byte(body))
			var me *domain.MalformedResponseError
			require.True(t, errors.As(err, &me), "got %v", err)
		})
	}
}

func TestBuildEnvelopeFailure(t *testing.T) {
	t.Parallel()

	env, err := BuildEnvelope([]byte(`{"success": false, "msg": "x", "error_code": "y"}`))
	require.NoError(t, err)
	assert.False(t, env.Success)
	assert.Equal(t, "x", env.Msg)
	assert.Equal(t, "y", env.ErrorCode)
	assert.Equal(t, false, env.Raw["success"])
}

func TestBuildEnvelopeNullResult(t *testing.T) {
	t.Parallel()

	env, err := BuildEnvelope([]byte(`{"success": true, "result": null}`))
	require.NoError(t, err)
	assert.False(t, env.HasResult())

	var out []map[string]any
	require.NoError(t, env.DecodeResult(&out))
	assert.Empty(t, out)
}

func TestDecodeResultTypeMismatch(t *testing.T) {
	t.Parallel()

	env, err := BuildEnvelope([]byte(`{"success": true, "result": {"active": true}}`))
	require.NoError(t, err)

	var out []string
	var me *domain.MalformedResponseError
	require.True(t, errors.As(env.DecodeResult(&out), &me))
}
