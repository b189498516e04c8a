package validators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

func TestValidateNavigateAcceptsPublicHTTPS(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	err = r.Validate(context.Background(), &coretypes.ActionInvocation{
		ActionType: coretypes.ActionNavigate,
		Parameters: map[string]interface{}{"url": "https://example.com/"},
	})
	assert.NoError(t, err)
}

func TestValidateNavigateRejectsMissingURL(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	err = r.Validate(context.Background(), &coretypes.ActionInvocation{
		ActionType: coretypes.ActionNavigate,
		Parameters: map[string]interface{}{},
	})
	assert.Error(t, err)
}

func TestValidateNavigateRejectsLocalhost(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	err = r.Validate(context.Background(), &coretypes.ActionInvocation{
		ActionType: coretypes.ActionNavigate,
		Parameters: map[string]interface{}{"url": "http://localhost:8080/admin"},
	})
	assert.Error(t, err)
}

func TestValidateEvaluateRejectsDangerousScript(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	err = r.Validate(context.Background(), &coretypes.ActionInvocation{
		ActionType: coretypes.ActionEvaluate,
		Parameters: map[string]interface{}{"script": "eval('2+2')"},
	})
	assert.Error(t, err)
}

func TestValidateEvaluateAcceptsBenignScript(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	err = r.Validate(context.Background(), &coretypes.ActionInvocation{
		ActionType: coretypes.ActionEvaluate,
		Parameters: map[string]interface{}{"script": "document.title"},
	})
	assert.NoError(t, err)
}

func TestValidateUploadRejectsPathTraversal(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	err = r.Validate(context.Background(), &coretypes.ActionInvocation{
		ActionType: coretypes.ActionUpload,
		Parameters: map[string]interface{}{
			"selector":  "input[type=file]",
			"filePaths": []interface{}{"../../etc/passwd"},
		},
	})
	assert.Error(t, err)
}

func TestValidateUploadRejectsDisallowedExtension(t *testing.T) {
	err := ValidateUploadFiles([]UploadFile{{Path: "payload.exe", Size: 100}})
	assert.Error(t, err)
}

func TestValidateUnknownActionType(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	err = r.ValidateSchema(coretypes.ActionType("teleport"), nil)
	assert.ErrorIs(t, err, coretypes.ErrUnknownAction)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(coretypes.ActionEvaluate))
	assert.False(t, IsRetryable(coretypes.ActionCookie))
	assert.True(t, IsRetryable(coretypes.ActionNavigate))
}
