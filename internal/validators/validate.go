package validators

import (
	"context"
	"os"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

// Validate runs the full L1 validation pipeline for one action
// invocation: schema shape first, then any security-sensitive check
// specific to that action type.
func (r *Registry) Validate(ctx context.Context, inv *coretypes.ActionInvocation) error {
	if err := r.ValidateSchema(inv.ActionType, inv.Parameters); err != nil {
		return err
	}

	switch inv.ActionType {
	case coretypes.ActionNavigate:
		url, _ := inv.Parameters["url"].(string)
		return ValidateNavigateTarget(ctx, url)

	case coretypes.ActionEvaluate:
		script, _ := inv.Parameters["script"].(string)
		return ValidateScript(script)

	case coretypes.ActionWait:
		if strategy, _ := inv.Parameters["strategy"].(string); strategy == "function" {
			script, _ := inv.Parameters["function"].(string)
			return ValidateScript(script)
		}

	case coretypes.ActionUpload:
		raw, _ := inv.Parameters["filePaths"].([]interface{})
		files := make([]UploadFile, 0, len(raw))
		for _, v := range raw {
			path, ok := v.(string)
			if !ok {
				return coretypes.NewValidationError("filePaths", "file path entries must be strings")
			}
			var size int64
			if fi, err := os.Stat(path); err == nil {
				size = fi.Size()
			}
			files = append(files, UploadFile{Path: path, Size: size})
		}
		return ValidateUploadFiles(files)
	}

	return nil
}

// IsRetryable reports whether an action type is permitted to retry on
// transient errors. evaluate and cookie mutations run exactly once:
// retrying a script or a cookie write risks duplicate side effects.
func IsRetryable(actionType coretypes.ActionType) bool {
	switch actionType {
	case coretypes.ActionEvaluate, coretypes.ActionCookie:
		return false
	default:
		return true
	}
}
