package validators

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/security"
)

const (
	maxScriptLength    = 50000
	maxUploadFileBytes = 10 * 1024 * 1024
	maxUploadTotalBytes = 50 * 1024 * 1024
)

// dangerousIdentifiers are JS snippets rejected outright from evaluate/
// wait-function payloads, regardless of schema validity.
var dangerousIdentifiers = []string{
	"eval(", "Function(", "__proto__", "innerHTML", "import(",
	"setTimeout", "setInterval", "document.write", "fetch(",
	"XMLHttpRequest", "localStorage", "sessionStorage", "indexedDB",
	"atob(", "btoa(", "<script", "javascript:", "data:text/html",
}

var allowedUploadExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".pdf": true, ".txt": true, ".csv": true, ".json": true,
}

// ValidateNavigateTarget enforces the http(s)-only, non-private-network
// URL policy on navigate targets.
func ValidateNavigateTarget(ctx context.Context, rawURL string) error {
	if err := security.ValidateURLWithContext(ctx, rawURL); err != nil {
		return coretypes.NewValidationError("url", err.Error())
	}
	return nil
}

// ValidateScript rejects oversized scripts and scripts containing any
// configured dangerous identifier. Used for both evaluate payloads and
// wait{strategy:function} payloads, which share the same sanitization
// requirement.
func ValidateScript(script string) error {
	if len(script) > maxScriptLength {
		return coretypes.NewValidationError("script", fmt.Sprintf("script exceeds %d characters", maxScriptLength))
	}
	for _, id := range dangerousIdentifiers {
		if strings.Contains(script, id) {
			return coretypes.NewValidationError("script", "script contains unsafe code")
		}
	}
	return nil
}

// UploadFile describes one file a caller wants uploaded. Registry.Validate
// fills Size from a stat of the path; a path that cannot be stat'ed
// gets Size 0.
type UploadFile struct {
	Path string
	Size int64
}

// ValidateUploadFiles checks every path for traversal, extension
// allow-listing, and per-file/total size limits.
func ValidateUploadFiles(files []UploadFile) error {
	var total int64
	for _, f := range files {
		if strings.Contains(f.Path, "..") {
			return coretypes.NewValidationError("filePaths", "path traversal sequence not allowed")
		}
		if filepath.IsAbs(f.Path) {
			return coretypes.NewValidationError("filePaths", "absolute paths not allowed")
		}
		ext := strings.ToLower(filepath.Ext(f.Path))
		if !allowedUploadExtensions[ext] {
			return coretypes.NewValidationError("filePaths", fmt.Sprintf("extension %q not allowed", ext))
		}
		if f.Size > maxUploadFileBytes {
			return coretypes.NewValidationError("filePaths", "file exceeds per-file size limit")
		}
		total += f.Size
	}
	if total > maxUploadTotalBytes {
		return coretypes.NewValidationError("filePaths", "total upload size exceeds limit")
	}
	return nil
}

// ValidateExtraHeaders delegates to the header-shape checks shared
// with the rest of the module (control characters, oversized values).
func ValidateExtraHeaders(headers map[string]string) error {
	if err := security.ValidateHeaders(headers); err != nil {
		return coretypes.NewValidationError("extraHTTPHeaders", err.Error())
	}
	return nil
}
