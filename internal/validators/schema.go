// Package validators implements the L1 per-action validation layer:
// JSON Schema checks on the action payload shape plus the
// security-sensitive checks that schemas can't express (SSRF
// allow-listing, script sanitization, upload path traversal).
package validators

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

const schemaBaseURL = "https://browserctl.schemas.local/actions/"

// actionSchemas holds the JSON Schema document (Draft 2020-12) for
// each action type's Parameters payload.
var actionSchemas = map[coretypes.ActionType]string{
	coretypes.ActionNavigate: `{
		"type": "object",
		"required": ["url"],
		"properties": {
			"url": {"type": "string", "minLength": 1, "maxLength": 2048},
			"timeoutMs": {"type": "integer", "minimum": 0, "maximum": 300000},
			"waitUntil": {"enum": ["load", "domcontentloaded", "networkidle"]}
		}
	}`,
	coretypes.ActionClick: `{
		"type": "object",
		"required": ["selector"],
		"properties": {"selector": {"type": "string", "minLength": 1, "maxLength": 500}}
	}`,
	coretypes.ActionTypeText: `{
		"type": "object",
		"required": ["selector", "text"],
		"properties": {
			"selector": {"type": "string", "minLength": 1, "maxLength": 500},
			"text": {"type": "string", "maxLength": 100000}
		}
	}`,
	coretypes.ActionSelect: `{
		"type": "object",
		"required": ["selector", "values"],
		"properties": {
			"selector": {"type": "string", "minLength": 1, "maxLength": 500},
			"values": {"type": "array", "items": {"type": "string"}, "minItems": 1}
		}
	}`,
	coretypes.ActionKeyboard: `{
		"type": "object",
		"required": ["key"],
		"properties": {"key": {"type": "string", "minLength": 1, "maxLength": 32}}
	}`,
	coretypes.ActionMouse: `{
		"type": "object",
		"required": ["x", "y"],
		"properties": {"x": {"type": "number"}, "y": {"type": "number"}}
	}`,
	coretypes.ActionScreenshot: `{
		"type": "object",
		"properties": {"fullPage": {"type": "boolean"}}
	}`,
	coretypes.ActionPDF: `{
		"type": "object",
		"properties": {}
	}`,
	coretypes.ActionWait: `{
		"type": "object",
		"required": ["strategy"],
		"properties": {
			"strategy": {"enum": ["selector", "navigation", "network-idle", "timeout", "function", "load-state"]},
			"selector": {"type": "string", "maxLength": 500},
			"function": {"type": "string", "maxLength": 50000},
			"timeoutMs": {"type": "integer", "minimum": 0, "maximum": 300000}
		}
	}`,
	coretypes.ActionScroll: `{
		"type": "object",
		"required": ["dx", "dy"],
		"properties": {"dx": {"type": "number"}, "dy": {"type": "number"}}
	}`,
	coretypes.ActionEvaluate: `{
		"type": "object",
		"required": ["script"],
		"properties": {"script": {"type": "string", "minLength": 1, "maxLength": 50000}}
	}`,
	coretypes.ActionUpload: `{
		"type": "object",
		"required": ["selector", "filePaths"],
		"properties": {
			"selector": {"type": "string", "minLength": 1, "maxLength": 500},
			"filePaths": {"type": "array", "items": {"type": "string"}, "minItems": 1, "maxItems": 20}
		}
	}`,
	coretypes.ActionCookie: `{
		"type": "object",
		"required": ["operation"],
		"properties": {
			"operation": {"enum": ["get", "set", "clear", "delete"]},
			"name": {"type": "string", "maxLength": 256},
			"value": {"type": "string", "maxLength": 4096},
			"domain": {"type": "string", "maxLength": 256}
		}
	}`,
	coretypes.ActionGetAttribute: `{
		"type": "object",
		"required": ["selector", "attribute"],
		"properties": {
			"selector": {"type": "string", "minLength": 1, "maxLength": 500},
			"attribute": {"type": "string", "minLength": 1, "maxLength": 128}
		}
	}`,
	coretypes.ActionContent: `{
		"type": "object",
		"properties": {}
	}`,
}

// Registry holds the compiled schemas for every known action type.
// Schemas may be swapped at runtime by LoadOverrides/WatchReload, so
// every read goes through mu.
type Registry struct {
	mu      sync.RWMutex
	schemas map[coretypes.ActionType]*jsonschema.Schema
}

// NewRegistry compiles the built-in action schemas once at boot.
func NewRegistry() (*Registry, error) {
	r := &Registry{schemas: make(map[coretypes.ActionType]*jsonschema.Schema, len(actionSchemas))}
	for actionType, doc := range actionSchemas {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := schemaBaseURL + string(actionType) + ".schema.json"
		if err := c.AddResource(url, strings.NewReader(doc)); err != nil {
			return nil, fmt.Errorf("validators: load schema for %s: %w", actionType, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("validators: compile schema for %s: %w", actionType, err)
		}
		r.schemas[actionType] = compiled
	}
	return r, nil
}

// ValidateSchema checks an invocation's Parameters against its action
// type's schema. Returns coretypes.ErrUnknownAction for an
// unregistered action type.
func (r *Registry) ValidateSchema(actionType coretypes.ActionType, params map[string]interface{}) error {
	r.mu.RLock()
	schema, ok := r.schemas[actionType]
	r.mu.RUnlock()
	if !ok {
		return coretypes.ErrUnknownAction
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	if err := schema.Validate(params); err != nil {
		return coretypes.NewValidationError(string(actionType), err.Error())
	}
	return nil
}
