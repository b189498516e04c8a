package mcpapi

// Tool describes one callable operation the way MCP's tools/list
// expects: a name, a human description, and a JSON-Schema-shaped
// input description an LLM client uses to construct arguments.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func catalog() []Tool {
	return []Tool{
		{
			Name:        "create_session",
			Description: "Create a session scoping future contexts and pages to one caller.",
			InputSchema: objectSchema(map[string]any{
				"userId":     stringProp(""),
				"username":   stringProp(""),
				"roles":      arrayProp("string"),
				"ttlSeconds": numberProp(),
			}, nil),
		},
		{
			Name:        "create_context",
			Description: "Create a browser context (an isolated set of pages) under a session.",
			InputSchema: objectSchema(map[string]any{
				"sessionId": stringProp(""),
				"name":      stringProp(""),
			}, []string{"sessionId"}),
		},
		{
			Name:        "create_page",
			Description: "Open a new page under a context, acquiring a pooled browser for it.",
			InputSchema: objectSchema(map[string]any{
				"contextId": stringProp(""),
			}, []string{"contextId"}),
		},
		{
			Name:        "navigate",
			Description: "Navigate a page to a URL.",
			InputSchema: objectSchema(map[string]any{
				"pageId": stringProp(""),
				"url":    stringProp(""),
			}, []string{"pageId", "url"}),
		},
		{
			Name:        "screenshot",
			Description: "Capture a screenshot of a page.",
			InputSchema: objectSchema(map[string]any{
				"pageId":   stringProp(""),
				"fullPage": map[string]any{"type": "boolean"},
			}, []string{"pageId"}),
		},
		{
			Name:        "evaluate",
			Description: "Evaluate a JavaScript expression in the page and return its result.",
			InputSchema: objectSchema(map[string]any{
				"pageId": stringProp(""),
				"script": stringProp(""),
			}, []string{"pageId", "script"}),
		},
		{
			Name:        "close_page",
			Description: "Close a page and release its browser back to the pool.",
			InputSchema: objectSchema(map[string]any{
				"pageId": stringProp(""),
			}, []string{"pageId"}),
		},
		{
			Name:        "get_health",
			Description: "Report control plane health: pool size, queue length, store backend.",
			InputSchema: objectSchema(map[string]any{}, nil),
		},
	}
}

func objectSchema(props map[string]any, required []string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(description string) map[string]any {
	p := map[string]any{"type": "string"}
	if description != "" {
		p["description"] = description
	}
	return p
}

func numberProp() map[string]any {
	return map[string]any{"type": "number"}
}

func arrayProp(itemType string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": itemType}}
}

// resourceCatalog lists the one discovery resource this server
// exposes: the tool catalog itself, for clients that prefer reading
// resources/read over tools/list.
func resourceCatalog() []map[string]any {
	return []map[string]any{
		{"uri": "api://catalog", "name": "API catalog", "description": "The list of callable tools and their schemas.", "mimeType": "application/json"},
	}
}
