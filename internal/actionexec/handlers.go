package actionexec

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/engine"
)

// handler is the per-action-type contract. It runs the action against
// page and returns the data payload for ActionResult.Data.
type handler func(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error)

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func floatParam(params map[string]any, key string) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func boolParam(params map[string]any, key string) bool {
	b, _ := params[key].(bool)
	return b
}

func stringSliceParam(params map[string]any, key string) []string {
	raw, _ := params[key].([]interface{})
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func handleNavigate(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	url := stringParam(params, "url")
	result, err := page.Navigate(ctx, url)
	if err != nil {
		return nil, err
	}
	if result.StatusCode < 200 || result.StatusCode >= 400 {
		return nil, fmt.Errorf("navigation to %s returned status %d", url, result.StatusCode)
	}
	return map[string]any{
		"url": result.URL, "status": result.StatusCode, "finalUrl": result.URL, "title": result.Title,
	}, nil
}

func handleClick(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	selector := stringParam(params, "selector")
	if err := page.WaitForSelector(ctx, selector, 10*time.Second); err != nil {
		return nil, err
	}
	if err := page.Click(ctx, selector); err != nil {
		return nil, err
	}
	return map[string]any{"selector": selector}, nil
}

func handleType(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	selector := stringParam(params, "selector")
	text := stringParam(params, "text")
	if err := page.WaitForSelector(ctx, selector, 10*time.Second); err != nil {
		return nil, err
	}
	if err := page.Type(ctx, selector, text); err != nil {
		return nil, err
	}
	return map[string]any{"selector": selector, "length": len(text)}, nil
}

func handleSelect(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	selector := stringParam(params, "selector")
	values := stringSliceParam(params, "values")
	if err := page.WaitForSelector(ctx, selector, 10*time.Second); err != nil {
		return nil, err
	}
	if err := page.Select(ctx, selector, values); err != nil {
		return nil, err
	}
	return map[string]any{"selector": selector, "values": values}, nil
}

func handleKeyboard(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	key := stringParam(params, "key")
	if err := page.PressKey(ctx, key); err != nil {
		return nil, err
	}
	return map[string]any{"key": key}, nil
}

func handleMouse(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	x, y := floatParam(params, "x"), floatParam(params, "y")
	if err := page.MoveMouse(ctx, x, y); err != nil {
		return nil, err
	}
	return map[string]any{"x": x, "y": y}, nil
}

func handleScreenshot(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	data, err := page.Screenshot(ctx, boolParam(params, "fullPage"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"image": base64.StdEncoding.EncodeToString(data), "encoding": "base64"}, nil
}

func handlePDF(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	data, err := page.PDF(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"pdf": base64.StdEncoding.EncodeToString(data), "encoding": "base64"}, nil
}

func handleWait(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	strategy := stringParam(params, "strategy")
	switch strategy {
	case "selector":
		selector := stringParam(params, "selector")
		timeout := durationParam(params, "timeout", 30*time.Second)
		if err := page.WaitForSelector(ctx, selector, timeout); err != nil {
			return nil, err
		}
	case "timeout":
		timeout := durationParam(params, "timeout", 1*time.Second)
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case "function":
		script := stringParam(params, "function")
		if _, err := page.Evaluate(ctx, script); err != nil {
			return nil, err
		}
	case "navigation", "network-idle", "load-state":
		// the engine's own Navigate call already waits for load; these
		// strategies are satisfied by the time control returns here.
	default:
		return nil, fmt.Errorf("unsupported wait strategy %q", strategy)
	}
	return map[string]any{"strategy": strategy}, nil
}

func durationParam(params map[string]any, key string, def time.Duration) time.Duration {
	switch v := params[key].(type) {
	case float64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	}
	return def
}

func handleScroll(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	dx, dy := floatParam(params, "dx"), floatParam(params, "dy")
	if err := page.Scroll(ctx, dx, dy); err != nil {
		return nil, err
	}
	return map[string]any{"dx": dx, "dy": dy}, nil
}

func handleEvaluate(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	script := stringParam(params, "script")
	result, err := page.Evaluate(ctx, script)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result}, nil
}

func handleUpload(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	selector := stringParam(params, "selector")
	paths := stringSliceParam(params, "filePaths")
	if err := page.Upload(ctx, selector, paths); err != nil {
		return nil, err
	}
	return map[string]any{"selector": selector, "files": len(paths)}, nil
}

func handleCookie(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	op := stringParam(params, "operation")
	switch op {
	case "set":
		cookies := []engine.Cookie{{
			Name:   stringParam(params, "name"),
			Value:  stringParam(params, "value"),
			Domain: stringParam(params, "domain"),
			Path:   stringParam(params, "path"),
		}}
		if err := page.SetCookies(ctx, cookies); err != nil {
			return nil, err
		}
		return map[string]any{"operation": op}, nil
	case "get":
		cookies, err := page.GetCookies(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(cookies))
		for _, c := range cookies {
			out = append(out, map[string]any{"name": c.Name, "value": c.Value, "domain": c.Domain})
		}
		return map[string]any{"cookies": out}, nil
	case "clear":
		if err := page.SetCookies(ctx, nil); err != nil {
			return nil, err
		}
		return map[string]any{"operation": op}, nil
	case "delete":
		name := stringParam(params, "name")
		if name == "" {
			return nil, fmt.Errorf("cookie delete requires a name")
		}
		if err := page.DeleteCookie(ctx, name, stringParam(params, "domain")); err != nil {
			return nil, err
		}
		return map[string]any{"operation": op, "name": name}, nil
	default:
		return nil, fmt.Errorf("unsupported cookie operation %q", op)
	}
}

func handleGetAttribute(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	selector := stringParam(params, "selector")
	attribute := stringParam(params, "attribute")
	value, err := page.GetAttribute(ctx, selector, attribute)
	if err != nil {
		return nil, err
	}
	return map[string]any{"selector": selector, "attribute": attribute, "value": value}, nil
}

func handleContent(ctx context.Context, page engine.Page, params map[string]any) (map[string]any, error) {
	content, err := page.Content(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": content}, nil
}

// registry maps every known coretypes.ActionType to its handler.
var registry = map[coretypes.ActionType]handler{
	coretypes.ActionNavigate:     handleNavigate,
	coretypes.ActionClick:        handleClick,
	coretypes.ActionTypeText:     handleType,
	coretypes.ActionSelect:       handleSelect,
	coretypes.ActionKeyboard:     handleKeyboard,
	coretypes.ActionMouse:        handleMouse,
	coretypes.ActionScreenshot:   handleScreenshot,
	coretypes.ActionPDF:          handlePDF,
	coretypes.ActionWait:         handleWait,
	coretypes.ActionScroll:       handleScroll,
	coretypes.ActionEvaluate:     handleEvaluate,
	coretypes.ActionUpload:       handleUpload,
	coretypes.ActionCookie:       handleCookie,
	coretypes.ActionGetAttribute: handleGetAttribute,
	coretypes.ActionContent:      handleContent,
}
