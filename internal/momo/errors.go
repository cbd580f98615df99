package momo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// errorStrategy pulls a human-readable message out of a decoded error body.
// It reports false when the body does not have the shape it looks for.
type errorStrategy func(v any) (string, bool)

// errorStrategies are tried in order; the first match wins. The gateway
// and the API-management layer in front of it use all of these shapes.
var errorStrategies = []errorStrategy{
	stringBody,
	messageField,
	reasonField,
	errorField,
	codeField,
	errorArray,
}

// ExtractError normalizes a gateway error body into a single string. With
// an empty body it falls back to cause's message, then to "Unknown error".
func ExtractError(body []byte, cause error) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		if cause != nil {
			return cause.Error()
		}
		return "Unknown error"
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		// Plain text (or HTML from a proxy): the body is the message.
		return string(trimmed)
	}
	for _, s := range errorStrategies {
		if msg, ok := s(v); ok {
			return msg
		}
	}
	return string(trimmed)
}

func stringBody(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok && s != ""
}

func messageField(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	return nonEmptyString(obj["message"])
}

func reasonField(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	switch r := obj["reason"].(type) {
	case string:
		return r, r != ""
	case map[string]any:
		return describe(r)
	}
	return "", false
}

func errorField(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	raw, present := obj["error"]
	if !present || raw == nil {
		return "", false
	}
	switch e := raw.(type) {
	case string:
		if e != "" {
			return e, true
		}
	case map[string]any:
		if msg, ok := nonEmptyString(e["message"]); ok {
			return msg, true
		}
		if msg, ok := nonEmptyString(e["reason"]); ok {
			return msg, true
		}
	}
	return "Unknown error from MoMo API", true
}

func codeField(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	code, ok := scalar(obj["code"])
	if !ok {
		return "", false
	}
	return "MoMo API Error: " + code, true
}

func errorArray(v any) (string, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(arr))
	for _, item := range arr {
		switch it := item.(type) {
		case string:
			if it != "" {
				parts = append(parts, it)
			}
		case map[string]any:
			if msg, ok := describe(it); ok {
				parts = append(parts, msg)
			}
		default:
			if s, ok := scalar(it); ok {
				parts = append(parts, s)
			}
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, ", "), true
}

// describe renders an object that carries message and/or code.
func describe(obj map[string]any) (string, bool) {
	if msg, ok := nonEmptyString(obj["message"]); ok {
		return msg, true
	}
	if code, ok := scalar(obj["code"]); ok {
		return code, true
	}
	return "", false
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok && s != ""
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, x != ""
	case float64:
		return fmt.Sprintf("%v", x), true
	case bool:
		return fmt.Sprintf("%t", x), true
	}
	return "", false
}
