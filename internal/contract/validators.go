// Package contract validates the per-mode JSON shape an upstream LLM must
// return before the gateway will forward it to a caller.
package contract

import (
	"regexp"
	"strconv"
	"strings"
)

// snakeCasePattern matches the required shape for an "auto" mode's type field.
var snakeCasePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Validate checks obj against the contract for mode, returning ok=true when
// every required field is present and well-formed, or the list of missing
// (or pseudo-missing) field names otherwise.
func Validate(mode string, obj map[string]any, isObject bool) (ok bool, missing []string) {
	if !isObject {
		return false, []string{"json_object"}
	}

	switch mode {
	case "core", "deepseek":
		return validateCore(obj)
	case "auto":
		return validateAuto(obj)
	case "ecom":
		return validateEcom(obj)
	case "news":
		return validateNews(obj)
	case "social":
		return validateSocial(obj)
	default:
		return validateCore(obj)
	}
}

func validateCore(obj map[string]any) (bool, []string) {
	var missing []string
	if !isNonEmptyString(obj["schema_version"]) {
		missing = append(missing, "schema_version")
	}
	if !isObjectValue(obj["extracted"]) {
		missing = append(missing, "extracted")
	}
	if !isNumber(obj["confidence"]) {
		missing = append(missing, "confidence")
	}
	return len(missing) == 0, missing
}

func validateAuto(obj map[string]any) (bool, []string) {
	var missing []string
	if !isNonEmptyString(obj["schema_version"]) {
		missing = append(missing, "schema_version")
	}
	if typ, ok := obj["type"].(string); !ok || typ == "" {
		missing = append(missing, "type")
	} else if !snakeCasePattern.MatchString(typ) {
		missing = append(missing, "type_snake_case")
	}
	if !isObjectValue(obj["data"]) {
		missing = append(missing, "data")
	}
	if !isNumber(obj["confidence"]) {
		missing = append(missing, "confidence")
	}
	return len(missing) == 0, missing
}

func validateEcom(obj map[string]any) (bool, []string) {
	var missing []string
	if !isNonEmptyString(obj["title"]) {
		missing = append(missing, "title")
	}
	if !isPriceLike(obj["price"]) {
		missing = append(missing, "price")
	}
	if cur, ok := obj["currency"].(string); !ok || len(cur) < 3 {
		missing = append(missing, "currency")
	}
	if !isObjectValue(obj["spec"]) {
		missing = append(missing, "spec")
	}
	if !isArrayValue(obj["skus"]) {
		missing = append(missing, "skus")
	}
	if !isArrayValue(obj["bullet_points"]) {
		missing = append(missing, "bullet_points")
	}
	return len(missing) == 0, missing
}

func validateNews(obj map[string]any) (bool, []string) {
	var missing []string
	if !isNonEmptyString(obj["title"]) {
		missing = append(missing, "title")
	}
	if !keyExistsAsStringOrNull(obj, "author") {
		missing = append(missing, "author")
	}
	if !keyExistsAsStringOrNull(obj, "published_at") {
		missing = append(missing, "published_at")
	}
	if _, ok := obj["summary"].(string); !ok {
		missing = append(missing, "summary")
	}
	if !isArrayValue(obj["viewpoints"]) {
		missing = append(missing, "viewpoints")
	}
	if !isArrayValue(obj["entities"]) {
		missing = append(missing, "entities")
	}
	return len(missing) == 0, missing
}

func validateSocial(obj map[string]any) (bool, []string) {
	var missing []string
	if !isNonEmptyString(obj["sentiment"]) {
		missing = append(missing, "sentiment")
	}
	if _, ok := obj["core_demand"].(string); !ok {
		missing = append(missing, "core_demand")
	}
	if !isArrayValue(obj["brands"]) {
		missing = append(missing, "brands")
	}
	if _, exists := obj["purchase_intent"]; !exists {
		missing = append(missing, "purchase_intent")
	} else if _, ok := obj["purchase_intent"].(bool); !ok {
		missing = append(missing, "purchase_intent")
	}
	if !isNonEmptyString(obj["purchase_intent_reason"]) {
		missing = append(missing, "purchase_intent_reason")
	}
	return len(missing) == 0, missing
}

func isNonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && s != ""
}

func isObjectValue(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func isArrayValue(v any) bool {
	_, ok := v.([]any)
	return ok
}

func isNumber(v any) bool {
	_, ok := v.(float64)
	return ok
}

// keyExistsAsStringOrNull reports whether key is present in obj and its
// value is either a string or JSON null (decoded as nil).
func keyExistsAsStringOrNull(obj map[string]any, key string) bool {
	v, exists := obj[key]
	if !exists {
		return false
	}
	if v == nil {
		return true
	}
	_, ok := v.(string)
	return ok
}

// isPriceLike accepts an integer, a float, or a string parseable as a
// number after substituting a decimal comma for a dot.
func isPriceLike(v any) bool {
	switch t := v.(type) {
	case float64:
		return true
	case string:
		normalized := strings.ReplaceAll(t, ",", ".")
		_, err := strconv.ParseFloat(normalized, 64)
		return err == nil
	default:
		return false
	}
}
