// Package prompts holds the static mode → system-prompt templates used to
// instruct upstream models to return structured JSON.
package prompts

import "strings"

// LanguageAlignment is prepended to every system prompt unless already
// present, verbatim, so that it can double as an idempotence check on
// caller-supplied instructions.
const LanguageAlignment = "JSON keys must always be in English snake_case. Values must match the source language unless target_lang is specified. If target_lang=zh, translate all extracted values to Chinese."

const coreTemplate = `Extract structured information from the user-supplied content and respond with a single JSON object only — no markdown fences, no prose before or after.
Required fields:
- schema_version: non-empty string
- extracted: object holding the extracted fields
- confidence: number between 0 and 1
All keys must be snake_case.`

const autoTemplate = `Classify and extract structured information from the user-supplied content. Respond with a single JSON object only — no markdown fences.
Required fields:
- schema_version: non-empty string
- type: a short snake_case label for the detected content type, matching ^[a-z0-9_]+$
- data: object holding the extracted fields for that type
- confidence: number between 0 and 1
All keys must be snake_case.`

const ecomTemplate = `Extract e-commerce product information from the user-supplied content. Respond with a single JSON object only — no markdown fences.
Required fields:
- title: non-empty string
- price: number, or a numeric string
- currency: currency code string, at least 3 characters
- spec: object of specification key/value pairs
- skus: array of sku variants (may be empty)
- bullet_points: array of bullet point strings (may be empty)
All keys must be snake_case.`

const newsTemplate = `Extract article metadata from the user-supplied content. Respond with a single JSON object only — no markdown fences.
Required fields:
- title: non-empty string
- author: string, or null if unknown (the key must still be present)
- published_at: string, or null if unknown (the key must still be present)
- summary: non-empty string
- viewpoints: array of strings (may be empty)
- entities: array of named entities (may be empty)
All keys must be snake_case.`

const socialTemplate = `Analyze the user-supplied social content. Respond with a single JSON object only — no markdown fences.
Required fields:
- sentiment: non-empty string (e.g. positive, negative, neutral)
- core_demand: string describing the core demand expressed
- brands: array of brand names mentioned (may be empty)
- purchase_intent: boolean (the key must always be present)
- purchase_intent_reason: non-empty string explaining the purchase_intent value
All keys must be snake_case.`

var catalog = map[string]string{
	"core":   coreTemplate,
	"auto":   autoTemplate,
	"ecom":   ecomTemplate,
	"news":   newsTemplate,
	"social": socialTemplate,
}

// For returns the static template for mode, falling back to core for any
// mode without a dedicated template (e.g. "deepseek").
func For(mode string) string {
	if t, ok := catalog[mode]; ok {
		return WithLanguageAlignment(t)
	}
	return WithLanguageAlignment(coreTemplate)
}

// WithLanguageAlignment prepends the canonical language-alignment sentence
// to instruction, unless it is already present.
func WithLanguageAlignment(instruction string) string {
	if strings.Contains(instruction, LanguageAlignment) {
		return instruction
	}
	trimmed := strings.TrimSpace(instruction)
	if trimmed == "" {
		return LanguageAlignment
	}
	return LanguageAlignment + "\n\n" + trimmed
}

// Effective resolves the system prompt that should be sent upstream for a
// given mode dispatch, honoring the override rules of the orchestrator:
// mode-forced templates win for ecom/news/social/auto; deepseek uses the
// caller instruction when non-empty, else the core template.
func Effective(mode string, callerInstruction string) string {
	switch mode {
	case "ecom", "news", "social", "auto":
		return For(mode)
	case "deepseek":
		if strings.TrimSpace(callerInstruction) != "" {
			return WithLanguageAlignment(callerInstruction)
		}
		return For("core")
	default:
		if strings.TrimSpace(callerInstruction) != "" {
			return WithLanguageAlignment(callerInstruction)
		}
		return For("core")
	}
}
