// Package json adapts github.com/santhosh-tekuri/jsonschema/v5 to the
// registry's dialect Provider interface: fingerprinting, top-level
// property extraction, and backward/forward/full compatibility
// checking.
package json

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"schemaregistry/internal/schema/types"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Provider implements types.Provider for JSON Schema.
type Provider struct{}

// New creates a JSON Schema dialect provider.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Type() types.SchemaType { return types.JSON }

// Fingerprint canonicalizes text by re-marshaling it with sorted object
// keys, then hashes the result. JSON Schema carries no native
// fingerprint primitive the way Avro does, so this is the registry's
// own canonicalization, not borrowed from the dialect library; key
// ordering and whitespace are the only normalization applied, so two
// texts differing only in formatting fingerprint identically while
// texts differing in, say, $ref target strings do not.
func (p *Provider) Fingerprint(text string) ([]byte, error) {
	if _, err := jsonschema.CompileString("schema.json", text); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	canonical, err := canonicalize(v)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(canonical)
	return sum[:], nil
}

func canonicalize(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := canonicalize(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := canonicalize(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return json.Marshal(t)
	}
}

// Fields lists the top-level properties declared by text.
func (p *Provider) Fields(text string) ([]types.FieldDescriptor, error) {
	props := getSchemaProperties(text)
	out := make([]types.FieldDescriptor, 0, len(props))
	for name, info := range props {
		out = append(out, types.FieldDescriptor{Name: name, Type: info.type_})
	}
	return out, nil
}

// IsCompatible checks whether candidate satisfies policy against every
// schema in existing.
func (p *Provider) IsCompatible(candidate string, existing []string, policy types.CompatibilityLevel) (bool, error) {
	if _, err := jsonschema.CompileString("candidate.json", candidate); err != nil {
		return false, fmt.Errorf("compile candidate schema: %w", err)
	}

	for _, oldText := range existing {
		if _, err := jsonschema.CompileString("existing.json", oldText); err != nil {
			return false, fmt.Errorf("compile existing schema: %w", err)
		}

		ok, err := p.checkOne(oldText, candidate, policy)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (p *Provider) checkOne(oldSchema, newSchema string, level types.CompatibilityLevel) (bool, error) {
	switch level {
	case types.Backward, types.BackwardTransitive:
		return p.checkBackwardCompatibility(oldSchema, newSchema)
	case types.Forward, types.ForwardTransitive:
		return p.checkForwardCompatibility(oldSchema, newSchema)
	case types.Full, types.FullTransitive:
		backward, err := p.checkBackwardCompatibility(oldSchema, newSchema)
		if err != nil || !backward {
			return false, err
		}
		return p.checkForwardCompatibility(oldSchema, newSchema)
	case types.None:
		return true, nil
	default:
		return true, nil
	}
}

func (p *Provider) checkBackwardCompatibility(oldSchemaStr, newSchemaStr string) (bool, error) {
	oldProps := getSchemaProperties(oldSchemaStr)
	newProps := getSchemaProperties(newSchemaStr)

	for prop, info := range oldProps {
		if info.required {
			if _, exists := newProps[prop]; !exists {
				return false, nil
			}
		}
	}

	for prop, oldInfo := range oldProps {
		if newInfo, exists := newProps[prop]; exists {
			if !isTypeCompatible(oldInfo.type_, newInfo.type_) {
				return false, nil
			}
		}
	}

	return true, nil
}

func (p *Provider) checkForwardCompatibility(oldSchemaStr, newSchemaStr string) (bool, error) {
	oldProps := getSchemaProperties(oldSchemaStr)
	newProps := getSchemaProperties(newSchemaStr)

	for prop, info := range newProps {
		if info.required {
			if _, exists := oldProps[prop]; !exists {
				return false, nil
			}
		}
	}

	for prop, newInfo := range newProps {
		if oldInfo, exists := oldProps[prop]; exists {
			if !isTypeCompatible(oldInfo.type_, newInfo.type_) {
				return false, nil
			}
		}
	}

	return true, nil
}

type propertyInfo struct {
	required bool
	type_    string
}

func getSchemaProperties(schemaStr string) map[string]propertyInfo {
	props := make(map[string]propertyInfo)

	var schemaMap map[string]interface{}
	if err := json.Unmarshal([]byte(schemaStr), &schemaMap); err != nil {
		return props
	}

	properties, ok := schemaMap["properties"].(map[string]interface{})
	if !ok {
		return props
	}

	required := make(map[string]bool)
	if requiredProps, ok := schemaMap["required"].([]interface{}); ok {
		for _, req := range requiredProps {
			if name, ok := req.(string); ok {
				required[name] = true
			}
		}
	}

	for name, prop := range properties {
		propMap, ok := prop.(map[string]interface{})
		if !ok {
			continue
		}
		type_ := "object"
		if t, ok := propMap["type"].(string); ok {
			type_ = t
		}
		props[name] = propertyInfo{required: required[name], type_: type_}
	}

	return props
}

func isTypeCompatible(oldType, newType string) bool {
	switch oldType {
	case "null":
		return newType == "null"
	case "boolean":
		return newType == "boolean"
	case "integer":
		return newType == "integer"
	case "number":
		return newType == "number"
	case "string":
		return newType == "string"
	case "array":
		return newType == "array"
	case "object":
		return newType == "object"
	default:
		return false
	}
}
