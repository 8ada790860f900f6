// Package avro adapts github.com/hamba/avro/v2 to the registry's dialect
// Provider interface: fingerprinting, field extraction, and
// backward/forward/full compatibility checking over record schemas.
package avro

import (
	"fmt"

	"schemaregistry/internal/schema/types"

	"github.com/hamba/avro/v2"
)

// Provider implements types.Provider for Avro.
type Provider struct{}

// fieldInfo captures the parts of an Avro field relevant to compatibility.
type fieldInfo struct {
	required bool
	type_    string
}

// New creates an Avro dialect provider.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Type() types.SchemaType { return types.Avro }

// Fingerprint parses text and returns its canonical Avro fingerprint,
// the content-addressed identity used for schema-text deduplication.
func (p *Provider) Fingerprint(text string) ([]byte, error) {
	schema, err := avro.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	fp := schema.Fingerprint()
	return fp[:], nil
}

// Fields lists the top-level fields of a record schema. Non-record
// schemas (primitives, arrays, ...) have none.
func (p *Provider) Fields(text string) ([]types.FieldDescriptor, error) {
	schema, err := avro.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	record, ok := schema.(*avro.RecordSchema)
	if !ok {
		return nil, nil
	}
	var out []types.FieldDescriptor
	for _, field := range record.Fields() {
		out = append(out, types.FieldDescriptor{
			Name:      field.Name(),
			Namespace: record.Namespace(),
			Type:      string(fieldType(field).Type()),
		})
	}
	return out, nil
}

// IsCompatible checks whether candidate satisfies policy against every
// schema in existing.
func (p *Provider) IsCompatible(candidate string, existing []string, policy types.CompatibilityLevel) (bool, error) {
	newSchema, err := avro.Parse(candidate)
	if err != nil {
		return false, fmt.Errorf("parse candidate schema: %w", err)
	}

	for _, oldText := range existing {
		oldSchema, err := avro.Parse(oldText)
		if err != nil {
			return false, fmt.Errorf("parse existing schema: %w", err)
		}

		ok, err := p.checkOne(oldSchema, newSchema, policy)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (p *Provider) checkOne(oldSchema, newSchema avro.Schema, level types.CompatibilityLevel) (bool, error) {
	switch level {
	case types.Backward, types.BackwardTransitive:
		return p.isBackwardCompatible(oldSchema, newSchema)
	case types.Forward, types.ForwardTransitive:
		return p.isForwardCompatible(oldSchema, newSchema)
	case types.Full, types.FullTransitive:
		backward, err := p.isBackwardCompatible(oldSchema, newSchema)
		if err != nil || !backward {
			return false, err
		}
		return p.isForwardCompatible(oldSchema, newSchema)
	case types.None:
		return true, nil
	default:
		return false, fmt.Errorf("unsupported compatibility level: %s", level)
	}
}

// isBackwardCompatible checks that newSchema can read data written with
// oldSchema.
func (p *Provider) isBackwardCompatible(oldSchema, newSchema avro.Schema) (bool, error) {
	oldFields := p.getFields(oldSchema)
	newFields := p.getFields(newSchema)

	for name, oldField := range oldFields {
		newField, exists := newFields[name]
		if !exists {
			if oldField.required {
				return false, nil
			}
			continue
		}
		if !p.isTypeCompatible(oldField.type_, newField.type_) {
			return false, nil
		}
		if !oldField.required && newField.required {
			return false, nil
		}
	}
	return true, nil
}

// isForwardCompatible checks that oldSchema can read data written with
// newSchema.
func (p *Provider) isForwardCompatible(oldSchema, newSchema avro.Schema) (bool, error) {
	oldFields := p.getFields(oldSchema)
	newFields := p.getFields(newSchema)

	for name, newField := range newFields {
		oldField, exists := oldFields[name]
		if !exists {
			if newField.required {
				return false, nil
			}
			continue
		}
		if !p.isTypeCompatible(newField.type_, oldField.type_) {
			return false, nil
		}
		if oldField.required && !newField.required {
			return false, nil
		}
	}
	return true, nil
}

func (p *Provider) getFields(schema avro.Schema) map[string]fieldInfo {
	fields := make(map[string]fieldInfo)

	recordSchema, ok := schema.(*avro.RecordSchema)
	if !ok {
		return fields
	}

	for _, field := range recordSchema.Fields() {
		typeValue := fieldType(field)
		required := true
		var typeStr string

		switch t := typeValue.(type) {
		case *avro.UnionSchema:
			for _, v := range t.Types() {
				if v.Type() == avro.Null {
					required = false
				} else {
					typeStr = string(v.Type())
				}
			}
		default:
			typeStr = string(typeValue.Type())
		}

		fields[field.Name()] = fieldInfo{required: required, type_: typeStr}
	}

	return fields
}

func fieldType(field *avro.Field) avro.Schema {
	return field.Type()
}

func (p *Provider) isTypeCompatible(oldType, newType string) bool {
	oldSchema, err := avro.Parse(oldType)
	if err != nil {
		return false
	}
	newSchema, err := avro.Parse(newType)
	if err != nil {
		return false
	}

	oldTypeName := oldSchema.Type()
	newTypeName := newSchema.Type()

	switch oldTypeName {
	case "null":
		return newTypeName == "null"
	case "boolean":
		return newTypeName == "boolean"
	case "int":
		return newTypeName == "int" || newTypeName == "long" || newTypeName == "float" || newTypeName == "double"
	case "long":
		return newTypeName == "long" || newTypeName == "float" || newTypeName == "double"
	case "float":
		return newTypeName == "float" || newTypeName == "double"
	case "double":
		return newTypeName == "double"
	case "bytes":
		return newTypeName == "bytes" || newTypeName == "string"
	case "string":
		return newTypeName == "string"
	case "array":
		if newTypeName != "array" {
			return false
		}
		oldItems := oldSchema.(*avro.ArraySchema).Items()
		newItems := newSchema.(*avro.ArraySchema).Items()
		return p.isTypeCompatible(oldItems.String(), newItems.String())
	case "map":
		if newTypeName != "map" {
			return false
		}
		oldValues := oldSchema.(*avro.MapSchema).Values()
		newValues := newSchema.(*avro.MapSchema).Values()
		return p.isTypeCompatible(oldValues.String(), newValues.String())
	case "record":
		if newTypeName != "record" {
			return false
		}
		oldFields := oldSchema.(*avro.RecordSchema).Fields()
		newFields := newSchema.(*avro.RecordSchema).Fields()

		newFieldMap := make(map[string]*avro.Field)
		for _, field := range newFields {
			newFieldMap[field.Name()] = field
		}

		for _, oldField := range oldFields {
			newField, exists := newFieldMap[oldField.Name()]
			if !exists {
				return false
			}
			if !p.isTypeCompatible(oldField.Type().String(), newField.Type().String()) {
				return false
			}
		}
		return true
	case "enum":
		if newTypeName != "enum" {
			return false
		}
		oldSymbols := oldSchema.(*avro.EnumSchema).Symbols()
		newSymbols := newSchema.(*avro.EnumSchema).Symbols()

		newSymbolMap := make(map[string]bool)
		for _, symbol := range newSymbols {
			newSymbolMap[symbol] = true
		}
		for _, symbol := range oldSymbols {
			if !newSymbolMap[symbol] {
				return false
			}
		}
		return true
	case "union":
		if newTypeName != "union" {
			return false
		}
		oldTypes := oldSchema.(*avro.UnionSchema).Types()
		newTypes := newSchema.(*avro.UnionSchema).Types()

		newTypeMap := make(map[string]bool)
		for _, t := range newTypes {
			newTypeMap[t.String()] = true
		}
		for _, t := range oldTypes {
			if !newTypeMap[t.String()] {
				return false
			}
		}
		return true
	default:
		return false
	}
}
