// Package protobuf adapts google.golang.org/protobuf to the registry's
// dialect Provider interface: fingerprinting, field extraction, and
// backward/forward/full compatibility checking over the first message
// type declared in a FileDescriptorProto.
package protobuf

import (
	"crypto/sha256"
	"fmt"

	"schemaregistry/internal/schema/types"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Provider implements types.Provider for Protobuf.
type Provider struct{}

// New creates a Protobuf dialect provider.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Type() types.SchemaType { return types.Protobuf }

// Fingerprint parses text as a FileDescriptorProto and hashes its
// canonical wire encoding. proto.Marshal output for a given message
// value is deterministic field-by-field but not guaranteed stable
// across distinct protobuf-go releases; this is adequate for detecting
// a verbatim-identical resubmission within one running registry, which
// is all schema-text deduplication needs.
func (p *Provider) Fingerprint(text string) ([]byte, error) {
	var fileDescProto descriptorpb.FileDescriptorProto
	if err := protojson.Unmarshal([]byte(text), &fileDescProto); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	if _, err := protodesc.NewFile(&fileDescProto, protoregistry.GlobalFiles); err != nil {
		return nil, fmt.Errorf("create file descriptor: %w", err)
	}

	wire, err := proto.Marshal(&fileDescProto)
	if err != nil {
		return nil, fmt.Errorf("marshal descriptor: %w", err)
	}
	sum := sha256.Sum256(wire)
	return sum[:], nil
}

// Fields lists the fields of the first message type declared in text.
func (p *Provider) Fields(text string) ([]types.FieldDescriptor, error) {
	fileDesc, err := p.parseSchema(text)
	if err != nil {
		return nil, err
	}
	if fileDesc.Messages().Len() == 0 {
		return nil, nil
	}
	message := fileDesc.Messages().Get(0)

	out := make([]types.FieldDescriptor, 0, message.Fields().Len())
	for i := 0; i < message.Fields().Len(); i++ {
		field := message.Fields().Get(i)
		out = append(out, types.FieldDescriptor{
			Name:      string(field.Name()),
			Namespace: string(fileDesc.Package()),
			Type:      field.Kind().String(),
		})
	}
	return out, nil
}

// IsCompatible checks whether candidate satisfies policy against every
// schema in existing.
func (p *Provider) IsCompatible(candidate string, existing []string, policy types.CompatibilityLevel) (bool, error) {
	newFileDesc, err := p.parseSchema(candidate)
	if err != nil {
		return false, fmt.Errorf("parse candidate schema: %w", err)
	}
	newMessageType, err := firstMessage(newFileDesc)
	if err != nil {
		return false, err
	}

	for _, oldText := range existing {
		oldFileDesc, err := p.parseSchema(oldText)
		if err != nil {
			return false, fmt.Errorf("parse existing schema: %w", err)
		}
		oldMessageType, err := firstMessage(oldFileDesc)
		if err != nil {
			return false, err
		}

		ok, err := p.checkOne(oldMessageType, newMessageType, policy)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func firstMessage(fileDesc protoreflect.FileDescriptor) (protoreflect.MessageDescriptor, error) {
	if fileDesc.Messages().Len() == 0 {
		return nil, fmt.Errorf("no message type found in schema")
	}
	return fileDesc.Messages().Get(0), nil
}

func (p *Provider) checkOne(oldMessage, newMessage protoreflect.MessageDescriptor, level types.CompatibilityLevel) (bool, error) {
	switch level {
	case types.Backward, types.BackwardTransitive:
		return p.isBackwardCompatible(oldMessage, newMessage)
	case types.Forward, types.ForwardTransitive:
		return p.isForwardCompatible(oldMessage, newMessage)
	case types.Full, types.FullTransitive:
		backward, err := p.isBackwardCompatible(oldMessage, newMessage)
		if err != nil || !backward {
			return false, err
		}
		return p.isForwardCompatible(oldMessage, newMessage)
	case types.None:
		return true, nil
	default:
		return false, fmt.Errorf("unsupported compatibility level: %s", level)
	}
}

// isBackwardCompatible checks that newMessage can read data written with
// oldMessage.
func (p *Provider) isBackwardCompatible(oldMessage, newMessage protoreflect.MessageDescriptor) (bool, error) {
	oldFields := p.getFields(oldMessage)
	newFields := p.getFields(newMessage)

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

// isForwardCompatible checks that oldMessage can read data written with
// newMessage.
func (p *Provider) isForwardCompatible(oldMessage, newMessage protoreflect.MessageDescriptor) (bool, error) {
	oldFields := p.getFields(oldMessage)
	newFields := p.getFields(newMessage)

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

func (p *Provider) parseSchema(schemaStr string) (protoreflect.FileDescriptor, error) {
	var fileDescProto descriptorpb.FileDescriptorProto
	if err := protojson.Unmarshal([]byte(schemaStr), &fileDescProto); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	fileDesc, err := protodesc.NewFile(&fileDescProto, protoregistry.GlobalFiles)
	if err != nil {
		return nil, fmt.Errorf("create file descriptor: %w", err)
	}

	return fileDesc, nil
}

type fieldInfo struct {
	required bool
	type_    string
}

func (p *Provider) getFields(message protoreflect.MessageDescriptor) map[string]fieldInfo {
	fields := make(map[string]fieldInfo)

	for i := 0; i < message.Fields().Len(); i++ {
		field := message.Fields().Get(i)
		fields[string(field.Name())] = fieldInfo{
			required: field.Cardinality() == protoreflect.Required,
			type_:    field.Kind().String(),
		}
	}

	return fields
}

func (p *Provider) isTypeCompatible(oldType, newType string) bool {
	switch oldType {
	case "double":
		return newType == "double"
	case "float":
		return newType == "float" || newType == "double"
	case "int32":
		return newType == "int32" || newType == "int64" || newType == "uint32" || newType == "uint64" || newType == "sint32" || newType == "sint64" || newType == "fixed32" || newType == "fixed64" || newType == "sfixed32" || newType == "sfixed64"
	case "int64":
		return newType == "int64" || newType == "uint64" || newType == "sint64" || newType == "fixed64" || newType == "sfixed64"
	case "uint32":
		return newType == "uint32" || newType == "uint64" || newType == "fixed32" || newType == "fixed64"
	case "uint64":
		return newType == "uint64" || newType == "fixed64"
	case "sint32":
		return newType == "sint32" || newType == "sint64" || newType == "int32" || newType == "int64"
	case "sint64":
		return newType == "sint64" || newType == "int64"
	case "fixed32":
		return newType == "fixed32" || newType == "fixed64" || newType == "uint32" || newType == "uint64"
	case "fixed64":
		return newType == "fixed64" || newType == "uint64"
	case "sfixed32":
		return newType == "sfixed32" || newType == "sfixed64" || newType == "int32" || newType == "int64"
	case "sfixed64":
		return newType == "sfixed64" || newType == "int64"
	case "bool":
		return newType == "bool"
	case "string":
		return newType == "string"
	case "bytes":
		return newType == "bytes"
	case "enum":
		return newType == "enum"
	case "message":
		return newType == "message"
	default:
		return false
	}
}
