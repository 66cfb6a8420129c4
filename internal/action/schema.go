package action

import (
	"fmt"
	"math"
	"strings"
)

// FieldType 枚举模式语法支持的字段类型。
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
	TypeEnum    FieldType = "enum"
)

// Field 描述单个字段的约束。Enum 仅在 TypeEnum 下生效，
// Items 仅在 TypeArray 下生效，Fields 仅在 TypeObject 下生效。
type Field struct {
	Type        FieldType        `json:"type"`
	Required    bool             `json:"required,omitempty"`
	Description string           `json:"description,omitempty"`
	Enum        []string         `json:"enum,omitempty"`
	Items       *Field           `json:"items,omitempty"`
	Fields      map[string]Field `json:"fields,omitempty"`
}

// Schema 是对松散结构载荷的结构化校验规则。
// 校验是纯函数式的：不产生副作用，输入不会被原地修改。
type Schema struct {
	Fields       map[string]Field `json:"fields"`
	AllowUnknown bool             `json:"allow_unknown,omitempty"`
}

// Violation 描述一条被违反的约束，Field 用点号路径定位。
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError 聚合一次校验的全部违规项。
type ValidationError struct {
	Violations []Violation
}

// Error 实现 error 接口。
func (e *ValidationError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return "schema validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Reason))
	}
	return "schema validation failed: " + strings.Join(parts, "; ")
}

// Validate 校验载荷并返回归一化副本：整数字段统一为 int64，
// 数值字段统一为 float64。违规时返回 *ValidationError。
func (s Schema) Validate(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	normalized := make(map[string]any, len(payload))
	var violations []Violation

	for name, field := range s.Fields {
		value, present := payload[name]
		if !present {
			if field.Required {
				violations = append(violations, Violation{Field: name, Reason: "required field missing"})
			}
			continue
		}
		checked, vs := checkField(name, field, value)
		if len(vs) > 0 {
			violations = append(violations, vs...)
			continue
		}
		normalized[name] = checked
	}

	if !s.AllowUnknown {
		for name := range payload {
			if _, ok := s.Fields[name]; !ok {
				violations = append(violations, Violation{Field: name, Reason: "unknown field"})
			}
		}
	} else {
		for name, value := range payload {
			if _, ok := s.Fields[name]; !ok {
				normalized[name] = value
			}
		}
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return normalized, nil
}

func checkField(path string, field Field, value any) (any, []Violation) {
	switch field.Type {
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return nil, []Violation{{Field: path, Reason: fmt.Sprintf("expected string, got %T", value)}}
		}
		return str, nil

	case TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, []Violation{{Field: path, Reason: fmt.Sprintf("expected boolean, got %T", value)}}
		}
		return b, nil

	case TypeNumber:
		num, ok := toFloat(value)
		if !ok {
			return nil, []Violation{{Field: path, Reason: fmt.Sprintf("expected number, got %T", value)}}
		}
		return num, nil

	case TypeInteger:
		num, ok := toFloat(value)
		if !ok || num != math.Trunc(num) {
			return nil, []Violation{{Field: path, Reason: fmt.Sprintf("expected integer, got %v", value)}}
		}
		return int64(num), nil

	case TypeEnum:
		str, ok := value.(string)
		if !ok {
			return nil, []Violation{{Field: path, Reason: fmt.Sprintf("expected enum string, got %T", value)}}
		}
		for _, allowed := range field.Enum {
			if str == allowed {
				return str, nil
			}
		}
		return nil, []Violation{{Field: path, Reason: fmt.Sprintf("value %q not in enum %v", str, field.Enum)}}

	case TypeArray:
		items, ok := value.([]any)
		if !ok {
			return nil, []Violation{{Field: path, Reason: fmt.Sprintf("expected array, got %T", value)}}
		}
		if field.Items == nil {
			return append([]any(nil), items...), nil
		}
		checked := make([]any, 0, len(items))
		var violations []Violation
		for i, item := range items {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			v, vs := checkField(itemPath, *field.Items, item)
			if len(vs) > 0 {
				violations = append(violations, vs...)
				continue
			}
			checked = append(checked, v)
		}
		if len(violations) > 0 {
			return nil, violations
		}
		return checked, nil

	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, []Violation{{Field: path, Reason: fmt.Sprintf("expected object, got %T", value)}}
		}
		nested := Schema{Fields: field.Fields, AllowUnknown: field.Fields == nil}
		normalized, err := nested.Validate(obj)
		if err != nil {
			inner, ok := err.(*ValidationError)
			if !ok {
				return nil, []Violation{{Field: path, Reason: err.Error()}}
			}
			violations := make([]Violation, 0, len(inner.Violations))
			for _, v := range inner.Violations {
				violations = append(violations, Violation{Field: path + "." + v.Field, Reason: v.Reason})
			}
			return nil, violations
		}
		return normalized, nil

	default:
		return nil, []Violation{{Field: path, Reason: fmt.Sprintf("unsupported field type %q", field.Type)}}
	}
}

// toFloat 将 JSON 反序列化可能产生的各种数值表示统一为 float64。
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}
