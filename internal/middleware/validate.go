package middleware

import (
	"fmt"
	"regexp"

	"github.com/usdfinancial/backend/internal/model"
)

// FieldType はリクエストボディフィールドの期待型を表す。
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "boolean"
)

// FieldRule は1フィールドの検証ルールを表す。
type FieldRule struct {
	Required bool
	Type     FieldType
	Pattern  *regexp.Regexp // Typeがstringの場合のみ適用
}

// Schema はフィールド名から検証ルールへのマッピング。
type Schema map[string]FieldRule

// ValidateRequestBody はデコード済みJSONボディをスキーマに対して検証する。
// 最初の違反でValidationErrorを返すフェイルファスト方式で、違反の集約はしない。
func ValidateRequestBody(schema Schema, body map[string]any) error {
	for field, rule := range schema {
		value, present := body[field]

		if !present || value == nil {
			if rule.Required {
				return model.NewValidationError(
					fmt.Sprintf("Missing required field: %s", field),
					map[string]any{"field": field},
				)
			}
			continue
		}

		if rule.Type != "" {
			if err := checkFieldType(field, rule.Type, value); err != nil {
				return err
			}
		}

		if rule.Pattern != nil {
			s, ok := value.(string)
			if ok && !rule.Pattern.MatchString(s) {
				return model.NewValidationError(
					fmt.Sprintf("Field %s does not match the expected format", field),
					map[string]any{"field": field, "pattern": rule.Pattern.String()},
				)
			}
		}
	}
	return nil
}

// checkFieldType はJSONデコード後の値が期待するプリミティブ型かを検証する。
// encoding/jsonは数値をfloat64にデコードする。
func checkFieldType(field string, fieldType FieldType, value any) error {
	var ok bool
	switch fieldType {
	case FieldString:
		_, ok = value.(string)
	case FieldNumber:
		_, ok = value.(float64)
	case FieldBool:
		_, ok = value.(bool)
	default:
		ok = true
	}
	if !ok {
		return model.NewValidationError(
			fmt.Sprintf("Field %s must be of type %s", field, fieldType),
			map[string]any{"field": field, "expected": string(fieldType)},
		)
	}
	return nil
}
