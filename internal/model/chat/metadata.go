package chat

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// ErrInvalidMetadata 元数据不是 JSON 对象
var ErrInvalidMetadata = errors.New("metadata must be a JSON object")

// Metadata 透传的 JSON 对象（additional_kwargs / tool call args）
// 不解析内部结构，保留原始字段顺序；落库时存为 JSON 文本，空值存为 null。
type Metadata []byte

// IsNull 是否为空
func (m Metadata) IsNull() bool {
	return len(m) == 0
}

// MarshalJSON 实现 json.Marshaler
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m.IsNull() {
		return []byte("null"), nil
	}
	return m, nil
}

// UnmarshalJSON 实现 json.Unmarshaler，只接受对象或 null
func (m *Metadata) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return ErrInvalidMetadata
	}

	result := gjson.ParseBytes(data)
	if result.Type == gjson.Null {
		*m = nil
		return nil
	}
	if !result.IsObject() {
		return ErrInvalidMetadata
	}

	*m = append((*m)[:0], data...)
	return nil
}

// MarshalBSONValue 实现 bson.ValueMarshaler
// 以 JSON 文本存为 BSON 字符串，不做 Extended JSON 解释，读回与写入逐字节一致
func (m Metadata) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if m.IsNull() {
		return bsontype.Null, nil, nil
	}
	return bsontype.String, bsoncore.AppendString(nil, string(m)), nil
}

// UnmarshalBSONValue 实现 bson.ValueUnmarshaler
func (m *Metadata) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*m = nil
		return nil
	case bsontype.String:
		str, _, ok := bsoncore.ReadString(data)
		if !ok {
			return fmt.Errorf("%w: malformed BSON string", ErrInvalidMetadata)
		}
		*m = Metadata(str)
		return nil
	default:
		return fmt.Errorf("cannot decode %s into chat.Metadata", t)
	}
}
