package entity

import (
	"bytes"
	"encoding/json"
)

// UsageRecord 单次 LLM 调用的 token 用量
// 计数为 nil 表示提供商未返回或返回了非数字。
type UsageRecord struct {
	InputTokens  *int64 `json:"input_tokens,omitempty"`
	OutputTokens *int64 `json:"output_tokens,omitempty"`
}

// NewUsage 用确定的计数构造 UsageRecord
func NewUsage(input, output int64) UsageRecord {
	return UsageRecord{InputTokens: &input, OutputTokens: &output}
}

// Complete 两个计数是否都存在
func (u UsageRecord) Complete() bool {
	return u.InputTokens != nil && u.OutputTokens != nil
}

// ParseUsage 从提供商原始 usage JSON 中提取计数，非整数的字段视为缺失
func ParseUsage(raw json.RawMessage) UsageRecord {
	var fields map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil {
		return UsageRecord{}
	}
	return UsageRecord{
		InputTokens:  parseCount(fields["input_tokens"]),
		OutputTokens: parseCount(fields["output_tokens"]),
	}
}

// parseCount 只接受 JSON 数字，带引号的数字字符串同样视为缺失
func parseCount(raw json.RawMessage) *int64 {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil
	}
	n, ok := value.(json.Number)
	if !ok {
		return nil
	}
	v, err := n.Int64()
	if err != nil || v < 0 {
		return nil
	}
	return &v
}
