package search

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// PathValue 拍平后的一条变量: 点号连接的路径与原始值
type PathValue struct {
	Path  string
	Value any
}

// Flatten 将嵌套变量对象拍平为 path/value 行。
// 规则:
//   - null 叶子原样保留，不转成字符串
//   - 数组整体 JSON 编码为字符串，从不递归进数组
//   - 非空嵌套对象递归，路径为 prefix.key
//   - 空对象不产生任何行
//   - 其余原始值原样保留
//
// 同一输入永远产出同一结果，键按字典序遍历。
func Flatten(obj map[string]any) []PathValue {
	return flattenInto(nil, "", obj)
}

func flattenInto(out []PathValue, prefix string, obj map[string]any) []PathValue {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}

		switch val := obj[k].(type) {
		case map[string]any:
			out = flattenInto(out, path, val)
		case nil:
			out = append(out, PathValue{Path: path, Value: nil})
		default:
			if isArray(val) {
				out = append(out, PathValue{Path: path, Value: encodeArray(val)})
				continue
			}
			out = append(out, PathValue{Path: path, Value: val})
		}
	}
	return out
}

func isArray(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return true
	}
	return false
}

func encodeArray(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// FormatForSearch 把任意变量值转成搜索列的字符串表示。
// 对所有输入都有定义: null 转空串，布尔转 true/false，
// 数字转十进制（不用科学计数法），字符串与已编码的数组原样通过。
func FormatForSearch(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// DecodeVariables 解码 variables 产物。
// 用 json.Number 承载数字，避免大整数经 float64 转换丢失精度后进入索引。
func DecodeVariables(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var vars map[string]any
	if err := dec.Decode(&vars); err != nil {
		return nil, fmt.Errorf("decode variables artifact: %w", err)
	}
	return vars, nil
}

// BuildEntries 把拍平结果转换为可落库的索引行
func BuildEntries(tenantID, projectID, promptID, logID int64, values []PathValue) []SearchIndexEntry {
	if len(values) == 0 {
		return nil
	}
	entries := make([]SearchIndexEntry, 0, len(values))
	for _, pv := range values {
		entries = append(entries, SearchIndexEntry{
			TenantID:      tenantID,
			ProjectID:     projectID,
			PromptID:      promptID,
			LogID:         logID,
			VariablePath:  pv.Path,
			VariableValue: FormatForSearch(pv.Value),
		})
	}
	return entries
}
