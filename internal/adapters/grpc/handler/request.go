package handler

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// request は Struct 形式のリクエストから型付きで値を取り出します。
type request struct {
	fields map[string]*structpb.Value
}

func newRequest(in *structpb.Struct) request {
	return request{fields: in.GetFields()}
}

func invalidField(key, kind string) error {
	return status.Error(codes.InvalidArgument, fmt.Sprintf("%s must be a %s", key, kind))
}

// string は文字列フィールドを返します。未指定と null は空文字列です。
func (r request) string(key string) (string, error) {
	v, ok := r.fields[key]
	if !ok {
		return "", nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return kind.StringValue, nil
	case *structpb.Value_NullValue:
		return "", nil
	default:
		return "", invalidField(key, "string")
	}
}

// optionalString は指定の有無を区別して返します。null は「指定ありで値なし」です。
func (r request) optionalString(key string) (*string, bool, error) {
	v, ok := r.fields[key]
	if !ok {
		return nil, false, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		value := kind.StringValue
		return &value, true, nil
	case *structpb.Value_NullValue:
		return nil, true, nil
	default:
		return nil, false, invalidField(key, "string")
	}
}

func (r request) bool(key string) (bool, error) {
	value, err := r.optionalBool(key)
	if err != nil || value == nil {
		return false, err
	}
	return *value, nil
}

func (r request) optionalBool(key string) (*bool, error) {
	v, ok := r.fields[key]
	if !ok {
		return nil, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_BoolValue:
		value := kind.BoolValue
		return &value, nil
	case *structpb.Value_NullValue:
		return nil, nil
	default:
		return nil, invalidField(key, "bool")
	}
}
