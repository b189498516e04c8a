// Package grpcapi is the control plane's gRPC front-end. It carries
// requests and responses as google.protobuf.Struct rather than a
// generated service stub, so this package registers its own
// grpc.ServiceDesc by hand instead of depending on protoc output.
package grpcapi

import (
	"google.golang.org/protobuf/types/known/structpb"
)

func structOf(v map[string]any) (*structpb.Struct, error) {
	return structpb.NewStruct(v)
}

func getString(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	if v, ok := s.Fields[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func getStringSlice(s *structpb.Struct, key string) []string {
	if s == nil {
		return nil
	}
	v, ok := s.Fields[key]
	if !ok {
		return nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.Values))
	for _, item := range list.Values {
		out = append(out, item.GetStringValue())
	}
	return out
}

func getSubMap(s *structpb.Struct, key string) map[string]any {
	if s == nil {
		return nil
	}
	v, ok := s.Fields[key]
	if !ok {
		return nil
	}
	if sub := v.GetStructValue(); sub != nil {
		return sub.AsMap()
	}
	return nil
}
