// Package s3mod is a host module exposing a single object-metadata
// lookup against S3, exercising the arity-1 HostFn path against a real
// external SDK the way sqlmod exercises it against pgx.
package s3mod

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/deepnoodle-ai/zimvm/object"
)

// New builds the "s3" package object: one field, "get", a 1-arity
// HostFn a zim program reaches via import("s3").s3.get("bucket/key"),
// returning the object's size in bytes, or Undef if the lookup fails.
func New(ctx context.Context, cfg aws.Config) *object.Object {
	client := s3.NewFromConfig(cfg)
	pkg := object.NewObject(1)
	pkg.SetField("get", object.FromHostFn(object.NewHostFn1("s3.get", getFn(ctx, client))))
	return pkg
}

func getFn(ctx context.Context, client *s3.Client) func(object.Value) object.Value {
	return func(ref object.Value) object.Value {
		if !ref.IsString() {
			return object.Undef
		}
		bucket, key, ok := strings.Cut(ref.AsString(), "/")
		if !ok {
			return object.Undef
		}
		out, err := client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return object.Undef
		}
		return object.Int32(int32(out.ContentLength))
	}
}
