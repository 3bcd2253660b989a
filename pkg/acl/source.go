package acl

import (
	"context"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/knowbot/pkg/interfaces"
	"google.golang.org/api/option"
)

const gcsScheme = "gs://"

// FileSource reads the policy from a local file.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read access control config", goerr.V("path", s.path))
	}
	return data, nil
}

func (s *FileSource) String() string {
	return s.path
}

// GCSSource reads the policy from a Cloud Storage object.
type GCSSource struct {
	client *storage.Client
	bucket string
	object string
}

// NewGCSSource creates a source for gs://bucket/object. opts are passed to
// the storage client, e.g. option.WithEndpoint for an emulator.
func NewGCSSource(ctx context.Context, uri string, opts ...option.ClientOption) (*GCSSource, error) {
	bucket, object, ok := parseGCSURI(uri)
	if !ok {
		return nil, goerr.Wrap(ErrConfig, "invalid Cloud Storage URI", goerr.V("uri", uri))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &GCSSource{
		client: client,
		bucket: bucket,
		object: object,
	}, nil
}

func (s *GCSSource) Load(ctx context.Context) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read from storage",
			goerr.V("bucket", s.bucket),
			goerr.V("object", s.object))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read object body",
			goerr.V("bucket", s.bucket),
			goerr.V("object", s.object))
	}
	return data, nil
}

// Close releases the storage client.
func (s *GCSSource) Close() error {
	return s.client.Close()
}

func (s *GCSSource) String() string {
	return gcsScheme + s.bucket + "/" + s.object
}

func parseGCSURI(uri string) (bucket, object string, ok bool) {
	rest, found := strings.CutPrefix(uri, gcsScheme)
	if !found {
		return "", "", false
	}
	bucket, object, found = strings.Cut(rest, "/")
	if !found || bucket == "" || object == "" {
		return "", "", false
	}
	return bucket, object, true
}

// NewSource picks a source by location: gs:// URIs go to Cloud Storage,
// anything else is a local path.
func NewSource(ctx context.Context, location string, opts ...option.ClientOption) (interfaces.PolicySource, error) {
	if strings.HasPrefix(location, gcsScheme) {
		return NewGCSSource(ctx, location, opts...)
	}
	return NewFileSource(location), nil
}
