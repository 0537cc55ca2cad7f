package objstore

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
)

// MinioClient stores objects under rootPrefix in a MinIO or S3-compatible bucket.
type MinioClient struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinioClient(client *minio.Client, bucket, rootPrefix string) *MinioClient {
	return &MinioClient{client: client, bucket: bucket, prefix: rootPrefix}
}

func (c *MinioClient) key(name string) string {
	return path.Join(c.prefix, name)
}

func (c *MinioClient) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, c.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinioError(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateMinioError(err)
	}
	return data, nil
}

func (c *MinioClient) Put(ctx context.Context, name string, data []byte) error {
	_, err := c.client.PutObject(
		ctx, c.bucket, c.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{},
	)
	return err
}

func (c *MinioClient) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    c.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, c.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

func translateMinioError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
		return ErrNotFound
	}
	return err
}
