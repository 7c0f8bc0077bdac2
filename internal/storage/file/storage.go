package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned by Get when no object is stored under the key.
var ErrObjectNotFound = errors.New("object not found")

// Options holds the connection parameters of one object store endpoint.
type Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Client is an S3-compatible object store bound to a single endpoint.
type Client struct {
	client *minio.Client
	region string
}

// NewClient creates a Client for the given endpoint.
// The region is fixed up front so that presigning is a purely local
// computation and never queries the bucket location.
func NewClient(opts Options) (*Client, error) {
	if opts.Region == "" {
		return nil, fmt.Errorf("storage: region is required for endpoint %q", opts.Endpoint)
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	return &Client{client: client, region: opts.Region}, nil
}

// Endpoint returns the URL of the endpoint the client is bound to.
func (c *Client) Endpoint() *url.URL {
	return c.client.EndpointURL()
}

// Put uploads data under (container, key) with the given content type.
func (c *Client) Put(ctx context.Context, container, key string, data []byte, contentType string) error {
	_, err := c.client.PutObject(ctx, container, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", container, key, err)
	}

	return nil
}

// Get opens the object stored under (container, key). The object is
// stat'ed before returning, so a missing key fails here with
// ErrObjectNotFound rather than on the first read.
func (c *Client) Get(ctx context.Context, container, key string) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, container, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", container, key, err)
	}

	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, fmt.Errorf("failed to get object %s/%s: %w", container, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get object %s/%s: %w", container, key, err)
	}

	return obj, nil
}

// Delete removes the object stored under (container, key).
// Deleting a key that does not exist succeeds.
func (c *Client) Delete(ctx context.Context, container, key string) error {
	err := c.client.RemoveObject(ctx, container, key, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object %s/%s: %w", container, key, err)
	}

	return nil
}

// Exists reports whether an object is stored under (container, key).
func (c *Client) Exists(ctx context.Context, container, key string) (bool, error) {
	_, err := c.client.StatObject(ctx, container, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object %s/%s: %w", container, key, err)
	}

	return true, nil
}

// ContainerExists reports whether the bucket exists.
func (c *Client) ContainerExists(ctx context.Context, name string) (bool, error) {
	return c.client.BucketExists(ctx, name)
}

// CreateContainer creates the bucket in the client's region.
func (c *Client) CreateContainer(ctx context.Context, name string) error {
	return c.client.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: c.region})
}

// Sign returns a presigned GET URL for (container, key) valid for ttl.
// The URL embeds this client's endpoint; no request is sent.
func (c *Client) Sign(ctx context.Context, container, key string, ttl time.Duration) (*url.URL, error) {
	u, err := c.client.PresignedGetObject(ctx, container, key, ttl, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("failed to presign %s/%s: %w", container, key, err)
	}

	return u, nil
}

// isNotFound reports whether err is a "no such key" or "no such bucket" response.
func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}
