package file

import (
	"context"
	"errors"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/s3utils"
)

// ErrProvision is matched by every *ProvisionError.
var ErrProvision = errors.New("container provisioning failed")

// ProvisionError reports that a container could not be confirmed or created.
type ProvisionError struct {
	Container string
	Op        string // "probe" or "create"
	Err       error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision %s: %s failed: %v", e.Container, e.Op, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// Is reports ErrProvision as a match.
func (e *ProvisionError) Is(target error) bool { return target == ErrProvision }

// containerAPI is the part of the object store the provisioner needs.
type containerAPI interface {
	ContainerExists(ctx context.Context, name string) (bool, error)
	CreateContainer(ctx context.Context, name string) error
}

// EnsureContainer makes sure the named container exists, creating it when
// the probe reports it absent. It is safe to call repeatedly.
//
// A failed probe is not taken as absence: transport and permission errors
// are returned so a connectivity problem is never reported as provisioned.
func EnsureContainer(ctx context.Context, api containerAPI, name string) error {
	exists, err := api.ContainerExists(ctx, name)
	if err != nil {
		return &ProvisionError{Container: name, Op: "probe", Err: err}
	}
	if exists {
		return nil
	}

	if err := api.CreateContainer(ctx, name); err != nil {
		// Lost a creation race against another instance of this deployment.
		if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return &ProvisionError{Container: name, Op: "create", Err: err}
	}

	return nil
}

// ContainerName derives the container of a domain from the process-wide
// prefix and validates it as an S3 bucket name.
func ContainerName(prefix, domain string) (string, error) {
	name := prefix + domain
	if err := s3utils.CheckValidBucketNameStrict(name); err != nil {
		return "", fmt.Errorf("invalid container name %q: %w", name, err)
	}

	return name, nil
}
