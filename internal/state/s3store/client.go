// Package s3store persists cluster state in an S3-compatible object
// store, using conditional writes for compare-and-swap and locking.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gatehouse-dev/gatehouse/internal/state"
)

const (
	stateKey = "state.json"
	lockKey  = "state.lock"
)

// api is the slice of the S3 client the store uses. Narrowed for
// testing, following the cloud-client interface pattern used for the
// provider adapter.
type api interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Store implements state.Store on top of an S3-compatible bucket.
// One bucket may hold many clusters; objects live under the cluster
// name prefix.
type Store struct {
	api     api
	bucket  string
	cluster string

	mu       sync.Mutex
	lastETag string // ETag of the last loaded state object, for CAS on Save

	now func() time.Time
}

// Options configures the remote store connection.
type Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Cluster   string
}

// New connects to the object store. Credentials come from the
// environment via the caller; they are never persisted.
func New(ctx context.Context, opts Options) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
		awsconfig.WithRegion(opts.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load object store config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &Store{
		api:     client,
		bucket:  opts.Bucket,
		cluster: opts.Cluster,
		now:     time.Now,
	}, nil
}

func (s *Store) key(name string) string {
	return s.cluster + "/" + name
}

// Load implements state.Store.
func (s *Store) Load(ctx context.Context) (*state.ClusterState, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(stateKey)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, state.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read cluster state: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster state body: %w", err)
	}

	var st state.ClusterState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode cluster state: %w", err)
	}
	if st.Resources == nil {
		st.Resources = make(map[string]state.Resource)
	}

	s.mu.Lock()
	s.lastETag = aws.ToString(out.ETag)
	s.mu.Unlock()

	return &st, nil
}

// Save implements state.Store. The write is conditioned on the ETag
// captured by the last Load, so a concurrent writer surfaces as
// ErrRevisionConflict rather than a silent overwrite.
func (s *Store) Save(ctx context.Context, st *state.ClusterState) error {
	s.mu.Lock()
	etag := s.lastETag
	s.mu.Unlock()

	st.Revision++
	st.UpdatedAt = s.now()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		st.Revision--
		return fmt.Errorf("failed to encode cluster state: %w", err)
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(stateKey)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if etag == "" {
		// First write for this process: require the object to be absent.
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(etag)
	}

	out, err := s.api.PutObject(ctx, in)
	if err != nil {
		st.Revision--
		if isPreconditionFailed(err) {
			return state.ErrRevisionConflict
		}
		return fmt.Errorf("failed to write cluster state: %w", err)
	}

	s.mu.Lock()
	s.lastETag = aws.ToString(out.ETag)
	s.mu.Unlock()
	return nil
}

// Delete implements state.Store.
func (s *Store) Delete(ctx context.Context) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(stateKey)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete cluster state: %w", err)
	}
	s.mu.Lock()
	s.lastETag = ""
	s.mu.Unlock()
	return nil
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "404"
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "PreconditionFailed" || code == "412"
	}
	return false
}

// AcquireLock lives in lock.go.
var _ state.Store = (*Store)(nil)
