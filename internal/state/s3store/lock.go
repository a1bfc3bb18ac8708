package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gatehouse-dev/gatehouse/internal/errdefs"
	"github.com/gatehouse-dev/gatehouse/internal/state"
)

// lockRecord is the JSON body of the lock object.
type lockRecord struct {
	Holder    string    `json:"holder"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AcquireLock implements state.Store. The lock is an object written
// with If-None-Match, so exactly one writer can create it; an expired
// lock is deleted and acquisition retried once.
func (s *Store) AcquireLock(ctx context.Context, holder string, ttl time.Duration) (state.Lock, error) {
	for attempt := 0; attempt < 2; attempt++ {
		err := s.putLock(ctx, lockRecord{Holder: holder, ExpiresAt: s.now().Add(ttl)})
		if err == nil {
			return &objectLock{store: s, holder: holder, ttl: ttl}, nil
		}
		if !isPreconditionFailed(err) {
			return nil, fmt.Errorf("failed to write lock object: %w", err)
		}

		rec, readErr := s.readLock(ctx)
		if readErr != nil {
			if isNoSuchKey(readErr) {
				// Lost a race with a release; retry the put.
				continue
			}
			return nil, fmt.Errorf("failed to read lock object: %w", readErr)
		}

		if s.now().Before(rec.ExpiresAt) {
			return nil, &errdefs.LockContention{Holder: rec.Holder}
		}

		// Stale lock: remove it and retry the conditional put once.
		if err := s.deleteLock(ctx); err != nil {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}
	return nil, &errdefs.LockContention{}
}

func (s *Store) putLock(ctx context.Context, rec lockRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(lockKey)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		IfNoneMatch:   aws.String("*"),
	})
	return err
}

func (s *Store) readLock(ctx context.Context) (*lockRecord, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(lockKey)),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	var rec lockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) deleteLock(ctx context.Context) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(lockKey)),
	})
	return err
}

type objectLock struct {
	store  *Store
	holder string
	ttl    time.Duration
}

// Refresh rewrites the lock with a new expiry after verifying the
// holder is still us.
func (l *objectLock) Refresh(ctx context.Context) error {
	rec, err := l.store.readLock(ctx)
	if err != nil {
		if isNoSuchKey(err) {
			return &errdefs.LockContention{}
		}
		return fmt.Errorf("failed to read lock for refresh: %w", err)
	}
	if rec.Holder != l.holder {
		return &errdefs.LockContention{Holder: rec.Holder}
	}

	data, err := json.Marshal(lockRecord{Holder: l.holder, ExpiresAt: l.store.now().Add(l.ttl)})
	if err != nil {
		return err
	}
	_, err = l.store.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(l.store.bucket),
		Key:           aws.String(l.store.key(lockKey)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to refresh lock: %w", err)
	}
	return nil
}

// Release deletes the lock object if we still hold it.
func (l *objectLock) Release(ctx context.Context) error {
	rec, err := l.store.readLock(ctx)
	if err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("failed to read lock for release: %w", err)
	}
	if rec.Holder != l.holder {
		// Taken over after expiry; nothing of ours to release.
		return nil
	}
	return l.store.deleteLock(ctx)
}
