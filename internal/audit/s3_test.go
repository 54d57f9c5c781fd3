package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Append(t *testing.T) {
	putter := &fakePutter{}
	store := newS3Store(putter, "audit-bucket", "wmai")

	at := time.Date(2024, 3, 9, 12, 0, 0, 42, time.UTC)
	e := testEntry("migration-20240309-add/users", StatusSuccess, at)
	e.ID = 7
	require.NoError(t, store.Append(context.Background(), e))

	require.Len(t, putter.inputs, 1)
	in := putter.inputs[0]
	assert.Equal(t, "audit-bucket", *in.Bucket)
	assert.Equal(t, "wmai/2024/03/09/1709985600000000042-migration-20240309-add_users.json", *in.Key)
	assert.Equal(t, "*", *in.IfNoneMatch)
	assert.Equal(t, "application/json", *in.ContentType)

	var got map[string]any
	require.NoError(t, json.Unmarshal(putter.bodies[0], &got))
	assert.NotContains(t, got, "id")
	assert.Equal(t, "migration-20240309-add/users", got["operation_id"])
	assert.Equal(t, "success", got["status"])
}

func TestS3Store_AppendError(t *testing.T) {
	store := newS3Store(&fakePutter{err: errors.New("AccessDenied")}, "b", "")

	err := store.Append(context.Background(), testEntry("op", StatusFailed, time.Now()))
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestS3Store_Key(t *testing.T) {
	store := newS3Store(nil, "b", "")
	e := &Entry{CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, "2024/01/02/1704153600000000000-unknown.json", store.Key(e))
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{})
	assert.ErrorContains(t, err, "bucket name is required")
}
