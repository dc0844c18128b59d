package docstore_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"robline/internal/docstore"
)

// fakeS3 keeps objects in memory and answers like the real service for the
// calls the store makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string]fakeObject{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{data: data, contentType: aws.ToString(in.ContentType), metadata: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		Metadata:      obj.metadata,
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		Metadata:      obj.metadata,
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func stores(t *testing.T) map[string]docstore.Store {
	fsStore, err := docstore.NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return map[string]docstore.Store{
		"memory": docstore.NewMemory(),
		"fs":     fsStore,
		"s3":     docstore.NewS3WithClient(newFakeS3(), "robline-docs"),
	}
}

func TestPutGetDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ref, err := s.Put(ctx, "sds-9M-XXD.pdf", "application/pdf", strings.NewReader("%PDF-1.4 sds"))
			require.NoError(t, err)
			assert.True(t, ref.Present())
			assert.True(t, strings.HasSuffix(ref.Handle, ".pdf"))
			assert.Equal(t, "sds-9M-XXD.pdf", ref.Name)
			assert.Equal(t, int64(12), ref.Size)

			head, err := s.Head(ctx, ref.Handle)
			require.NoError(t, err)
			assert.Equal(t, ref, head)

			got, rc, err := s.Get(ctx, ref.Handle)
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, "%PDF-1.4 sds", string(data))
			assert.Equal(t, "application/pdf", got.ContentType)

			require.NoError(t, s.Delete(ctx, ref.Handle))
			_, err = s.Head(ctx, ref.Handle)
			assert.ErrorIs(t, err, docstore.ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, ref.Handle), docstore.ErrNotFound)
		})
	}
}

func TestHandlesAreUnique(t *testing.T) {
	s := docstore.NewMemory()
	a, err := s.Put(context.Background(), "ar.pdf", "", strings.NewReader("a"))
	require.NoError(t, err)
	b, err := s.Put(context.Background(), "ar.pdf", "", strings.NewReader("b"))
	require.NoError(t, err)
	assert.NotEqual(t, a.Handle, b.Handle)
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	s, err := docstore.NewFilesystem(t.TempDir())
	require.NoError(t, err)
	_, err = s.Head(context.Background(), "../etc/passwd")
	assert.Error(t, err)
	_, err = s.Head(context.Background(), "")
	assert.Error(t, err)
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	s, err := docstore.Open(ctx, docstore.Config{Driver: docstore.DriverMemory})
	require.NoError(t, err)
	assert.Equal(t, docstore.DriverMemory, s.Driver())

	s, err = docstore.Open(ctx, docstore.Config{FSRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, docstore.DriverFilesystem, s.Driver())

	_, err = docstore.Open(ctx, docstore.Config{Driver: docstore.DriverS3})
	assert.Error(t, err)

	_, err = docstore.Open(ctx, docstore.Config{Driver: "ftp"})
	assert.Error(t, err)
}
