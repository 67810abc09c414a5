package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var (
	errNoSuchKey = &apiError{code: "NoSuchKey", msg: "no such key"}
	errNotFound  = &apiError{code: "NotFound", msg: "not found"}
)

type mockObject struct {
	data     []byte
	modified time.Time
}

// mockS3 is an in-memory S3 bucket. ListObjectsV2 returns pageSize keys
// per page to exercise pagination.
type mockS3 struct {
	mu       sync.Mutex
	objects  map[string]mockObject
	now      func() time.Time
	pageSize int

	getErr    error
	putErr    error
	deleteErr error
	headErr   error
	listErr   error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string]mockObject), now: time.Now, pageSize: 2}
}

func (m *mockS3) seed(key, data string, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = mockObject{data: []byte(data), modified: modified}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[*in.Key]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = mockObject{data: data, modified: m.now()}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.headErr != nil {
		return nil, m.headErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, errNotFound
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *mockS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > m.pageSize {
		keys = keys[:m.pageSize]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, k := range keys {
		obj := m.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}

func TestS3WriteAndRead(t *testing.T) {
	store := NewS3(newMockS3(), "bucket", "")
	ctx := context.Background()

	w, err := store.Write(ctx, "utterances/a.wav")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "RIFF....")
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := store.Read(ctx, "utterances/a.wav")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "RIFF...." {
		t.Fatalf("got %q", got)
	}
}

func TestS3ReadErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewS3(newMockS3(), "bucket", "").Read(ctx, "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing key err = %v, want os.ErrNotExist", err)
	}

	mock := newMockS3()
	mock.getErr = errors.New("network timeout")
	_, err := NewS3(mock, "bucket", "pfx").Read(ctx, "x")
	if err == nil || errors.Is(err, os.ErrNotExist) {
		t.Fatalf("generic err = %v", err)
	}
}

func TestS3ExistsAndDelete(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "bucket", "")
	ctx := context.Background()

	if ok, err := store.Exists(ctx, "tmp"); err != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}
	mock.seed("tmp", "x", time.Now())
	if ok, err := store.Exists(ctx, "tmp"); err != nil || !ok {
		t.Fatalf("Exists(present) = %v, %v", ok, err)
	}
	for range 2 {
		if err := store.Delete(ctx, "tmp"); err != nil {
			t.Fatal(err)
		}
	}
	if ok, _ := store.Exists(ctx, "tmp"); ok {
		t.Fatal("key should be gone after delete")
	}

	mock.headErr = errors.New("network failure")
	if _, err := store.Exists(ctx, "tmp"); err == nil {
		t.Fatal("expected head error")
	}
}

func TestS3WriteUploadError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("upload failed")
	w, err := NewS3(mock, "bucket", "").Write(context.Background(), "obj")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "data")
	if err := w.Close(); err == nil || err.Error() != "upload failed" {
		t.Fatalf("Close err = %v, want upload failed", err)
	}
}

func TestS3KeyPrefix(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "bucket", "/voice/")
	ctx := context.Background()

	w, _ := store.Write(ctx, "file.wav")
	io.WriteString(w, "content")
	w.Close()

	mock.mu.Lock()
	_, ok := mock.objects["voice/file.wav"]
	mock.mu.Unlock()
	if !ok {
		t.Fatal("expected key voice/file.wav")
	}
	if got := NewS3(mock, "bucket", "").key("a/b"); got != "a/b" {
		t.Fatalf("key = %q, want a/b", got)
	}
}

func TestS3List(t *testing.T) {
	mock := newMockS3()
	store := NewS3(mock, "bucket", "voice")
	at := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	for _, k := range []string{"u/3.wav", "u/1.wav", "u/2.wav", "u/4.txt", "x/5.wav"} {
		mock.seed("voice/"+k, "data", at)
	}
	mock.seed("other/u/9.wav", "data", at)

	var paths []string
	for obj, err := range store.List(context.Background(), "u/") {
		if err != nil {
			t.Fatal(err)
		}
		if obj.Size != 4 || !obj.ModTime.Equal(at) {
			t.Errorf("object %+v", obj)
		}
		paths = append(paths, obj.Path)
	}
	want := []string{"u/1.wav", "u/2.wav", "u/3.wav", "u/4.txt"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Fatalf("List = %v, want %v", paths, want)
	}

	mock.listErr = errors.New("denied")
	for _, err := range store.List(context.Background(), "") {
		if err == nil {
			t.Fatal("expected list error")
		}
	}
}

func TestIsS3NotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"NoSuchKey", errNoSuchKey, true},
		{"NotFound", errNotFound, true},
		{"other api error", &apiError{code: "AccessDenied", msg: "denied"}, false},
		{"plain error", errors.New("timeout"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isS3NotFound(tt.err); got != tt.want {
				t.Fatalf("isS3NotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewS3Client(t *testing.T) {
	c := NewS3Client(S3Options{Endpoint: "http://127.0.0.1:9000", AccessKey: "k", SecretKey: "s", PathStyle: true})
	if c == nil {
		t.Fatal("nil client")
	}
	var _ S3Client = c
}
