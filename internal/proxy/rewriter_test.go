package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRewriter(t *testing.T) *Rewriter {
	t.Helper()
	r, err := NewRewriter(Config{
		Prefix:      "/media/",
		Endpoint:    "http://storage.internal:9100",
		Bucket:      "catalog-images",
		Region:      "eu-west-1",
		NativeHosts: []string{"files.example.net"},
	})
	require.NoError(t, err)
	return r
}

func TestRewriter_ToProxy(t *testing.T) {
	r := newTestRewriter(t)

	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"configured endpoint", "http://storage.internal:9100/catalog-images/images/ab.jpg", "/media/images/ab.jpg", true},
		{"default minio host", "http://localhost:9000/catalog-images/images/ab.jpg", "/media/images/ab.jpg", true},
		{"docker minio host", "http://minio:9000/catalog-images/images/ab.jpg?X-Amz-Signature=x", "/media/images/ab.jpg", true},
		{"extra native host", "https://files.example.net/catalog-images/images/ab.jpg", "/media/images/ab.jpg", true},
		{"aws path style", "https://s3.amazonaws.com/catalog-images/images/ab.jpg", "/media/images/ab.jpg", true},
		{"aws regional path style", "https://s3.eu-west-1.amazonaws.com/catalog-images/images/ab.jpg", "/media/images/ab.jpg", true},
		{"aws virtual host", "https://catalog-images.s3.amazonaws.com/images/ab.jpg", "/media/images/ab.jpg", true},
		{"aws regional virtual host", "https://catalog-images.s3.eu-west-1.amazonaws.com/images/ab.jpg", "/media/images/ab.jpg", true},
		{"other bucket", "http://localhost:9000/other/images/ab.jpg", "", false},
		{"bucket root", "http://localhost:9000/catalog-images/", "", false},
		{"external image", "https://m.media-amazon.com/images/I/71lamp.jpg", "", false},
		{"other region", "https://s3.us-east-2.amazonaws.com/catalog-images/images/ab.jpg", "", false},
		{"relative", "/media/images/ab.jpg", "", false},
		{"garbage", "::not a url", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.ToProxy(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, r.IsNative(tt.in))
		})
	}
}

func TestRewriter_RoundTrip(t *testing.T) {
	r := newTestRewriter(t)

	native, ok := r.ToNative("/media/images/ab.jpg")
	require.True(t, ok)
	assert.Equal(t, "http://storage.internal:9100/catalog-images/images/ab.jpg", native)

	back, ok := r.ToProxy(native)
	require.True(t, ok)
	assert.Equal(t, "/media/images/ab.jpg", back)
}

func TestRewriter_ObjectKey(t *testing.T) {
	r := newTestRewriter(t)

	assert.Equal(t, "/media/images/ab.jpg", r.ObjectURL("images/ab.jpg"))
	assert.Equal(t, "/media/images/ab.jpg", r.ObjectURL("/images/ab.jpg"))

	key, ok := r.ObjectKey("/media/images/ab.jpg?v=2")
	require.True(t, ok)
	assert.Equal(t, "images/ab.jpg", key)

	_, ok = r.ObjectKey("/media/")
	assert.False(t, ok)
	_, ok = r.ObjectKey("/mediaX/images/ab.jpg")
	assert.False(t, ok)

	_, ok = r.ToNative("https://example.com/a.jpg")
	assert.False(t, ok)
}

func TestRewriter_Rewrite(t *testing.T) {
	r := newTestRewriter(t)

	assert.Equal(t, "/media/images/ab.jpg", r.Rewrite("http://minio:9000/catalog-images/images/ab.jpg"))
	assert.Equal(t, "https://m.media-amazon.com/x.jpg", r.Rewrite("https://m.media-amazon.com/x.jpg"))
	assert.Equal(t, "/media/images/ab.jpg", r.Rewrite("/media/images/ab.jpg"))
}

func TestNewRewriter_Validation(t *testing.T) {
	_, err := NewRewriter(Config{Bucket: "b"})
	assert.Error(t, err)

	_, err = NewRewriter(Config{Prefix: "/media"})
	assert.Error(t, err)

	_, err = NewRewriter(Config{Prefix: "/media", Bucket: "b", Endpoint: "not-a-url"})
	assert.Error(t, err)

	r, err := NewRewriter(Config{Prefix: "https://cdn.example.com/media", Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/media/k.jpg", r.ObjectURL("k.jpg"))
	_, ok := r.ToNative("https://cdn.example.com/media/k.jpg")
	assert.False(t, ok, "no endpoint configured")
}
