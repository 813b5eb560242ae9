package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient creates a Client backed by a test HTTP server.
// The handler receives real S3 XML-protocol requests.
func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := s3.New(s3.Options{
		Region:       "eu-central",
		BaseEndpoint: aws.String(server.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test-key", "test-secret", ""),
		HTTPClient:   &http.Client{Transport: &http.Transport{}},
	})
	return &Client{s3: client, region: "eu-central"}
}

func xmlResponse(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(body))
}

// fakeStore is a minimal path-style S3 endpoint.
type fakeStore struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]string
	log     []string
}

func newFakeStore(buckets ...string) *fakeStore {
	s := &fakeStore{buckets: map[string]bool{}, objects: map[string]string{}}
	for _, b := range buckets {
		s.buckets[b] = true
	}
	return s
}

func (s *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	s.log = append(s.log, r.Method+" "+r.URL.Path)

	if len(parts) == 1 || parts[1] == "" {
		switch r.Method {
		case http.MethodHead:
			if s.buckets[bucket] {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			s.buckets[bucket] = true
			xmlResponse(w, http.StatusOK, `<CreateBucketResult/>`)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	key := parts[1]
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		s.objects[bucket+"/"+key] = string(body)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(s.objects, bucket+"/"+key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	client, err := NewClient(context.Background(), "https://s3.example.com", "eu-central", "key", "secret")

	require.NoError(t, err)
	assert.Equal(t, "eu-central", client.region)
}

func TestEnsureBucket_CreatesMissingBucket(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	client := testClient(t, store)

	created, err := client.EnsureBucket(context.Background(), "backups")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, store.buckets["backups"])

	created, err = client.EnsureBucket(context.Background(), "backups")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestCreateBucket_AlreadyOwnedByYou(t *testing.T) {
	t.Parallel()
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		xmlResponse(w, http.StatusConflict, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>BucketAlreadyOwnedByYou</Code><Message>Your previous request to create the named bucket succeeded.</Message></Error>`)
	}))

	assert.NoError(t, client.CreateBucket(context.Background(), "backups"))
}

func TestCreateBucket_TakenByOthers(t *testing.T) {
	t.Parallel()
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		xmlResponse(w, http.StatusConflict, `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>BucketAlreadyExists</Code><Message>The requested bucket name is not available.</Message></Error>`)
	}))

	err := client.CreateBucket(context.Background(), "backups")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create bucket backups")
}

func TestBucketExists_Forbidden(t *testing.T) {
	t.Parallel()
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	exists, err := client.BucketExists(context.Background(), "backups")
	require.Error(t, err)
	assert.False(t, exists)
}

func TestCheckWrite(t *testing.T) {
	t.Parallel()
	store := newFakeStore("backups")
	client := testClient(t, store)

	require.NoError(t, client.CheckWrite(context.Background(), "backups"))

	assert.Equal(t, []string{"PUT /backups/" + ProbeKey, "DELETE /backups/" + ProbeKey}, store.log)
	assert.Empty(t, store.objects)
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		owned    bool
		notFound bool
	}{
		{"nil", nil, false, false},
		{"plain error", errors.New("boom"), false, false},
		{"typed owned", &s3types.BucketAlreadyOwnedByYou{}, true, false},
		{"typed no such bucket", &s3types.NoSuchBucket{}, false, true},
		{"typed not found", &s3types.NotFound{}, false, true},
		{"api owned", &smithy.GenericAPIError{Code: "BucketAlreadyOwnedByYou"}, true, false},
		{"api 404", &smithy.GenericAPIError{Code: "404"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.owned, isBucketAlreadyOwnedByYou(tt.err))
			assert.Equal(t, tt.notFound, isNotFoundError(tt.err))
		})
	}
}
