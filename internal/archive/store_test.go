package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rpattn/clinicleads/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	runID := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	clinicID := uuid.MustParse("0b6a4c1e-2f5d-4b9a-8f3e-1d2c3b4a5f60")

	tests := []struct {
		name     string
		clinicID uuid.UUID
		fileName string
		expected string
	}{
		{
			name:     "global scope",
			fileName: "leads.csv",
			expected: "imports/global/appointments/" + runID.String() + "/leads.csv",
		},
		{
			name:     "clinic scope strips directories",
			clinicID: clinicID,
			fileName: `C:\Users\front desk\leads.xlsx`,
			expected: "imports/" + clinicID.String() + "/appointments/" + runID.String() + "/leads.xlsx",
		},
		{
			name:     "blank name",
			fileName: "  ",
			expected: "imports/global/appointments/" + runID.String() + "/upload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ObjectKey(tt.clinicID, domain.PipelineAppointments, runID, tt.fileName))
		})
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", ContentType("a.CSV"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ContentType("a.xlsx"))
	assert.Equal(t, "application/octet-stream", ContentType("a.txt"))
}

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	_, err := New(Config{Bucket: "imports"})
	assert.Error(t, err)
	_, err = New(Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestConfigActive(t *testing.T) {
	assert.False(t, Config{}.Active())
	assert.True(t, Config{Endpoint: "minio:9000"}.Active())
	assert.True(t, Config{Enabled: true}.Active())
}

type fakeS3 struct {
	mu       sync.Mutex
	requests []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.mu.Unlock()

	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

func newFakeStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	store, err := New(Config{
		Endpoint:  strings.TrimPrefix(server.URL, "http://"),
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "clinic-imports",
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	return store, fake
}

func TestArchiveUploadsObject(t *testing.T) {
	store, fake := newFakeStore(t)
	key := ObjectKey(uuid.Nil, domain.PipelineInquiries, uuid.New(), "leads.csv")

	err := store.Archive(context.Background(), key, []byte("patientName\nAnn\n"), "text/csv")
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.NotEmpty(t, fake.requests)
	last := fake.requests[len(fake.requests)-1]
	assert.True(t, strings.HasPrefix(last, "PUT /clinic-imports/imports/global/inquiries/"), last)
}

func TestEnsureBucketExisting(t *testing.T) {
	store, fake := newFakeStore(t)

	require.NoError(t, store.EnsureBucket(context.Background()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	for _, req := range fake.requests {
		assert.False(t, strings.HasPrefix(req, "PUT"), "existing bucket must not be recreated: %s", req)
	}
}
