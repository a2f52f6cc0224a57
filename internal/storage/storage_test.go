package storage

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spectravue/emit-unmix/internal/emit"
)

func TestSplitS3Ref(t *testing.T) {
	bucket, key, err := splitS3Ref("s3://lp-prod-protected/EMITL2ARFL.001/granule.nc")
	require.NoError(t, err)
	assert.Equal(t, "lp-prod-protected", bucket)
	assert.Equal(t, "EMITL2ARFL.001/granule.nc", key)

	_, _, err = splitS3Ref("/tmp/granule.nc")
	assert.ErrorIs(t, err, emit.ErrValidation)
	_, _, err = splitS3Ref("s3://bucket-only")
	assert.ErrorIs(t, err, emit.ErrValidation)
}

func TestForRefLocal(t *testing.T) {
	store, err := ForRef("/tmp/granule.nc", nil)
	require.NoError(t, err)

	local, err := store.Fetch("/tmp/granule.nc")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/granule.nc", local)
	assert.Equal(t, "/tmp/granule.nc", store.SourcePath("/tmp/granule.nc"))
}

func TestForRefS3RequiresProvider(t *testing.T) {
	_, err := ForRef("s3://bucket/key.nc", nil)
	assert.ErrorIs(t, err, emit.ErrConfiguration)
}

// A run mixing a local reference with an s3 one must resolve one store per
// reference, not reuse whichever the first reference happened to pick.
func TestForRefDispatchesPerReference(t *testing.T) {
	t.Setenv("ROOT_PATH", t.TempDir())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TemporaryCredentials{
			AccessKeyID:     "AKID",
			SecretAccessKey: "SECRET",
			SessionToken:    "TOKEN",
			Expiration:      time.Now().Add(time.Hour),
		})
	}))
	defer srv.Close()

	p, err := NewCredentialProvider(srv.URL, "")
	require.NoError(t, err)

	local, err := ForRef("/data/granule.nc", p)
	require.NoError(t, err)
	assert.IsType(t, LocalStore{}, local)

	remote, err := ForRef("s3://lp-prod-protected/key.nc", p)
	require.NoError(t, err)
	assert.IsType(t, &S3Store{}, remote)
}

func TestCredentialProviderFetch(t *testing.T) {
	t.Setenv("ROOT_PATH", t.TempDir())

	var sawAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(TemporaryCredentials{
			AccessKeyID:     "AKID",
			SecretAccessKey: "SECRET",
			SessionToken:    "TOKEN",
			Expiration:      time.Now().Add(time.Hour),
		})
	}))
	defer srv.Close()

	p, err := NewCredentialProvider(srv.URL, "tok")
	require.NoError(t, err)

	creds, err := p.Fetch()
	require.NoError(t, err)
	assert.Equal(t, "AKID", creds.AccessKeyID)
	assert.Equal(t, "Bearer tok", sawAuth)

	// Second fetch is served from the disk cache.
	srv.Close()
	again, err := p.Fetch()
	require.NoError(t, err)
	assert.Equal(t, creds.AccessKeyID, again.AccessKeyID)
}

func TestCredentialProviderRejectsEmptyResponse(t *testing.T) {
	t.Setenv("ROOT_PATH", t.TempDir())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p, err := NewCredentialProvider(srv.URL, "")
	require.NoError(t, err)
	p.Retries = 1

	_, err = p.Fetch()
	assert.Error(t, err)
}

func TestCredentialProviderKnownEndpoints(t *testing.T) {
	p, err := NewCredentialProvider(DefaultProvider, "")
	require.NoError(t, err)
	assert.Contains(t, p.Endpoint, "lpdaac")

	_, err = NewCredentialProvider("", "")
	assert.ErrorIs(t, err, emit.ErrConfiguration)
}
