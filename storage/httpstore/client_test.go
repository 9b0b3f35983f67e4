package httpstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	coreconfig "ledgerbot/core/config"
	"ledgerbot/core/logger"
	"ledgerbot/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	_ = logger.InitLogger(nil)
	os.Exit(m.Run())
}

func TestUpload(t *testing.T) {
	var gotAuth, gotFolder, gotName, gotType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/files", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotFolder = r.FormValue("folder_id")
		gotType = r.FormValue("content_type")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotName = header.Filename
		buf := make([]byte, header.Size)
		_, _ = file.Read(buf)
		gotBody = buf

		_ = json.NewEncoder(w).Encode(storage.File{
			FileID:     "doc-9",
			PublicLink: "https://docs.example.com/doc-9",
		})
	}))
	defer srv.Close()

	c := NewClient(coreconfig.StorageConfig{Endpoint: srv.URL, AuthToken: "secret"})

	file, err := c.Upload(context.Background(), []byte("jpeg-bytes"), "fld-1", "image/jpeg")
	require.NoError(t, err)

	assert.Equal(t, "doc-9", file.FileID)
	assert.Equal(t, "https://docs.example.com/doc-9", file.PublicLink)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "fld-1", gotFolder)
	assert.Equal(t, "image/jpeg", gotType)
	assert.Equal(t, "jpeg-bytes", string(gotBody))
	assert.True(t, strings.HasSuffix(gotName, ".jpg") || strings.HasSuffix(gotName, ".jpe") || strings.HasSuffix(gotName, ".jpeg"),
		"filename %q lacks a jpeg extension", gotName)
}

func TestUploadWithoutFolder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, hasFolder := r.MultipartForm.Value["folder_id"]
		assert.False(t, hasFolder, "folder_id sent for an unrouted upload")
		_ = json.NewEncoder(w).Encode(storage.File{FileID: "doc-1", PublicLink: "https://docs.example.com/doc-1"})
	}))
	defer srv.Close()

	c := NewClient(coreconfig.StorageConfig{Endpoint: srv.URL})
	_, err := c.Upload(context.Background(), []byte("x"), "", "application/pdf")
	require.NoError(t, err)
}

func TestUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(coreconfig.StorageConfig{Endpoint: srv.URL})
	_, err := c.Upload(context.Background(), []byte("x"), "fld-1", "image/jpeg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestUploadValidation(t *testing.T) {
	c := NewClient(coreconfig.StorageConfig{})
	_, err := c.Upload(context.Background(), []byte("x"), "", "image/jpeg")
	require.Error(t, err)

	c = NewClient(coreconfig.StorageConfig{Endpoint: "https://docs.example.com"})
	_, err = c.Upload(context.Background(), nil, "", "image/jpeg")
	require.Error(t, err)
}
