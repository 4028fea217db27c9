package fetcher

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFetcher struct {
	urls []string
}

func (r *recordingFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	r.urls = append(r.urls, url)
	return io.NopCloser(strings.NewReader("data")), nil
}

func (r *recordingFetcher) DownloadToFile(ctx context.Context, url string, path string) (int64, error) {
	r.urls = append(r.urls, url)
	return 4, nil
}

func TestSchemeFetcher_Routes(t *testing.T) {
	httpF := &recordingFetcher{}
	ftpF := &recordingFetcher{}
	f := &SchemeFetcher{HTTP: httpF, FTP: ftpF}
	ctx := context.Background()

	body, err := f.Download(ctx, "https://www2.census.gov/file.zip")
	require.NoError(t, err)
	body.Close() //nolint:errcheck

	_, err = f.DownloadToFile(ctx, "ftp://ftp2.census.gov/file.zip", "/tmp/file.zip")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://www2.census.gov/file.zip"}, httpF.urls)
	assert.Equal(t, []string{"ftp://ftp2.census.gov/file.zip"}, ftpF.urls)
}

func TestSchemeFetcher_UnsupportedScheme(t *testing.T) {
	f := &SchemeFetcher{HTTP: &recordingFetcher{}, FTP: &recordingFetcher{}}

	_, err := f.Download(context.Background(), "gopher://example.com/file")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}
