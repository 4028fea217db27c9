package fetcher

import (
	"context"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// SchemeFetcher routes downloads by URL scheme: http/https to the HTTP
// fetcher, ftp to the FTP fetcher. Collectors can then hold a single
// Fetcher regardless of where a source publishes its files.
type SchemeFetcher struct {
	HTTP Fetcher
	FTP  Fetcher
}

func (f *SchemeFetcher) pick(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	switch u.Scheme {
	case "http", "https":
		return f.HTTP, nil
	case "ftp":
		return f.FTP, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

func (f *SchemeFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	inner, err := f.pick(rawURL)
	if err != nil {
		return nil, err
	}
	return inner.Download(ctx, rawURL)
}

func (f *SchemeFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	inner, err := f.pick(rawURL)
	if err != nil {
		return 0, err
	}
	return inner.DownloadToFile(ctx, rawURL, path)
}
