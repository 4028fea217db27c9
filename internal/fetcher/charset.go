package fetcher

import (
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// DecodeCharset wraps r so its contents are transcoded from the named
// charset to UTF-8. BEA's regional CSV downloads are still latin-1 and county
// names like "Doña Ana" corrupt without this.
func DecodeCharset(r io.Reader, charset string) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: unknown charset %q", charset)
	}
	return enc.NewDecoder().Reader(r), nil
}
