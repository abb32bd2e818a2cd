// Package transport is the default net/http-backed implementation of
// cloudkit.HttpTransport/RequestBuilder. It's the concrete capability the
// CLI wires into every provider. The engine, provider and vfs packages do
// not import net/http, which keeps them transport-agnostic per the
// capability-based design; the daemon and the S3 adapter's signing step do.
package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cloudkit/cloudkit"
)

// Client is a cloudkit.HttpTransport backed by a single *http.Client
// shared across every request it creates.
type Client struct {
	hc *http.Client
}

// New returns a Client wrapping hc, or http.DefaultClient if nil.
func New(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{hc: hc}
}

// Create builds a RequestBuilder for one HTTP call.
func (c *Client) Create(url, method string, followRedirects bool) cloudkit.RequestBuilder {
	client := c.hc
	if !followRedirects {
		shallow := *c.hc
		shallow.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
		client = &shallow
	}
	return &builder{
		client: client,
		url:    url,
		method: method,
		header: make(http.Header),
		query:  make(map[string]string),
	}
}

type builder struct {
	client *http.Client
	url    string
	method string
	header http.Header
	query  map[string]string
}

func (b *builder) SetHeader(key, value string)    { b.header.Set(key, value) }
func (b *builder) SetParameter(key, value string) { b.query[key] = value }
func (b *builder) URL() string                    { return b.url }
func (b *builder) Method() string                 { return b.method }

// Send issues the HTTP request, streaming bodyInput as the request body and
// copying the response into bodyOutput chunk-by-chunk so cb can observe
// progress and demand abort/pause between reads. A non-nil error here means
// the request never reached an HTTP response (DNS, TLS, connection reset);
// once a status line is read, failures are reported through Response.
func (b *builder) Send(ctx context.Context, bodyInput io.Reader, bodyOutput io.Writer, cb cloudkit.TransportCallback) (*cloudkit.Response, error) {
	url := b.url
	if len(b.query) > 0 {
		q := make([]string, 0, len(b.query))
		for k, v := range b.query {
			q = append(q, k+"="+v)
		}
		sep := "?"
		if len(q) > 0 {
			for i, kv := range q {
				if i > 0 {
					sep = "&"
				}
				url += sep + kv
				sep = "&"
			}
		}
	}

	var reqBody io.Reader
	var uploadTotal uint64
	if bodyInput != nil {
		if sizer, ok := bodyInput.(interface{ Size() (uint64, bool) }); ok {
			if sz, known := sizer.Size(); known {
				uploadTotal = sz
			}
		}
		reqBody = &progressReader{r: bodyInput, cb: cb, total: uploadTotal, onProgress: cloudkit.TransportCallback.ProgressUpload}
	}

	req, err := http.NewRequestWithContext(ctx, b.method, url, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header = b.header.Clone()

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	if bodyOutput != nil {
		total := uint64(0)
		if resp.ContentLength > 0 {
			total = uint64(resp.ContentLength)
		}
		downloadSrc := &progressReader{r: resp.Body, cb: cb, total: total, onProgress: cloudkit.TransportCallback.ProgressDownload}
		if _, err := io.Copy(bodyOutput, downloadSrc); err != nil {
			return nil, err
		}
	}

	return &cloudkit.Response{HTTPCode: resp.StatusCode, Headers: headers}, nil
}

// progressReader wraps a request or response body, reporting progress
// through onProgress and honoring TransportCallback's abort/pause polling
// before every chunk.
type progressReader struct {
	r          io.Reader
	cb         cloudkit.TransportCallback
	total, now uint64
	onProgress func(cb cloudkit.TransportCallback, total, now uint64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	if p.cb != nil {
		for p.cb.Pause() && !p.cb.Abort() {
			time.Sleep(10 * time.Millisecond)
		}
		if p.cb.Abort() {
			return 0, io.EOF
		}
	}

	n, err := p.r.Read(buf)
	p.now += uint64(n)
	if p.cb != nil && p.onProgress != nil {
		p.onProgress(p.cb, p.total, p.now)
	}
	return n, err
}

var _ cloudkit.HttpTransport = (*Client)(nil)
var _ cloudkit.RequestBuilder = (*builder)(nil)
