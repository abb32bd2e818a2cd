package provider

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/cloudkit/cloudkit"
	"github.com/cloudkit/cloudkit/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	responses []fakeResponse
	calls     atomic.Int32
}

type fakeResponse struct {
	code int
	body string
	err  error
}

func (t *fakeTransport) Create(url, method string, followRedirects bool) cloudkit.RequestBuilder {
	return &fakeBuilder{t: t, url: url, method: method}
}

type fakeBuilder struct {
	t      *fakeTransport
	url    string
	method string
}

func (b *fakeBuilder) SetHeader(string, string)    {}
func (b *fakeBuilder) SetParameter(string, string) {}
func (b *fakeBuilder) URL() string                 { return b.url }
func (b *fakeBuilder) Method() string              { return b.method }

func (b *fakeBuilder) Send(ctx context.Context, bodyInput io.Reader, bodyOutput io.Writer, cb cloudkit.TransportCallback) (*cloudkit.Response, error) {
	i := b.t.calls.Add(1) - 1
	r := b.t.responses[i]
	if r.err != nil {
		return nil, r.err
	}
	if bodyOutput != nil {
		_, _ = bodyOutput.Write([]byte(r.body))
	}
	return &cloudkit.Response{HTTPCode: r.code, Headers: map[string]string{}}, nil
}

func newBase(t *fakeTransport, reauth engine.ReauthFn) Base {
	return NewBase("test", t, reauth, engine.Options{BaseBackoff: 0})
}

func TestDo_ParsesSuccessfulResponse(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{responses: []fakeResponse{{code: 200, body: `{"ok":true}`}}}
	b := newBase(transport, nil)

	rq := Do[string](context.Background(), &b,
		func(ctx context.Context) (RequestSpec, error) {
			return RequestSpec{Method: "GET", URL: "https://example.com"}, nil
		},
		nil,
		func(ctx context.Context, rq *engine.Request[string], resp *cloudkit.Response, body []byte) (string, error) {
			return string(body), nil
		},
	)

	res := rq.Result(context.Background())
	require.True(t, res.IsOk())
	assert.Equal(t, `{"ok":true}`, res.Value)
}

func TestDo_ClassifiesHTTPErrorByStatus(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{responses: []fakeResponse{{code: 404, body: "not found"}}}
	b := newBase(transport, nil)

	rq := Do[string](context.Background(), &b,
		func(ctx context.Context) (RequestSpec, error) { return RequestSpec{Method: "GET", URL: "x"}, nil },
		nil,
		func(ctx context.Context, rq *engine.Request[string], resp *cloudkit.Response, body []byte) (string, error) { return "", nil },
	)

	res := rq.Result(context.Background())
	require.False(t, res.IsOk())
	assert.Equal(t, cloudkit.CodeNotFound, res.Err.Code)
}

func TestDo_ReauthsOn401ThenSucceeds(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{responses: []fakeResponse{
		{code: 401, body: ""},
		{code: 200, body: "ok"},
	}}
	var reauthCalls atomic.Int32
	reauth := func(ctx context.Context) error {
		reauthCalls.Add(1)
		return nil
	}
	b := newBase(transport, reauth)

	authorizeCalls := 0
	rq := Do[string](context.Background(), &b,
		func(ctx context.Context) (RequestSpec, error) { return RequestSpec{Method: "GET", URL: "x"}, nil },
		func(ctx context.Context, spec *RequestSpec) error {
			authorizeCalls++
			return nil
		},
		func(ctx context.Context, rq *engine.Request[string], resp *cloudkit.Response, body []byte) (string, error) { return string(body), nil },
	)

	res := rq.Result(context.Background())
	require.True(t, res.IsOk())
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, int32(1), reauthCalls.Load())
	assert.Equal(t, 2, authorizeCalls)
}

func TestDo_BuildErrorShortCircuits(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	b := newBase(transport, nil)

	rq := Do[string](context.Background(), &b,
		func(ctx context.Context) (RequestSpec, error) { return RequestSpec{}, errors.New("bad input") },
		nil,
		func(ctx context.Context, rq *engine.Request[string], resp *cloudkit.Response, body []byte) (string, error) { return "", nil },
	)

	res := rq.Result(context.Background())
	require.False(t, res.IsOk())
	assert.Equal(t, cloudkit.CodeInvalidArgument, res.Err.Code)
	assert.Equal(t, int32(0), transport.calls.Load())
}

func TestCredentialsRoundTrip(t *testing.T) {
	t.Parallel()

	hints := cloudkit.Hints{cloudkit.HintClientID: "abc", cloudkit.HintAWSRegion: "us-east-1"}
	s, err := CredentialsToString(hints)
	require.NoError(t, err)

	got, err := CredentialsFromString(s)
	require.NoError(t, err)
	assert.Equal(t, hints, got)
}

func TestDefaultFileDaemonURL(t *testing.T) {
	t.Parallel()

	got := DefaultFileDaemonURL(8080, "shared-secret", "bucket-store", "photos/a.jpg", 1024)
	assert.Contains(t, got, "http://127.0.0.1:8080/?")
	assert.Contains(t, got, "state=shared-secret")
	assert.Contains(t, got, "size=1024")

	label, id, err := DecodeOpaqueID(EncodeOpaqueID("bucket-store", "photos/a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "bucket-store", label)
	assert.Equal(t, "photos/a.jpg", id)
}
