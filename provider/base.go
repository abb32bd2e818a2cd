// Package provider implements the default per-operation request pipeline
// (§4.5) that every concrete backend adapter builds on: Base wires the
// request engine, the auth state machine, and an HttpTransport capability
// together so an adapter only has to supply what varies per operation
// (build the request, parse the response) rather than reimplementing
// retry, reauth, and progress plumbing itself.
package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/cloudkit/cloudkit"
	"github.com/cloudkit/cloudkit/engine"
)

// RequestSpec is what a BuildFunc hands back for one HTTP call: everything
// Base needs to dispatch it through the shared HttpTransport.
type RequestSpec struct {
	Method          string
	URL             string
	Headers         map[string]string
	Params          map[string]string
	Body            io.Reader
	BodySize        uint64
	HasBodySize     bool
	Sink            io.Writer // nil means buffer the response body for Parse
	FollowRedirects bool
}

// BuildFunc constructs the HTTP request for one operation invocation; it
// runs fresh on every retry attempt so it can pick up a refreshed token.
type BuildFunc func(ctx context.Context) (RequestSpec, error)

// AuthorizeFunc stamps credentials onto spec (a Bearer header, SigV4
// signature, or similar) immediately before dispatch.
type AuthorizeFunc func(ctx context.Context, spec *RequestSpec) error

// ParseFunc converts a successful HTTP response into T. body is nil when
// spec.Sink was set (the caller streamed the response itself). rq is the
// operation's own in-flight Request, exposed so a Parse step that issues
// its own follow-up sub-requests (e.g. an S3 copy-then-delete) can root
// them on the same per-attempt ctx and register them with rq.AddChild so
// cancelling the parent cancels them too.
type ParseFunc[T any] func(ctx context.Context, rq *engine.Request[T], resp *cloudkit.Response, body []byte) (T, error)

// Base wires engine.Options (including the reauth hook) and an
// HttpTransport into the default build->authorize->send->parse pipeline.
// The REST adapters (providers/oauthdrive, providers/s3) embed Base and
// call Do for each Provider method; providers/e2e does not use Base.
type Base struct {
	label     string
	transport cloudkit.HttpTransport
	reauth    engine.ReauthFn
	opts      engine.Options
}

// NewBase constructs a Base for one provider instance. reauth may be nil
// for adapters (like a static-credential S3 bucket) that never need to
// refresh mid-flight.
func NewBase(label string, transport cloudkit.HttpTransport, reauth engine.ReauthFn, opts engine.Options) Base {
	opts.Reauth = reauth
	return Base{label: label, transport: transport, reauth: reauth, opts: opts}
}

// Label returns the provider instance's identity string.
func (b *Base) Label() string { return b.label }

// Do runs the standard pipeline for one operation as a cloudkit.Request[T]:
// build the request, authorize it, dispatch it through the transport
// capability, classify non-2xx responses as retryable/auth/semantic
// errors, and parse a 2xx body into T. Retry and reauth are handled by the
// engine around this Op; build/authorize run again on every attempt.
func Do[T any](ctx context.Context, b *Base, build BuildFunc, authorize AuthorizeFunc, parse ParseFunc[T]) cloudkit.Request[T] {
	op := func(ctx context.Context, rq *engine.Request[T]) cloudkit.EitherError[T] {
		spec, err := build(ctx)
		if err != nil {
			var ckErr *cloudkit.Error
			if errors.As(err, &ckErr) {
				return cloudkit.Err[T](ckErr)
			}
			return cloudkit.Err[T](cloudkit.NewError(cloudkit.CodeInvalidArgument, err.Error()))
		}
		if authorize != nil {
			if err := authorize(ctx, &spec); err != nil {
				return cloudkit.Err[T](cloudkit.NewError(cloudkit.CodeUnauthorized, err.Error()))
			}
		}

		rb := b.transport.Create(spec.URL, spec.Method, spec.FollowRedirects)
		for k, v := range spec.Headers {
			rb.SetHeader(k, v)
		}
		for k, v := range spec.Params {
			rb.SetParameter(k, v)
		}

		var upload cloudkit.UploadReader
		if spec.Body != nil {
			upload = &sizedReader{r: spec.Body, size: spec.BodySize, known: spec.HasBodySize}
		}

		buf := &bytes.Buffer{}
		sink := spec.Sink
		if sink == nil {
			sink = buf
		}

		resp, err := rb.Send(ctx, upload, sink, rq.Callback())
		if err != nil {
			return cloudkit.Err[T](cloudkit.NewError(cloudkit.CodeUnknown, err.Error()))
		}

		if !rq.Callback().IsSuccess(resp.HTTPCode, resp.Headers) {
			return cloudkit.Err[T](httpError(resp))
		}

		var body []byte
		if spec.Sink == nil {
			body = buf.Bytes()
		}
		v, err := parse(ctx, rq, resp, body)
		if err != nil {
			return cloudkit.Err[T](cloudkit.NewError(cloudkit.CodeFailure, err.Error()))
		}
		return cloudkit.Ok(v)
	}
	return engine.New(ctx, b.opts, op)
}

// httpError classifies a non-2xx Response into the appropriate cloudkit
// error taxonomy bucket by status code alone. Do calls ParseFunc only for
// successful responses, so a provider-specific error body is never parsed.
func httpError(resp *cloudkit.Response) *cloudkit.Error {
	switch resp.HTTPCode {
	case 401, 403:
		return cloudkit.NewError(cloudkit.Code(resp.HTTPCode), fmt.Sprintf("http %d", resp.HTTPCode))
	case 404:
		return cloudkit.NewError(cloudkit.CodeNotFound, "http 404")
	case 429:
		return cloudkit.NewError(cloudkit.Code(429), "http 429")
	default:
		return cloudkit.NewError(cloudkit.Code(resp.HTTPCode), fmt.Sprintf("http %d", resp.HTTPCode))
	}
}

// sizedReader adapts a plain io.Reader plus an optional known size into
// cloudkit.UploadReader.
type sizedReader struct {
	r     io.Reader
	size  uint64
	known bool
}

func (s *sizedReader) Read(p []byte) (int, error) { return s.r.Read(p) }
func (s *sizedReader) Size() (uint64, bool)        { return s.size, s.known }

// EncodeOpaqueID packs a provider label and item ID into the single
// opaque token the local daemon's streaming endpoint accepts as its "id"
// query parameter (§6's local daemon URL form).
func EncodeOpaqueID(label, itemID string) string {
	return base64.URLEncoding.EncodeToString([]byte(label + "\x00" + itemID))
}

// DecodeOpaqueID reverses EncodeOpaqueID.
func DecodeOpaqueID(opaque string) (label, itemID string, err error) {
	raw, err := base64.URLEncoding.DecodeString(opaque)
	if err != nil {
		return "", "", fmt.Errorf("provider: decode opaque id: %w", err)
	}
	parts := bytes.SplitN(raw, []byte{0}, 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("provider: malformed opaque id")
	}
	return string(parts[0]), string(parts[1]), nil
}

// DefaultFileDaemonURL builds the local-daemon streaming URL (§6) a
// provider hands back from GetItemURL when it has no provider-native
// direct-download link: http://127.0.0.1:<port>/?state=<state>&id=<opaque>&size=<n>.
func DefaultFileDaemonURL(port int, state, label, itemID string, size uint64) string {
	q := url.Values{
		"state": {state},
		"id":    {EncodeOpaqueID(label, itemID)},
		"size":  {fmt.Sprintf("%d", size)},
	}
	return fmt.Sprintf("http://127.0.0.1:%d/?%s", port, q.Encode())
}
