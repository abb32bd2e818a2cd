package cloudkit

import (
	"context"
	"io"
)

// TransportCallback observes a single dispatched HTTP request's lifecycle.
// Abort returning true terminates the request promptly with a cancelled
// outcome; Pause returning true stalls body I/O until it returns false.
// ProgressDownload/ProgressUpload are invoked monotonically; total == 0
// means the size is unknown (§9's recommendation: emit progress(now, now)
// to signal indeterminate size).
type TransportCallback interface {
	IsSuccess(httpCode int, headers map[string]string) bool
	Abort() bool
	Pause() bool
	ProgressDownload(total, now uint64)
	ProgressUpload(total, now uint64)
}

// Response is the outcome of a dispatched HTTP request that reached the
// server: any non-2xx status is still an Ok(Response), never an Err — only
// transport-level failures (DNS, TLS, connection reset before headers) are
// delivered as errors by [RequestBuilder.Send].
type Response struct {
	HTTPCode int
	Headers  map[string]string
}

// RequestBuilder accumulates headers/query parameters for one HTTP call
// before it is dispatched.
type RequestBuilder interface {
	SetHeader(key, value string)
	SetParameter(key, value string)
	URL() string
	Method() string

	// Send streams bodyInput to the server and bodyOutput from it,
	// notifying cb of progress/abort/pause. It returns a transport-level
	// error only when the request never reached an HTTP response (DNS,
	// TLS, reset); HTTP failures are reported via the Response's code.
	Send(ctx context.Context, bodyInput io.Reader, bodyOutput io.Writer, cb TransportCallback) (*Response, error)
}

// HttpTransport is the sole capability the engine needs to do network I/O;
// concrete transports (net/http-backed or otherwise) satisfy it. DNS, TLS
// and the wire implementation are outside this module's scope.
type HttpTransport interface {
	Create(url, method string, followRedirects bool) RequestBuilder
}

// ConsentUI is the external agent that opens a browser (or equivalent) to
// an authorize-library URL and returns the code the user consented to, or
// an error if the user cancelled.
type ConsentUI interface {
	Show(ctx context.Context, authorizeURL string) (code string, err error)
}

// Crypto is the capability the E2E-encrypted provider adapter (and any
// other adapter that needs it) consumes for primitives this module does not
// implement itself: AES-CBC, HMAC-SHA256, base64.
type Crypto interface {
	AESCBCEncrypt(key, iv, plaintext []byte) ([]byte, error)
	AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error)
	HMACSHA256(key, data []byte) []byte
}
