package e2e

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cloudkit/cloudkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSDK struct {
	loginBySessionErr error
	loginBlob         string
	loginErr          error
	logoutCalls       int

	rootID   string
	items    map[string]cloudkit.Item
	children map[string][]cloudkit.Item

	intents chan HTTPIntent
}

func newFakeSDK() *fakeSDK {
	return &fakeSDK{
		items:    map[string]cloudkit.Item{},
		children: map[string][]cloudkit.Item{},
		intents:  make(chan HTTPIntent, 1),
	}
}

func (f *fakeSDK) LoginBySession(ctx context.Context, sessionBlob string) error { return f.loginBySessionErr }
func (f *fakeSDK) Login(ctx context.Context, username, password string) (string, error) {
	return f.loginBlob, f.loginErr
}
func (f *fakeSDK) Logout(ctx context.Context) error { f.logoutCalls++; return nil }

func (f *fakeSDK) FetchNodes(ctx context.Context) (string, error) { return f.rootID, nil }
func (f *fakeSDK) GetItem(ctx context.Context, id string) (cloudkit.Item, error) {
	it, ok := f.items[id]
	if !ok {
		return cloudkit.Item{}, errors.New("not found")
	}
	return it, nil
}
func (f *fakeSDK) ListChildren(ctx context.Context, id string) ([]cloudkit.Item, error) {
	return f.children[id], nil
}
func (f *fakeSDK) Move(ctx context.Context, id, dstParentID string) (cloudkit.Item, error) {
	it := f.items[id]
	it.ID = dstParentID + "/" + it.Filename
	return it, nil
}
func (f *fakeSDK) Rename(ctx context.Context, id, newName string) (cloudkit.Item, error) {
	it := f.items[id]
	it.Filename = newName
	return it, nil
}
func (f *fakeSDK) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeSDK) Mkdir(ctx context.Context, parentID, name string) (cloudkit.Item, error) {
	return cloudkit.Item{ID: parentID + "/" + name, Filename: name, Type: cloudkit.FileTypeDirectory}, nil
}
func (f *fakeSDK) Upload(ctx context.Context, parentID, name string, r RandomAccessReader, abort <-chan struct{}) (cloudkit.Item, error) {
	buf := make([]byte, 4096)
	n, _ := r.ReadAt(buf, 0)
	size := uint64(n)
	return cloudkit.Item{ID: parentID + "/" + name, Filename: name, Size: &size}, nil
}
func (f *fakeSDK) Download(ctx context.Context, id string, rng cloudkit.Range, w io.Writer, abort <-chan struct{}) error {
	_, err := w.Write([]byte("downloaded"))
	return err
}
func (f *fakeSDK) GeneralData(ctx context.Context) (cloudkit.GeneralData, error) {
	return cloudkit.GeneralData{Username: "e2e-user"}, nil
}

func (f *fakeSDK) Intents() <-chan HTTPIntent                                  { return f.intents }
func (f *fakeSDK) Resolve(intentID string, resp *cloudkit.Response, err error) {}

type nopTransport struct{}

func (nopTransport) Create(url, method string, followRedirects bool) cloudkit.RequestBuilder {
	return nopBuilder{}
}

type nopBuilder struct{}

func (nopBuilder) SetHeader(string, string)    {}
func (nopBuilder) SetParameter(string, string) {}
func (nopBuilder) URL() string                 { return "" }
func (nopBuilder) Method() string              { return "" }
func (nopBuilder) Send(ctx context.Context, in io.Reader, out io.Writer, cb cloudkit.TransportCallback) (*cloudkit.Response, error) {
	return &cloudkit.Response{HTTPCode: 200}, nil
}

func TestAdapter_RootDirectory_FetchesThenResolvesItem(t *testing.T) {
	t.Parallel()

	sdk := newFakeSDK()
	sdk.rootID = "root"
	sdk.items["root"] = cloudkit.Item{ID: "root", Filename: "/", Type: cloudkit.FileTypeDirectory}
	a := New(context.Background(), "e2e-store", sdk, nopTransport{})

	res := a.RootDirectory(context.Background()).Result(context.Background())
	require.True(t, res.IsOk())
	assert.Equal(t, "root", res.Value.ID)
}

func TestAdapter_ListDirectoryPage_ReturnsAllChildrenOnFirstPage(t *testing.T) {
	t.Parallel()

	sdk := newFakeSDK()
	sdk.children["folder"] = []cloudkit.Item{{ID: "folder/a.txt", Filename: "a.txt"}}
	a := New(context.Background(), "e2e-store", sdk, nopTransport{})

	res := a.ListDirectoryPage(context.Background(), cloudkit.Item{ID: "folder"}, "").Result(context.Background())
	require.True(t, res.IsOk())
	require.Len(t, res.Value.Items, 1)

	res2 := a.ListDirectoryPage(context.Background(), cloudkit.Item{ID: "folder"}, "some-token").Result(context.Background())
	require.True(t, res2.IsOk())
	assert.Empty(t, res2.Value.Items)
}

func TestAdapter_Login_LogsOutOnCancelBeforeAuthorized(t *testing.T) {
	t.Parallel()

	sdk := newFakeSDK()
	sdk.loginErr = errors.New("slow provider")
	a := New(context.Background(), "e2e-store", sdk, nopTransport{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := a.Login(ctx, "user", "pass").Result(context.Background())
	require.False(t, res.IsOk())
	assert.Equal(t, cloudkit.CodeAborted, res.Err.Code)
	assert.Equal(t, 1, sdk.logoutCalls)
}

func TestAdapter_Login_SucceedsAndStoresSessionBlob(t *testing.T) {
	t.Parallel()

	sdk := newFakeSDK()
	sdk.loginBlob = "session-blob-xyz"
	a := New(context.Background(), "e2e-store", sdk, nopTransport{})

	res := a.Login(context.Background(), "user", "pass").Result(context.Background())
	require.True(t, res.IsOk())
	assert.Equal(t, "session-blob-xyz", res.Value.AccessToken)
	assert.True(t, a.authorized)
}

func TestAdapter_GetItemURL_AlwaysFails(t *testing.T) {
	t.Parallel()

	a := New(context.Background(), "e2e-store", newFakeSDK(), nopTransport{})
	res := a.GetItemURL(context.Background(), cloudkit.Item{ID: "x"}).Result(context.Background())
	require.False(t, res.IsOk())
	assert.Equal(t, cloudkit.CodeInvalidArgument, res.Err.Code)
}

func TestAdapter_ExchangeCode_AlwaysFails(t *testing.T) {
	t.Parallel()

	a := New(context.Background(), "e2e-store", newFakeSDK(), nopTransport{})
	res := a.ExchangeCode(context.Background(), "irrelevant").Result(context.Background())
	require.False(t, res.IsOk())
}

func TestAdapter_UploadFile_ReadsThroughRandomAccessShim(t *testing.T) {
	t.Parallel()

	sdk := newFakeSDK()
	a := New(context.Background(), "e2e-store", sdk, nopTransport{})

	reader := &staticUploadReader{data: []byte("hello world")}
	res := a.UploadFile(context.Background(), cloudkit.Item{ID: "folder"}, "hello.txt", reader).Result(context.Background())
	require.True(t, res.IsOk())
	require.NotNil(t, res.Value.Size)
	assert.Equal(t, uint64(len("hello world")), *res.Value.Size)
}

func TestAdapter_DownloadFile_WritesToSink(t *testing.T) {
	t.Parallel()

	sdk := newFakeSDK()
	a := New(context.Background(), "e2e-store", sdk, nopTransport{})

	var sink memWriter
	res := a.DownloadFile(context.Background(), cloudkit.Item{ID: "folder/a.txt"}, cloudkit.Range{Size: cloudkit.FullRange}, &sink).Result(context.Background())
	require.True(t, res.IsOk())
	assert.Equal(t, "downloaded", string(sink.data))
}

func TestRandomAccessShim_ReadAtBuffersForwardOnly(t *testing.T) {
	t.Parallel()

	shim := &randomAccessShim{r: &staticUploadReader{data: []byte("abcdefgh")}}
	buf := make([]byte, 4)
	n, err := shim.ReadAt(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, "cdef", string(buf[:n]))
}

// staticUploadReader is a small in-memory cloudkit.UploadReader fixture.
type staticUploadReader struct {
	data []byte
	pos  int
}

func (r *staticUploadReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func (r *staticUploadReader) Size() (uint64, bool) { return uint64(len(r.data)), true }

type memWriter struct{ data []byte }

func (w *memWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}
