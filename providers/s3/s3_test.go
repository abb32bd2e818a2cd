package s3

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudkit/cloudkit"
	"github.com/cloudkit/cloudkit/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedTransport struct {
	bodies  []string
	codes   []int
	calls   atomic.Int32
	headers []map[string]string
}

func (t *scriptedTransport) Create(url, method string, followRedirects bool) cloudkit.RequestBuilder {
	return &scriptedBuilder{t: t, url: url, method: method, headers: map[string]string{}}
}

type scriptedBuilder struct {
	t       *scriptedTransport
	url     string
	method  string
	headers map[string]string
}

func (b *scriptedBuilder) SetHeader(k, v string)    { b.headers[k] = v }
func (b *scriptedBuilder) SetParameter(string, string) {}
func (b *scriptedBuilder) URL() string              { return b.url }
func (b *scriptedBuilder) Method() string           { return b.method }

func (b *scriptedBuilder) Send(ctx context.Context, in io.Reader, out io.Writer, cb cloudkit.TransportCallback) (*cloudkit.Response, error) {
	i := b.t.calls.Add(1) - 1
	b.t.headers = append(b.t.headers, b.headers)
	if out != nil {
		_, _ = out.Write([]byte(b.t.bodies[i]))
	}
	return &cloudkit.Response{HTTPCode: b.t.codes[i]}, nil
}

func newTestAdapter(transport cloudkit.HttpTransport) *Adapter {
	return New("bucket-store", "AKID", "secret", "us-east-1", transport, engine.Options{BaseBackoff: 0})
}

func TestAdapter_ListDirectoryPage_RootListsBuckets(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{
		bodies: []string{`<ListAllMyBucketsResult><Buckets><Bucket><Name>photos</Name></Bucket><Bucket><Name>backups</Name></Bucket></Buckets></ListAllMyBucketsResult>`},
		codes:  []int{200},
	}
	a := newTestAdapter(transport)

	res := a.ListDirectoryPage(context.Background(), cloudkit.Item{ID: ""}, "").Result(context.Background())
	require.True(t, res.IsOk())
	require.Len(t, res.Value.Items, 2)
	assert.Equal(t, "photos", res.Value.Items[0].ID)
	assert.Equal(t, cloudkit.FileTypeDirectory, res.Value.Items[0].Type)

	require.Len(t, transport.headers, 1)
	assert.Contains(t, transport.headers[0]["Authorization"], "AWS4-HMAC-SHA256")
}

func TestAdapter_ListDirectoryPage_BucketTranslatesCommonPrefixes(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{
		bodies: []string{`<ListBucketResult><CommonPrefixes><Prefix>vacation/</Prefix></CommonPrefixes><Contents><Key>readme.txt</Key><Size>10</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents></ListBucketResult>`},
		codes:  []int{200},
	}
	a := newTestAdapter(transport)

	res := a.ListDirectoryPage(context.Background(), cloudkit.Item{ID: "photos"}, "").Result(context.Background())
	require.True(t, res.IsOk())
	require.Len(t, res.Value.Items, 2)
	assert.Equal(t, "photos/vacation/", res.Value.Items[0].ID)
	assert.Equal(t, cloudkit.FileTypeDirectory, res.Value.Items[0].Type)
	assert.Equal(t, "photos/readme.txt", res.Value.Items[1].ID)
}

func TestAdapter_MoveItem_RefusesBucketMove(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(&scriptedTransport{})
	res := a.MoveItem(context.Background(), cloudkit.Item{ID: "photos"}, cloudkit.Item{ID: "backups"}).Result(context.Background())
	require.False(t, res.IsOk())
	assert.Equal(t, cloudkit.CodeForbidden, res.Err.Code)
}

func TestAdapter_RenameItem_RefusesBucketRename(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(&scriptedTransport{})
	res := a.RenameItem(context.Background(), cloudkit.Item{ID: "photos"}, "new-name").Result(context.Background())
	require.False(t, res.IsOk())
	assert.Equal(t, cloudkit.CodeForbidden, res.Err.Code)
}

func TestAdapter_MoveItem_ObjectDoesCopyThenDelete(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{
		bodies: []string{"", ""},
		codes:  []int{200, 204},
	}
	a := newTestAdapter(transport)

	res := a.MoveItem(context.Background(), cloudkit.Item{ID: "photos/a.jpg"}, cloudkit.Item{ID: "backups"}).Result(context.Background())
	require.True(t, res.IsOk())
	assert.Equal(t, "backups/a.jpg", res.Value.ID)
	assert.Equal(t, int32(2), transport.calls.Load())
}

func TestAdapter_MoveItem_DirectoryRecursesOverChildren(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{
		bodies: []string{
			`<ListBucketResult><Contents><Key>vacation/</Key><Size>0</Size></Contents>` +
				`<Contents><Key>vacation/a.txt</Key><Size>5</Size></Contents>` +
				`<Contents><Key>vacation/sub/b.txt</Key><Size>7</Size></Contents></ListBucketResult>`,
			"", "", // copy+delete vacation/
			"", "", // copy+delete vacation/a.txt
			"", "", // copy+delete vacation/sub/b.txt
		},
		codes: []int{200, 200, 204, 200, 204, 200, 204},
	}
	a := newTestAdapter(transport)

	res := a.MoveItem(context.Background(), cloudkit.Item{ID: "photos/vacation/"}, cloudkit.Item{ID: "backups"}).Result(context.Background())
	require.True(t, res.IsOk())
	assert.Equal(t, "backups/vacation/", res.Value.ID)
	assert.Equal(t, int32(7), transport.calls.Load())

	require.Len(t, transport.headers, 7)
	assert.Equal(t, "/photos/vacation%2F", transport.headers[1]["x-amz-copy-source"])
	assert.Equal(t, "/photos/vacation%2Fa.txt", transport.headers[3]["x-amz-copy-source"])
	assert.Equal(t, "/photos/vacation%2Fsub%2Fb.txt", transport.headers[5]["x-amz-copy-source"])
}

func TestAdapter_RenameItem_DirectoryRecursesOverChildren(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{
		bodies: []string{
			`<ListBucketResult><Contents><Key>vacation/</Key><Size>0</Size></Contents>` +
				`<Contents><Key>vacation/a.txt</Key><Size>5</Size></Contents></ListBucketResult>`,
			"", "", // copy+delete vacation/
			"", "", // copy+delete vacation/a.txt
		},
		codes: []int{200, 200, 204, 200, 204},
	}
	a := newTestAdapter(transport)

	res := a.RenameItem(context.Background(), cloudkit.Item{ID: "photos/vacation/"}, "trip").Result(context.Background())
	require.True(t, res.IsOk())
	assert.Equal(t, "photos/trip/", res.Value.ID)
	assert.Equal(t, int32(5), transport.calls.Load())
}

// blockingAfterTransport answers the first n calls immediately with 200 and
// then hangs every later Send until ctx is cancelled, so a test can let the
// copy leg of a move finish, catch the delete leg mid-flight, and observe
// whether cancelling the parent Request reaches that child.
type blockingAfterTransport struct {
	n     int32
	calls atomic.Int32
}

func (t *blockingAfterTransport) Create(url, method string, followRedirects bool) cloudkit.RequestBuilder {
	return &blockingAfterBuilder{t: t}
}

type blockingAfterBuilder struct{ t *blockingAfterTransport }

func (b *blockingAfterBuilder) SetHeader(string, string)    {}
func (b *blockingAfterBuilder) SetParameter(string, string) {}
func (b *blockingAfterBuilder) URL() string                 { return "" }
func (b *blockingAfterBuilder) Method() string              { return "" }

func (b *blockingAfterBuilder) Send(ctx context.Context, in io.Reader, out io.Writer, cb cloudkit.TransportCallback) (*cloudkit.Response, error) {
	i := b.t.calls.Add(1) - 1
	if i < b.t.n {
		return &cloudkit.Response{HTTPCode: 200}, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAdapter_MoveItem_CancelCascadesToPendingDeleteChild(t *testing.T) {
	t.Parallel()

	transport := &blockingAfterTransport{n: 1} // the copy succeeds, the delete hangs
	a := newTestAdapter(transport)

	rq := a.MoveItem(context.Background(), cloudkit.Item{ID: "photos/a.jpg"}, cloudkit.Item{ID: "backups"})
	concreteRq, ok := rq.(*engine.Request[cloudkit.Item])
	require.True(t, ok)

	require.Eventually(t, func() bool { return transport.calls.Load() >= 2 }, time.Second, time.Millisecond,
		"delete sub-request never started")

	concreteRq.Cancel()

	res := rq.Result(context.Background())
	require.False(t, res.IsOk())
	assert.Equal(t, cloudkit.CodeAborted, res.Err.Code)
	assert.Equal(t, cloudkit.StateCancelled, rq.State())
}

func TestAdapter_GetItemURL_UnsignedDirectLink(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(&scriptedTransport{})
	res := a.GetItemURL(context.Background(), cloudkit.Item{ID: "photos/a.jpg"}).Result(context.Background())
	require.True(t, res.IsOk())
	assert.Equal(t, "https://photos.s3.us-east-1.amazonaws.com/a.jpg", res.Value)
}

func TestSplitID(t *testing.T) {
	t.Parallel()

	bucket, key := splitID("photos/a/b.jpg")
	assert.Equal(t, "photos", bucket)
	assert.Equal(t, "a/b.jpg", key)

	bucket, key = splitID("photos")
	assert.Equal(t, "photos", bucket)
	assert.Equal(t, "", key)
}
