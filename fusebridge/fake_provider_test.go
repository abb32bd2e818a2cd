package fusebridge

import (
	"context"
	"strconv"
	"sync"

	"github.com/cloudkit/cloudkit"
)

// doneRequest is a synchronously-resolved cloudkit.Request[T] fixture; none
// of these tests exercise cancellation or progress, just the final result.
type doneRequest[T any] struct {
	value T
	err   *cloudkit.Error
}

func ok[T any](v T) doneRequest[T]              { return doneRequest[T]{value: v} }
func fail[T any](err *cloudkit.Error) doneRequest[T] { return doneRequest[T]{err: err} }

func (d doneRequest[T]) Result(ctx context.Context) cloudkit.EitherError[T] {
	if d.err != nil {
		return cloudkit.Err[T](d.err)
	}
	return cloudkit.Ok(d.value)
}
func (d doneRequest[T]) Finish(ctx context.Context)   {}
func (d doneRequest[T]) Cancel()                      {}
func (d doneRequest[T]) Pause()                       {}
func (d doneRequest[T]) Resume()                      {}
func (d doneRequest[T]) State() cloudkit.RequestState { return cloudkit.StateDone }

// fakeProvider is an in-memory single-directory-level provider fixture:
// enough to drive lookup/readdir/mkdir/create/rename/unlink without a real
// backend. Item IDs are just names; the fixture doesn't model nested
// directories beyond the root.
type fakeProvider struct {
	mu       sync.Mutex
	root     cloudkit.Item
	children map[string]cloudkit.Item // name -> item, root's children only
	files    map[string][]byte        // item ID -> uploaded bytes
	nextID   int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		root:     cloudkit.Item{ID: "root", Filename: "", Type: cloudkit.FileTypeDirectory},
		children: map[string]cloudkit.Item{},
		files:    map[string][]byte{},
	}
}

func (p *fakeProvider) Label() string { return "fake" }

func (p *fakeProvider) RootDirectory(ctx context.Context) cloudkit.Request[cloudkit.Item] {
	return ok(p.root)
}

func (p *fakeProvider) GetItemData(ctx context.Context, id string) cloudkit.Request[cloudkit.Item] {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, item := range p.children {
		if item.ID == id {
			return ok(item)
		}
	}
	return fail[cloudkit.Item](cloudkit.NewError(cloudkit.CodeNotFound, "no such item"))
}

func (p *fakeProvider) ListDirectoryPage(ctx context.Context, item cloudkit.Item, pageToken string) cloudkit.Request[cloudkit.DirectoryPage] {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := make([]cloudkit.Item, 0, len(p.children))
	for _, c := range p.children {
		items = append(items, c)
	}
	return ok(cloudkit.DirectoryPage{Items: items})
}

func (p *fakeProvider) GetItemURL(ctx context.Context, item cloudkit.Item) cloudkit.Request[string] {
	return fail[string](cloudkit.NewError(cloudkit.CodeFailure, "no direct url"))
}

func (p *fakeProvider) GetThumbnail(ctx context.Context, item cloudkit.Item) cloudkit.Request[[]byte] {
	return fail[[]byte](cloudkit.NewError(cloudkit.CodeFailure, "no thumbnail"))
}

func (p *fakeProvider) CreateDirectory(ctx context.Context, parent cloudkit.Item, name string) cloudkit.Request[cloudkit.Item] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	item := cloudkit.Item{ID: idOf(p.nextID), Filename: name, Type: cloudkit.FileTypeDirectory}
	p.children[name] = item
	return ok(item)
}

func (p *fakeProvider) MoveItem(ctx context.Context, item, dstParent cloudkit.Item) cloudkit.Request[cloudkit.Item] {
	return ok(item)
}

func (p *fakeProvider) RenameItem(ctx context.Context, item cloudkit.Item, newName string) cloudkit.Request[cloudkit.Item] {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, c := range p.children {
		if c.ID == item.ID {
			delete(p.children, name)
			c.Filename = newName
			p.children[newName] = c
			return ok(c)
		}
	}
	item.Filename = newName
	return ok(item)
}

func (p *fakeProvider) DeleteItem(ctx context.Context, item cloudkit.Item) cloudkit.Request[struct{}] {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, c := range p.children {
		if c.ID == item.ID {
			delete(p.children, name)
			delete(p.files, c.ID)
			return ok(struct{}{})
		}
	}
	return fail[struct{}](cloudkit.NewError(cloudkit.CodeNotFound, "no such item"))
}

func (p *fakeProvider) UploadFile(ctx context.Context, parent cloudkit.Item, name string, reader cloudkit.UploadReader) cloudkit.Request[cloudkit.Item] {
	buf := make([]byte, 0, 64)
	tmp := make([]byte, 32)
	for {
		n, err := reader.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if err != nil {
			break
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	size := uint64(len(buf))
	item := cloudkit.Item{ID: idOf(p.nextID), Filename: name, Type: cloudkit.FileTypeUnknown, Size: &size}
	p.children[name] = item
	p.files[item.ID] = buf
	return ok(item)
}

func (p *fakeProvider) DownloadFile(ctx context.Context, item cloudkit.Item, r cloudkit.Range, w cloudkit.DownloadWriter) cloudkit.Request[struct{}] {
	p.mu.Lock()
	data := p.files[item.ID]
	p.mu.Unlock()

	start := r.Start
	if start > uint64(len(data)) {
		start = uint64(len(data))
	}
	end := uint64(len(data))
	if e, ok := r.End(); ok && e < end {
		end = e
	}
	_, err := w.Write(data[start:end])
	if err != nil {
		return fail[struct{}](cloudkit.NewError(cloudkit.CodeInternal, err.Error()))
	}
	return ok(struct{}{})
}

func (p *fakeProvider) ExchangeCode(ctx context.Context, code string) cloudkit.Request[cloudkit.Token] {
	return fail[cloudkit.Token](cloudkit.NewError(cloudkit.CodeFailure, "not supported"))
}

func (p *fakeProvider) GetGeneralData(ctx context.Context) cloudkit.Request[cloudkit.GeneralData] {
	return ok(cloudkit.GeneralData{})
}

func idOf(n int) string {
	return "item-" + strconv.Itoa(n)
}

var _ cloudkit.Provider = (*fakeProvider)(nil)
