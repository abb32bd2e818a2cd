// Package oauthdrive implements the generic OAuth-family cloudkit.Provider
// adapter (§4.6): a REST/JSON drive API authorized with a Bearer token,
// covering the shape shared by Dropbox-style and Graph-style backends. Item
// and pagination fields follow tonimelisma-onedrive-go's Item/DeltaPage,
// normalized the same way: callers never see raw API JSON, only cloudkit.Item.
package oauthdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/cloudkit/cloudkit"
	"github.com/cloudkit/cloudkit/auth"
	"github.com/cloudkit/cloudkit/engine"
	"github.com/cloudkit/cloudkit/provider"
)

// Endpoints is the set of REST routes an OAuth-family backend exposes;
// Dropbox, a generic Graph-style drive, and similar APIs each supply their
// own set when constructing an Adapter.
type Endpoints struct {
	APIBase       string // e.g. "https://api.dropboxapi.com/2"
	AuthorizeURL  string // e.g. "https://www.dropbox.com/oauth2/authorize"
	TokenURL      string // e.g. "https://api.dropboxapi.com/oauth2/token"
	RootID        string // ID the backend uses for its root folder, often ""
	ClientID      string
	ClientSecret  string
	RedirectURI   string
}

// Adapter is the generic OAuth-family cloudkit.Provider.
type Adapter struct {
	provider.Base
	label     string
	endpoints Endpoints
	mgr       *auth.Manager
}

// New builds an Adapter. mgr must already be constructed with a Refresher
// that talks to endpoints.TokenURL; it's threaded through separately since
// auth.Manager has no dependency on the endpoints/transport used for the
// item-listing calls.
func New(label string, endpoints Endpoints, transport cloudkit.HttpTransport, mgr *auth.Manager, opts engine.Options) *Adapter {
	a := &Adapter{label: label, endpoints: endpoints, mgr: mgr}
	a.Base = provider.NewBase(label, transport, mgr.Reauth, opts)
	return a
}

func (a *Adapter) Label() string { return a.label }

// bearerAuthorize stamps the current access token as a Bearer header; it's
// re-run on every retry so a reauth in between picks up the fresh token.
func (a *Adapter) bearerAuthorize(ctx context.Context, spec *provider.RequestSpec) error {
	tok, ok := a.mgr.Token()
	if !ok {
		return fmt.Errorf("oauthdrive: no access token available")
	}
	if spec.Headers == nil {
		spec.Headers = map[string]string{}
	}
	spec.Headers["Authorization"] = "Bearer " + tok.AccessToken
	return nil
}

// AuthorizeLibraryURL is the URL a ConsentUI opens; state is an
// adapter-generated nonce the caller must round-trip back through the
// daemon's callback endpoint before ExchangeCode is called (§4.3).
func (a *Adapter) AuthorizeLibraryURL(state string) string {
	v := url.Values{}
	v.Set("client_id", a.endpoints.ClientID)
	v.Set("redirect_uri", a.endpoints.RedirectURI)
	v.Set("response_type", "code")
	v.Set("state", state)
	return a.endpoints.AuthorizeURL + "?" + v.Encode()
}

type driveItem struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	IsFolder     bool    `json:"is_folder"`
	Size         *int64  `json:"size,omitempty"`
	ModifiedAt   *string `json:"modified_at,omitempty"`
	MimeType     string  `json:"mime_type,omitempty"`
	DownloadURL  string  `json:"download_url,omitempty"`
}

type listResponse struct {
	Items      []driveItem `json:"items"`
	NextLink   string      `json:"next_link,omitempty"`
	DeltaLink  string      `json:"delta_link,omitempty"`
}

func toItem(d driveItem) cloudkit.Item {
	it := cloudkit.Item{
		ID:       d.ID,
		Filename: d.Name,
		Type:     classify(d),
		URL:      d.DownloadURL,
	}
	if d.Size != nil {
		sz := uint64(*d.Size)
		it.Size = &sz
	}
	if d.ModifiedAt != nil {
		if ts, err := time.Parse(time.RFC3339, *d.ModifiedAt); err == nil {
			it.Timestamp = &ts
		}
	}
	return it
}

func classify(d driveItem) cloudkit.FileType {
	if d.IsFolder {
		return cloudkit.FileTypeDirectory
	}
	switch {
	case strings.HasPrefix(d.MimeType, "image/"):
		return cloudkit.FileTypeImage
	case strings.HasPrefix(d.MimeType, "video/"):
		return cloudkit.FileTypeVideo
	case strings.HasPrefix(d.MimeType, "audio/"):
		return cloudkit.FileTypeAudio
	default:
		return cloudkit.FileTypeUnknown
	}
}

func (a *Adapter) RootDirectory(ctx context.Context) cloudkit.Request[cloudkit.Item] {
	return a.GetItemData(ctx, a.endpoints.RootID)
}

func (a *Adapter) GetItemData(ctx context.Context, id string) cloudkit.Request[cloudkit.Item] {
	return provider.Do[cloudkit.Item](ctx, &a.Base,
		func(ctx context.Context) (provider.RequestSpec, error) {
			return provider.RequestSpec{
				Method: "GET",
				URL:    a.endpoints.APIBase + "/items/" + url.PathEscape(id),
			}, nil
		},
		a.bearerAuthorize,
		func(ctx context.Context, rq *engine.Request[cloudkit.Item], resp *cloudkit.Response, body []byte) (cloudkit.Item, error) {
			var d driveItem
			if err := json.Unmarshal(body, &d); err != nil {
				return cloudkit.Item{}, err
			}
			return toItem(d), nil
		},
	)
}

func (a *Adapter) ListDirectoryPage(ctx context.Context, item cloudkit.Item, pageToken string) cloudkit.Request[cloudkit.DirectoryPage] {
	return provider.Do[cloudkit.DirectoryPage](ctx, &a.Base,
		func(ctx context.Context) (provider.RequestSpec, error) {
			spec := provider.RequestSpec{
				Method: "GET",
				URL:    a.endpoints.APIBase + "/items/" + url.PathEscape(item.ID) + "/children",
				Params: map[string]string{},
			}
			if pageToken != "" {
				spec.Params["page_token"] = pageToken
			}
			return spec, nil
		},
		a.bearerAuthorize,
		func(ctx context.Context, rq *engine.Request[cloudkit.DirectoryPage], resp *cloudkit.Response, body []byte) (cloudkit.DirectoryPage, error) {
			var lr listResponse
			if err := json.Unmarshal(body, &lr); err != nil {
				return cloudkit.DirectoryPage{}, err
			}
			page := cloudkit.DirectoryPage{NextPageToken: lr.NextLink}
			for _, d := range lr.Items {
				page.Items = append(page.Items, toItem(d))
			}
			return page, nil
		},
	)
}

func (a *Adapter) GetItemURL(ctx context.Context, item cloudkit.Item) cloudkit.Request[string] {
	return provider.Do[string](ctx, &a.Base,
		func(ctx context.Context) (provider.RequestSpec, error) {
			return provider.RequestSpec{
				Method: "GET",
				URL:    a.endpoints.APIBase + "/items/" + url.PathEscape(item.ID) + "/link",
			}, nil
		},
		a.bearerAuthorize,
		func(ctx context.Context, rq *engine.Request[string], resp *cloudkit.Response, body []byte) (string, error) {
			var out struct {
				URL string `json:"url"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return "", err
			}
			return out.URL, nil
		},
	)
}

func (a *Adapter) GetThumbnail(ctx context.Context, item cloudkit.Item) cloudkit.Request[[]byte] {
	return provider.Do[[]byte](ctx, &a.Base,
		func(ctx context.Context) (provider.RequestSpec, error) {
			return provider.RequestSpec{
				Method: "GET",
				URL:    a.endpoints.APIBase + "/items/" + url.PathEscape(item.ID) + "/thumbnail",
			}, nil
		},
		a.bearerAuthorize,
		func(ctx context.Context, rq *engine.Request[[]byte], resp *cloudkit.Response, body []byte) ([]byte, error) {
			return body, nil
		},
	)
}

func (a *Adapter) CreateDirectory(ctx context.Context, parent cloudkit.Item, name string) cloudkit.Request[cloudkit.Item] {
	return provider.Do[cloudkit.Item](ctx, &a.Base,
		func(ctx context.Context) (provider.RequestSpec, error) {
			body, err := json.Marshal(map[string]string{"parent_id": parent.ID, "name": name})
			if err != nil {
				return provider.RequestSpec{}, err
			}
			return provider.RequestSpec{
				Method:  "POST",
				URL:     a.endpoints.APIBase + "/folders",
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    newBytesReader(body),
			}, nil
		},
		a.bearerAuthorize,
		func(ctx context.Context, rq *engine.Request[cloudkit.Item], resp *cloudkit.Response, body []byte) (cloudkit.Item, error) {
			var d driveItem
			if err := json.Unmarshal(body, &d); err != nil {
				return cloudkit.Item{}, err
			}
			return toItem(d), nil
		},
	)
}

func (a *Adapter) MoveItem(ctx context.Context, item, dstParent cloudkit.Item) cloudkit.Request[cloudkit.Item] {
	return provider.Do[cloudkit.Item](ctx, &a.Base,
		func(ctx context.Context) (provider.RequestSpec, error) {
			body, err := json.Marshal(map[string]string{"parent_id": dstParent.ID})
			if err != nil {
				return provider.RequestSpec{}, err
			}
			return provider.RequestSpec{
				Method:  "PATCH",
				URL:     a.endpoints.APIBase + "/items/" + url.PathEscape(item.ID),
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    newBytesReader(body),
			}, nil
		},
		a.bearerAuthorize,
		func(ctx context.Context, rq *engine.Request[cloudkit.Item], resp *cloudkit.Response, body []byte) (cloudkit.Item, error) {
			var d driveItem
			if err := json.Unmarshal(body, &d); err != nil {
				return cloudkit.Item{}, err
			}
			return toItem(d), nil
		},
	)
}

func (a *Adapter) RenameItem(ctx context.Context, item cloudkit.Item, newName string) cloudkit.Request[cloudkit.Item] {
	return provider.Do[cloudkit.Item](ctx, &a.Base,
		func(ctx context.Context) (provider.RequestSpec, error) {
			body, err := json.Marshal(map[string]string{"name": newName})
			if err != nil {
				return provider.RequestSpec{}, err
			}
			return provider.RequestSpec{
				Method:  "PATCH",
				URL:     a.endpoints.APIBase + "/items/" + url.PathEscape(item.ID),
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    newBytesReader(body),
			}, nil
		},
		a.bearerAuthorize,
		func(ctx context.Context, rq *engine.Request[cloudkit.Item], resp *cloudkit.Response, body []byte) (cloudkit.Item, error) {
			var d driveItem
			if err := json.Unmarshal(body, &d); err != nil {
				return cloudkit.Item{}, err
			}
			return toItem(d), nil
		},
	)
}

func (a *Adapter) DeleteItem(ctx context.Context, item cloudkit.Item) cloudkit.Request[struct{}] {
	return provider.Do[struct{}](ctx, &a.Base,
		func(ctx context.Context) (provider.RequestSpec, error) {
			return provider.RequestSpec{
				Method: "DELETE",
				URL:    a.endpoints.APIBase + "/items/" + url.PathEscape(item.ID),
			}, nil
		},
		a.bearerAuthorize,
		func(ctx context.Context, rq *engine.Request[struct{}], resp *cloudkit.Response, body []byte) (struct{}, error) {
			return struct{}{}, nil
		},
	)
}

func (a *Adapter) UploadFile(ctx context.Context, parent cloudkit.Item, name string, reader cloudkit.UploadReader) cloudkit.Request[cloudkit.Item] {
	return provider.Do[cloudkit.Item](ctx, &a.Base,
		func(ctx context.Context) (provider.RequestSpec, error) {
			v := url.Values{}
			v.Set("parent_id", parent.ID)
			v.Set("name", name)
			spec := provider.RequestSpec{
				Method:  "POST",
				URL:     a.endpoints.APIBase + "/upload?" + v.Encode(),
				Headers: map[string]string{"Content-Type": "application/octet-stream"},
				Body:    reader,
			}
			if sz, ok := reader.Size(); ok {
				spec.BodySize, spec.HasBodySize = sz, true
			}
			return spec, nil
		},
		a.bearerAuthorize,
		func(ctx context.Context, rq *engine.Request[cloudkit.Item], resp *cloudkit.Response, body []byte) (cloudkit.Item, error) {
			var d driveItem
			if err := json.Unmarshal(body, &d); err != nil {
				return cloudkit.Item{}, err
			}
			return toItem(d), nil
		},
	)
}

func (a *Adapter) DownloadFile(ctx context.Context, item cloudkit.Item, r cloudkit.Range, w cloudkit.DownloadWriter) cloudkit.Request[struct{}] {
	return provider.Do[struct{}](ctx, &a.Base,
		func(ctx context.Context) (provider.RequestSpec, error) {
			return provider.RequestSpec{
				Method:  "GET",
				URL:     a.endpoints.APIBase + "/items/" + url.PathEscape(item.ID) + "/content",
				Headers: map[string]string{"Range": r.ContentRangeHeader()},
				Sink:    w,
			}, nil
		},
		a.bearerAuthorize,
		func(ctx context.Context, rq *engine.Request[struct{}], resp *cloudkit.Response, body []byte) (struct{}, error) {
			return struct{}{}, nil
		},
	)
}

func (a *Adapter) ExchangeCode(ctx context.Context, code string) cloudkit.Request[cloudkit.Token] {
	return provider.Do[cloudkit.Token](ctx, &a.Base,
		func(ctx context.Context) (provider.RequestSpec, error) {
			v := url.Values{}
			v.Set("grant_type", "authorization_code")
			v.Set("code", code)
			v.Set("client_id", a.endpoints.ClientID)
			v.Set("client_secret", a.endpoints.ClientSecret)
			v.Set("redirect_uri", a.endpoints.RedirectURI)
			return provider.RequestSpec{
				Method:  "POST",
				URL:     a.endpoints.TokenURL,
				Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
				Body:    newBytesReader([]byte(v.Encode())),
			}, nil
		},
		nil,
		func(ctx context.Context, rq *engine.Request[cloudkit.Token], resp *cloudkit.Response, body []byte) (cloudkit.Token, error) {
			var out struct {
				AccessToken  string `json:"access_token"`
				RefreshToken string `json:"refresh_token"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return cloudkit.Token{}, err
			}
			return cloudkit.Token{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}, nil
		},
	)
}

func (a *Adapter) GetGeneralData(ctx context.Context) cloudkit.Request[cloudkit.GeneralData] {
	return provider.Do[cloudkit.GeneralData](ctx, &a.Base,
		func(ctx context.Context) (provider.RequestSpec, error) {
			return provider.RequestSpec{Method: "GET", URL: a.endpoints.APIBase + "/account"}, nil
		},
		a.bearerAuthorize,
		func(ctx context.Context, rq *engine.Request[cloudkit.GeneralData], resp *cloudkit.Response, body []byte) (cloudkit.GeneralData, error) {
			var out struct {
				Username   string `json:"username"`
				SpaceUsed  uint64 `json:"space_used"`
				SpaceTotal uint64 `json:"space_total"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return cloudkit.GeneralData{}, err
			}
			return cloudkit.GeneralData{Username: out.Username, SpaceUsed: out.SpaceUsed, SpaceTotal: out.SpaceTotal}, nil
		},
	)
}

// bytesReader is a minimal io.Reader wrapping a []byte, used for the
// small JSON/form-encoded request bodies most operations here send.
type bytesReader struct {
	b   []byte
	pos int
}

func newBytesReader(b []byte) *bytesReader { return &bytesReader{b: b} }

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

func (r *bytesReader) Size() (uint64, bool) { return uint64(len(r.b)), true }

var _ cloudkit.Provider = (*Adapter)(nil)
