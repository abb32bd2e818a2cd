package main

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/cloudkit/cloudkit"
	"github.com/cloudkit/cloudkit/engine"
	"github.com/cloudkit/cloudkit/provider"
	"github.com/cloudkit/cloudkit/providers/oauthdrive"
)

// oauthRefresher is the auth.Refresher an oauthdrive-family adapter's
// auth.Manager is built with. It has to exist independently of the
// Adapter itself: oauthdrive.New requires an already-constructed
// auth.Manager, and a Manager requires a Refresher, so something has to
// speak the token endpoint before the Adapter does.
type oauthRefresher struct {
	endpoints oauthdrive.Endpoints
	base      provider.Base
}

func newOAuthRefresher(endpoints oauthdrive.Endpoints, transport cloudkit.HttpTransport) *oauthRefresher {
	return &oauthRefresher{
		endpoints: endpoints,
		base:      provider.NewBase("oauth-refresh", transport, nil, engine.Options{}),
	}
}

func (r *oauthRefresher) Refresh(ctx context.Context, tok cloudkit.Token) (cloudkit.Token, error) {
	return r.exchange(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tok.RefreshToken},
		"client_id":     {r.endpoints.ClientID},
		"client_secret": {r.endpoints.ClientSecret},
	})
}

func (r *oauthRefresher) ExchangeCode(ctx context.Context, code string) (cloudkit.Token, error) {
	return r.exchange(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {r.endpoints.ClientID},
		"client_secret": {r.endpoints.ClientSecret},
		"redirect_uri":  {r.endpoints.RedirectURI},
	})
}

func (r *oauthRefresher) exchange(ctx context.Context, form url.Values) (cloudkit.Token, error) {
	req := provider.Do[cloudkit.Token](ctx, &r.base,
		func(ctx context.Context) (provider.RequestSpec, error) {
			return provider.RequestSpec{
				Method:  "POST",
				URL:     r.endpoints.TokenURL,
				Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
				Body:    strings.NewReader(form.Encode()),
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
	res := req.Result(ctx)
	if !res.IsOk() {
		return cloudkit.Token{}, res.Err
	}
	return res.Value, nil
}
