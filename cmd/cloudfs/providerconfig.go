package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cloudkit/cloudkit"
	"github.com/cloudkit/cloudkit/auth"
	"github.com/cloudkit/cloudkit/config"
	"github.com/cloudkit/cloudkit/engine"
	"github.com/cloudkit/cloudkit/providers/oauthdrive"
	"github.com/cloudkit/cloudkit/providers/s3"
	"github.com/cloudkit/cloudkit/tokenstore"
)

// providerFile is the on-disk shape of the -provider JSON file: one
// backend's connection details, the same "definitions file describes
// what to wire up" idiom as the teacher's -nodes flag, generalized from
// filesystem nodes to a single cloud backend.
type providerFile struct {
	Label string `json:"label"`
	Kind  string `json:"kind"` // "oauthdrive" | "s3"

	// oauthdrive
	APIBase      string `json:"api_base"`
	AuthorizeURL string `json:"authorize_url"`
	TokenURL     string `json:"token_url"`
	RootID       string `json:"root_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`

	// s3
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`
}

func loadProviderFile(path string) (*providerFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider file %s: %w", path, err)
	}
	var pf providerFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse provider file %s: %w", path, err)
	}
	if pf.Label == "" {
		return nil, fmt.Errorf("provider file %s: missing \"label\"", path)
	}
	return &pf, nil
}

// backend bundles the constructed provider with the auth.Manager that
// backs it, when it has one (s3's static credentials never need one).
type backend struct {
	provider cloudkit.Provider
	mgr      *auth.Manager
}

// buildBackend wires a providerFile into a live cloudkit.Provider the way
// the teacher's main.go wires a -nodes file into webfs source requests:
// read the definition, dispatch on its declared kind, hand the result to
// the rest of the program.
func buildBackend(pf *providerFile, cfg *config.Config, transport cloudkit.HttpTransport, store *tokenstore.FileStore) (*backend, error) {
	opts := engine.Options{
		MaxRetry:          cfg.MaxRetry,
		MaxReauthAttempts: cfg.MaxReauthAttempts,
	}

	switch pf.Kind {
	case "oauthdrive":
		endpoints := oauthdrive.Endpoints{
			APIBase:      pf.APIBase,
			AuthorizeURL: pf.AuthorizeURL,
			TokenURL:     pf.TokenURL,
			RootID:       pf.RootID,
			ClientID:     pf.ClientID,
			ClientSecret: pf.ClientSecret,
			RedirectURI:  pf.RedirectURI,
		}
		refresher := newOAuthRefresher(endpoints, transport)
		var adapter *oauthdrive.Adapter
		mgr := auth.NewManager(pf.Label, store, refresher, stdioConsentUI{}, func(ctx context.Context) (string, error) {
			return adapter.AuthorizeLibraryURL(pf.Label), nil
		})
		adapter = oauthdrive.New(pf.Label, endpoints, transport, mgr, opts)
		return &backend{provider: adapter, mgr: mgr}, nil

	case "s3":
		if pf.Region == "" {
			return nil, fmt.Errorf("provider %q: s3 requires \"region\"", pf.Label)
		}
		adapter := s3.New(pf.Label, pf.AccessKeyID, pf.SecretAccessKey, pf.Region, transport, opts)
		return &backend{provider: adapter}, nil

	default:
		return nil, fmt.Errorf("provider %q: unknown kind %q (want \"oauthdrive\" or \"s3\")", pf.Label, pf.Kind)
	}
}

// ensureAuthorized runs the interactive consent flow if the backend has an
// auth.Manager and it isn't already holding a token; s3's static
// credentials never need this.
func ensureAuthorized(ctx context.Context, b *backend) error {
	if b.mgr == nil {
		return nil
	}
	if _, ok := b.mgr.Token(); ok {
		return nil
	}
	return b.mgr.Authorize(ctx)
}
