// Package httpro implements a read-only storage backend that fetches a
// key/value blob from a remote HTTP(S) endpoint, grounded directly on
// ais/backend/http.go's dual HTTP/HTTPS client construction (SPEC_FULL.md
// §4.J). "ro" is short for read-only: Set always fails, since there is no
// sane way to PUT back to an arbitrary URL a mountpoint happens to name.
package httpro

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"

	"github.com/elektrago/kdb/kdberr"
	"github.com/elektrago/kdb/key"
	"github.com/elektrago/kdb/keyset"
	"github.com/elektrago/kdb/plugin"
	"github.com/elektrago/kdb/plugins/internal/kvtext"
	"github.com/elektrago/kdb/registry"
)

func init() {
	registry.Register("httpro/storage", plugin.FactoryFunc(openStorage))
}

const defaultTimeout = 30 * time.Second

// storageInstance owns one remote URL's client pair, mirroring
// ais/backend/http.go's httpProvider which keeps a plain and a TLS client
// side by side and picks between them by URL scheme rather than building a
// fresh client per request.
type storageInstance struct {
	mu          sync.Mutex
	httpClient  *fasthttp.Client
	httpsClient *fasthttp.Client
	url         string
	bearerToken string

	haveWitness bool
	etag        string
}

func openStorage(cfg *keyset.KeySet, errorKey *key.Key) (plugin.Instance, error) {
	url, bearer, err := configKeys(cfg)
	if err != nil {
		if errorKey != nil {
			kdberr.SetOn(errorKey, err)
		}
		return nil, err
	}
	s := &storageInstance{
		httpClient:  &fasthttp.Client{ReadTimeout: defaultTimeout, WriteTimeout: defaultTimeout},
		httpsClient: &fasthttp.Client{ReadTimeout: defaultTimeout, WriteTimeout: defaultTimeout},
		url:         url,
		bearerToken: bearer,
	}
	return s, nil
}

// configKeys requires user:/url and reads an optional user:/token, a JWT
// that, if present, is parsed unverified purely to reject an obviously
// malformed or expired token at open time rather than failing silently on
// the first request (this plugin has no verification key of its own — the
// remote server owns that; golang-jwt is used here only for shape/expiry
// checking, not trust).
func configKeys(cfg *keyset.KeySet) (url, bearer string, err *kdberr.Error) {
	u, lookupErr := cfg.LookupByName("user:/url", keyset.LookupNone)
	if lookupErr != nil || u == nil || u.Value() == "" {
		return "", "", kdberr.Installationf("httpro", "missing required config key user:/url")
	}
	if !strings.HasPrefix(u.Value(), "http://") && !strings.HasPrefix(u.Value(), "https://") {
		return "", "", kdberr.Installationf("httpro", "user:/url must be an http(s) URL, got %q", u.Value())
	}

	var token string
	if t, lookupErr := cfg.LookupByName("user:/token", keyset.LookupNone); lookupErr == nil && t != nil {
		token = t.Value()
	}
	if token != "" {
		parser := jwt.NewParser()
		claims := jwt.MapClaims{}
		if _, _, parseErr := parser.ParseUnverified(token, claims); parseErr != nil {
			return "", "", kdberr.Installationf("httpro", "user:/token is not a well-formed JWT: %v", parseErr)
		}
		if exp, ok := claims["exp"]; ok {
			if expFloat, ok := exp.(float64); ok && time.Unix(int64(expFloat), 0).Before(time.Now()) {
				return "", "", kdberr.Installationf("httpro", "user:/token is expired")
			}
		}
	}
	return u.Value(), token, nil
}

func (s *storageInstance) client() *fasthttp.Client {
	if strings.HasPrefix(s.url, "https") {
		return s.httpsClient
	}
	return s.httpClient
}

func (s *storageInstance) Close(*key.Key) error { return nil }

func (s *storageInstance) Init(*keyset.KeySet, *key.Key) plugin.Result { return plugin.Success }

func (s *storageInstance) newRequest() *fasthttp.Request {
	req := fasthttp.AcquireRequest()
	req.SetRequestURI(s.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	if s.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.bearerToken)
	}
	return req
}

func (s *storageInstance) head() (etag string, status int, err error) {
	req := s.newRequest()
	req.Header.SetMethod(fasthttp.MethodHead)
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if err := s.client().DoTimeout(req, resp, defaultTimeout); err != nil {
		return "", 0, err
	}
	return string(resp.Header.Peek("ETag")), resp.StatusCode(), nil
}

// Get's resolver phase compares the remote ETag (when the server sends one)
// against the one last observed; storage fetches the body and decodes it as
// kvtext. A server that omits ETag entirely degrades to "always changed",
// which is safe (it just disables the short-circuit), not incorrect.
func (s *storageInstance) Get(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	switch plugin.FromGlobal(global) {
	case plugin.PhaseResolver:
		s.mu.Lock()
		defer s.mu.Unlock()
		etag, status, err := s.head()
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("httpro", err, "HEAD %s", s.url))
			return plugin.Error
		}
		if status != fasthttp.StatusOK && status != 0 {
			kdberr.SetOn(parent, kdberr.Resourcef("httpro", fmt.Errorf("status %d", status), "HEAD %s", s.url))
			return plugin.Error
		}
		changed := !s.haveWitness || s.etag != etag || etag == ""
		s.haveWitness, s.etag = true, etag
		if !changed {
			return plugin.NoUpdate
		}
		return plugin.Success
	case plugin.PhaseStorage:
		req := s.newRequest()
		defer fasthttp.ReleaseRequest(req)
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseResponse(resp)

		if err := s.client().DoTimeout(req, resp, defaultTimeout); err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("httpro", err, "GET %s", s.url))
			return plugin.Error
		}
		if resp.StatusCode() != fasthttp.StatusOK {
			kdberr.SetOn(parent, kdberr.Resourcef("httpro", fmt.Errorf("status %d", resp.StatusCode()), "GET %s", s.url))
			return plugin.Error
		}
		body, err := readAll(resp)
		if err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("httpro", err, "reading body of %s", s.url))
			return plugin.Error
		}
		if err := kvtext.Decode(body, ks); err != nil {
			kdberr.SetOn(parent, kdberr.Resourcef("httpro", err, "decoding %s", s.url))
			return plugin.Error
		}
		return plugin.Success
	default:
		return plugin.Success
	}
}

// readAll copies a fasthttp.Response body out before the caller releases
// the response back to its pool, since resp.Body() is only valid until then.
func readAll(resp *fasthttp.Response) ([]byte, error) {
	body := resp.Body()
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

// Set always rejects: httpro is a read-only backend (spec.md's "no specific
// on-disk format" leaves room for a write-side plugin, but there is no
// general way to PUT a config slice back to an arbitrary URL a mountpoint
// merely reads from).
func (s *storageInstance) Set(global, ks *keyset.KeySet, parent *key.Key) plugin.Result {
	if plugin.FromGlobal(global) != plugin.PhaseStorage {
		return plugin.Success
	}
	kdberr.SetOn(parent, kdberr.Interfacef("httpro", "mountpoint is read-only, rejecting write to %s", s.url))
	return plugin.Error
}

func (s *storageInstance) Commit(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result {
	return plugin.Success
}

func (s *storageInstance) Error(*keyset.KeySet, *keyset.KeySet, *key.Key) plugin.Result {
	return plugin.Success
}

func (s *storageInstance) GetFunction(name string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case "filename":
		return s.url, true
	case "witness":
		if !s.haveWitness {
			return nil, false
		}
		return s.etag, true
	case "readonly":
		return true, true
	}
	return nil, false
}
