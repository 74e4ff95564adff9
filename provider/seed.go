package provider

import (
	"fmt"
	"net/http"
	"time"

	"github.com/AlfredDev/conductor-gateway/bucket"
	"github.com/AlfredDev/conductor-gateway/config"
	"github.com/AlfredDev/conductor-gateway/modelmap"
)

// BuildAdapters constructs one Adapter per enabled entry in providers,
// pulling each provider's HTTP client from pool so that provider's
// calls reuse one shared client and transport, and registering each
// configured key with its own bucket. The result is a map keyed by
// provider name and carries no order; the order the scheduler sees is
// the order in which the caller passes the adapters to AddProvider.
func BuildAdapters(providers map[string]config.ProviderConfig, mm *modelmap.ModelMap, pool *ConnectionPool, requestTimeout time.Duration) (map[string]*Adapter, error) {
	out := make(map[string]*Adapter, len(providers))
	for name, pc := range providers {
		if !pc.Enabled {
			continue
		}
		if pc.BaseURL == "" {
			return nil, fmt.Errorf("provider %q: base_url is required", name)
		}
		client := pool.GetClient(name, requestTimeout)
		adapter := New(name, pc.BaseURL, mm, client)

		for i, kc := range pc.Keys {
			keyName := kc.Name
			if keyName == "" {
				keyName = fmt.Sprintf("key-%d", i)
			}
			rpm := kc.RequestsPerMinute
			if rpm <= 0 {
				rpm = 60
			}
			tpm := kc.TokensPerMinute
			if tpm <= 0 {
				tpm = 100000
			}
			adapter.AddKey(&Key{
				ProviderName: name,
				KeyName:      keyName,
				APIKey:       kc.APIKey,
				Bucket:       bucket.New(fmt.Sprintf("%s:%s", name, keyName), rpm, tpm),
			})
		}
		out[name] = adapter
	}
	return out, nil
}

// DefaultHTTPClient is used by callers (e.g. tests) that want an
// adapter without a shared ConnectionPool.
func DefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
