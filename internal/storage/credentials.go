package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/spectravue/emit-unmix/internal/cache"
	"github.com/spectravue/emit-unmix/internal/emit"
)

// TemporaryCredentials is the credential provider's response: short-lived
// keys scoping read access to the protected product buckets.
type TemporaryCredentials struct {
	AccessKeyID     string    `json:"accessKeyId"`
	SecretAccessKey string    `json:"secretAccessKey"`
	SessionToken    string    `json:"sessionToken"`
	Expiration      time.Time `json:"expiration"`
}

// credentialEndpoints maps provider names to their s3credentials endpoints.
var credentialEndpoints = map[string]string{
	"lpdaac":   "https://data.lpdaac.earthdatacloud.nasa.gov/s3credentials",
	"ornldaac": "https://data.ornldaac.earthdata.nasa.gov/s3credentials",
}

// DefaultProvider serves the EMIT product archive.
const DefaultProvider = "lpdaac"

// CredentialProvider fetches temporary object-storage credentials for one
// named endpoint. The zero retry count means a single attempt.
type CredentialProvider struct {
	Endpoint string
	Token    string
	Retries  int

	client *http.Client
	cache  *cache.FileCache[TemporaryCredentials]
}

// NewCredentialProvider resolves a provider name (or a literal endpoint URL)
// into a fetcher. Responses are cached on disk for their short lifetime so
// batch runs over many granules fetch once.
func NewCredentialProvider(provider, token string) (*CredentialProvider, error) {
	endpoint, ok := credentialEndpoints[provider]
	if !ok {
		if provider == "" {
			return nil, fmt.Errorf("%w: no credential provider given", emit.ErrConfiguration)
		}
		// Treat unknown names as literal endpoint URLs.
		endpoint = provider
	}
	return &CredentialProvider{
		Endpoint: endpoint,
		Token:    token,
		Retries:  3,
		client:   &http.Client{Timeout: 30 * time.Second},
		cache:    cache.NewExpiringFileCache[TemporaryCredentials]("credentials", 50*time.Minute),
	}, nil
}

// Fetch returns usable credentials, from the disk cache when still fresh.
func (p *CredentialProvider) Fetch() (TemporaryCredentials, error) {
	key := p.cache.GenerateKey(p.Endpoint)
	if creds, ok := p.cache.Get(key); ok {
		if creds.Expiration.IsZero() || time.Until(creds.Expiration) > 5*time.Minute {
			return creds, nil
		}
	}

	creds, err := p.fetchRemote()
	if err != nil {
		return TemporaryCredentials{}, err
	}
	if err := p.cache.Set(key, creds); err != nil {
		log.Warnf("failed to cache credentials: %v", err)
	}
	return creds, nil
}

func (p *CredentialProvider) fetchRemote() (TemporaryCredentials, error) {
	var lastErr error
	attempts := p.Retries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
			log.Warnf("retrying credential fetch (%d/%d): %v", attempt+1, attempts, lastErr)
		}
		creds, err := p.fetchOnce()
		if err == nil {
			return creds, nil
		}
		lastErr = err
	}
	return TemporaryCredentials{}, fmt.Errorf("failed to fetch credentials from %s: %w", p.Endpoint, lastErr)
}

func (p *CredentialProvider) fetchOnce() (TemporaryCredentials, error) {
	req, err := http.NewRequest(http.MethodGet, p.Endpoint, nil)
	if err != nil {
		return TemporaryCredentials{}, err
	}
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return TemporaryCredentials{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return TemporaryCredentials{}, fmt.Errorf("credential endpoint returned %d: %s", resp.StatusCode, body)
	}

	var creds TemporaryCredentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return TemporaryCredentials{}, fmt.Errorf("failed to decode credential response: %w", err)
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return TemporaryCredentials{}, fmt.Errorf("%w: credential response missing keys", emit.ErrDataIntegrity)
	}
	return creds, nil
}
