// Package proxy converts between backing-store URLs and the public proxy
// form {prefix}/{objectKey}. Stored records and API responses only ever carry
// the proxy form, so the store can be swapped or put behind a CDN without
// rewriting data.
package proxy

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultNativeHosts are host:port values always treated as the backing store.
var DefaultNativeHosts = []string{
	"localhost:9000",
	"127.0.0.1:9000",
	"minio:9000",
}

// Config configures a Rewriter.
type Config struct {
	// Prefix is the public path (or absolute URL) objects are served under,
	// for example "/media" or "https://cdn.example.com/media".
	Prefix string
	// Endpoint is the store's base URL, used to rebuild native URLs.
	Endpoint string
	Bucket   string
	Region   string
	// NativeHosts adds host:port values on top of the endpoint host and
	// DefaultNativeHosts.
	NativeHosts []string
}

// Rewriter performs pure URL conversions. It is safe for concurrent use.
type Rewriter struct {
	prefix   string
	endpoint *url.URL
	bucket   string
	region   string
	hosts    map[string]bool
}

// NewRewriter validates cfg.
func NewRewriter(cfg Config) (*Rewriter, error) {
	prefix := strings.TrimSuffix(cfg.Prefix, "/")
	if prefix == "" {
		return nil, fmt.Errorf("proxy prefix is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("proxy bucket is required")
	}

	r := &Rewriter{
		prefix: prefix,
		bucket: cfg.Bucket,
		region: cfg.Region,
		hosts:  make(map[string]bool),
	}

	if cfg.Endpoint != "" {
		ep, err := url.Parse(cfg.Endpoint)
		if err != nil || ep.Host == "" {
			return nil, fmt.Errorf("invalid proxy endpoint %q", cfg.Endpoint)
		}
		r.endpoint = ep
		r.hosts[strings.ToLower(ep.Host)] = true
	}
	for _, h := range DefaultNativeHosts {
		r.hosts[h] = true
	}
	for _, h := range cfg.NativeHosts {
		r.hosts[strings.ToLower(h)] = true
	}
	return r, nil
}

// Prefix returns the proxy prefix without a trailing slash.
func (r *Rewriter) Prefix() string {
	return r.prefix
}

// ObjectURL returns the proxy form of an object key.
func (r *Rewriter) ObjectURL(key string) string {
	return r.prefix + "/" + strings.TrimPrefix(key, "/")
}

// IsProxy reports whether s is already in proxy form.
func (r *Rewriter) IsProxy(s string) bool {
	return strings.HasPrefix(s, r.prefix+"/")
}

// ObjectKey extracts the object key from a proxy-form URL.
func (r *Rewriter) ObjectKey(s string) (string, bool) {
	if !r.IsProxy(s) {
		return "", false
	}
	key := strings.TrimPrefix(s, r.prefix+"/")
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	return key, key != ""
}

// ToProxy rewrites a native store URL to proxy form. It returns false when
// native does not point at the backing store.
func (r *Rewriter) ToProxy(native string) (string, bool) {
	key, ok := r.nativeKey(native)
	if !ok {
		return "", false
	}
	return r.ObjectURL(key), true
}

// ToNative rebuilds the path-style store URL for a proxy URL. Only for
// internal diagnostics; never return the result to clients.
func (r *Rewriter) ToNative(proxied string) (string, bool) {
	key, ok := r.ObjectKey(proxied)
	if !ok || r.endpoint == nil {
		return "", false
	}
	u := *r.endpoint
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + r.bucket + "/" + key
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), true
}

// Rewrite returns s in proxy form when it is a native store URL and
// unchanged otherwise.
func (r *Rewriter) Rewrite(s string) string {
	if p, ok := r.ToProxy(s); ok {
		return p
	}
	return s
}

// IsNative reports whether s points at the backing store.
func (r *Rewriter) IsNative(s string) bool {
	_, ok := r.nativeKey(s)
	return ok
}

func (r *Rewriter) nativeKey(s string) (string, bool) {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	host := strings.ToLower(u.Host)
	path := strings.TrimPrefix(u.Path, "/")

	switch {
	case r.hosts[host] || r.isAWSPathStyleHost(host):
		key, found := strings.CutPrefix(path, r.bucket+"/")
		if !found || key == "" {
			return "", false
		}
		return key, true
	case r.isAWSVirtualHost(host):
		return path, path != ""
	default:
		return "", false
	}
}

// isAWSPathStyleHost matches s3.amazonaws.com and s3.{region}.amazonaws.com.
func (r *Rewriter) isAWSPathStyleHost(host string) bool {
	if host == "s3.amazonaws.com" {
		return true
	}
	return r.region != "" && host == "s3."+r.region+".amazonaws.com"
}

// isAWSVirtualHost matches {bucket}.s3.amazonaws.com and
// {bucket}.s3.{region}.amazonaws.com.
func (r *Rewriter) isAWSVirtualHost(host string) bool {
	rest, ok := strings.CutPrefix(host, r.bucket+".")
	if !ok {
		return false
	}
	return r.isAWSPathStyleHost(rest)
}
