package nostr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// nipSearch is the full-text search extension
const nipSearch = 50

// RelayInfo is what a relay reports about itself in its NIP-11 document
type RelayInfo struct {
	URL           string        `json:"url"`
	Reachable     bool          `json:"reachable"`
	Name          string        `json:"name,omitempty"`
	Software      string        `json:"software,omitempty"`
	Version       string        `json:"version,omitempty"`
	SupportedNIPs []int         `json:"supported_nips,omitempty"`
	Latency       time.Duration `json:"latency_ns"`
	Error         string        `json:"error,omitempty"`
}

// Supports reports whether the relay lists nip
func (ri RelayInfo) Supports(nip int) bool {
	for _, n := range ri.SupportedNIPs {
		if n == nip {
			return true
		}
	}
	return false
}

// SupportsSearch reports whether the relay advertises NIP-50 search
func (ri RelayInfo) SupportsSearch() bool {
	return ri.Supports(nipSearch)
}

// FetchRelayInfo retrieves the NIP-11 document of wsURL. It never fails; an unreachable relay
// comes back with Reachable false and Error set.
func FetchRelayInfo(ctx context.Context, httpClient *http.Client, wsURL string) RelayInfo {
	info := RelayInfo{URL: wsURL}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, infoURL(wsURL), nil)
	if err != nil {
		info.Error = fmt.Sprintf("failed to create request: %v", err)
		return info
	}
	req.Header.Set("Accept", "application/nostr+json")

	resp, err := httpClient.Do(req)
	if err != nil {
		info.Error = fmt.Sprintf("failed to fetch NIP-11 info: %v", err)
		return info
	}
	defer resp.Body.Close()
	info.Latency = time.Since(start)

	if resp.StatusCode != http.StatusOK {
		info.Error = fmt.Sprintf("NIP-11 request failed: status %d", resp.StatusCode)
		return info
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || !gjson.ValidBytes(body) {
		info.Error = "invalid NIP-11 document"
		return info
	}

	doc := gjson.ParseBytes(body)
	info.Reachable = true
	info.Name = doc.Get("name").String()
	info.Software = doc.Get("software").String()
	info.Version = doc.Get("version").String()
	// some relays list nips as strings
	doc.Get("supported_nips").ForEach(func(_, v gjson.Result) bool {
		if n := v.Int(); n > 0 {
			info.SupportedNIPs = append(info.SupportedNIPs, int(n))
		}
		return true
	})

	return info
}

// ProbeRelays fetches the NIP-11 document of every seed relay concurrently, in seed order
func (c *Client) ProbeRelays(ctx context.Context) []RelayInfo {
	relays := c.GetSeedRelays()
	httpClient := &http.Client{Timeout: c.GetDefaultTimeout()}

	results := make([]RelayInfo, len(relays))
	var wg sync.WaitGroup
	for i, url := range relays {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			results[i] = FetchRelayInfo(ctx, httpClient, url)
		}(i, url)
	}
	wg.Wait()

	return results
}

func infoURL(wsURL string) string {
	switch {
	case strings.HasPrefix(wsURL, "wss://"):
		return "https://" + strings.TrimPrefix(wsURL, "wss://")
	case strings.HasPrefix(wsURL, "ws://"):
		return "http://" + strings.TrimPrefix(wsURL, "ws://")
	default:
		return wsURL
	}
}
