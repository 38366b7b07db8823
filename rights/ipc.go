package rights

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dkuehr/tezedge/chain"
)

// HTTPSource fetches endorsing rights from the protocol runner's HTTP
// rights endpoint, matching the /helpers/endorsing_rights shape the RPC
// layer itself exposes to clients (rpc package).
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPSource builds a Source against baseURL (e.g.
// "http://127.0.0.1:8733").
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{BaseURL: baseURL, Client: http.DefaultClient}
}

type endorsingRightsEntry struct {
	Delegate  string `json:"delegate"`
	PublicKey []byte `json:"public_key"`
}

// EndorsingRights queries the runner for the delegates allowed to endorse
// block at level, returning their public keys keyed by PKH hex string.
func (s *HTTPSource) EndorsingRights(ctx context.Context, block chain.BlockHash, level chain.Level) (map[string][]byte, error) {
	u := fmt.Sprintf("%s/helpers/endorsing_rights?block=%s&level=%d",
		s.BaseURL, url.QueryEscape(block.String()), level)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("endorsing rights request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("endorsing rights: runner returned %s", resp.Status)
	}

	var entries []endorsingRightsEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode endorsing rights: %w", err)
	}

	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		out[e.Delegate] = e.PublicKey
	}
	return out, nil
}
