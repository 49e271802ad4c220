package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// HTTPGateway is a thin JSON-over-HTTP adapter to the external chain gateway
// service. It carries no contract logic of its own; it only forwards the
// consumed call contract. Wrap it in a LimitedGateway for timeouts and
// submission throttling.
type HTTPGateway struct {
	base   string
	client *http.Client
}

// NewHTTPGateway returns a gateway client for the service at baseURL.
// A nil httpClient falls back to http.DefaultClient.
func NewHTTPGateway(baseURL string, httpClient *http.Client) *HTTPGateway {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPGateway{base: baseURL, client: httpClient}
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("gateway %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SubmitBatch posts the whole batch and returns the shared receipt.
func (g *HTTPGateway) SubmitBatch(ctx context.Context, contractAddress string, votes []BatchVote) (*BatchReceipt, error) {
	payload := struct {
		ContractAddress string      `json:"contract_address"`
		Votes           []BatchVote `json:"votes"`
	}{contractAddress, votes}

	var receipt BatchReceipt
	if err := g.do(ctx, http.MethodPost, "/v1/votes/batch", payload, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// GetContractInfo reads the contract-level counters.
func (g *HTTPGateway) GetContractInfo(ctx context.Context, contractAddress string) (*ContractInfo, error) {
	var info ContractInfo
	path := "/v1/contracts/" + url.PathEscape(contractAddress)
	if err := g.do(ctx, http.MethodGet, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetVoteEvents reads the contract's historical vote events.
func (g *HTTPGateway) GetVoteEvents(ctx context.Context, contractAddress string) ([]VoteEvent, error) {
	var events []VoteEvent
	path := "/v1/contracts/" + url.PathEscape(contractAddress) + "/votes"
	if err := g.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetProposalEvents reads the contract's proposal-creation events.
func (g *HTTPGateway) GetProposalEvents(ctx context.Context, contractAddress string) ([]ProposalEvent, error) {
	var events []ProposalEvent
	path := "/v1/contracts/" + url.PathEscape(contractAddress) + "/proposals"
	if err := g.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}
