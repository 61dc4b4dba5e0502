package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	maxAttempts    = 6
	backoffBaseMs  = 1000
	backoffCapMs   = 10000
	backoffFactor  = 1.5
	backoffJitter  = 250
	requestTimeout = 20 * time.Second
)

// HTTPError carries the status code of a non-2xx response so callers can
// branch on specific codes (501 on denom_owners, 404 on traces).
type HTTPError struct {
	Status int
	URL    string
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d from %s: %s", e.Status, e.URL, e.Body)
}

// IsStatus reports whether err is an HTTPError with the given status code.
func IsStatus(err error, status int) bool {
	he, ok := err.(*HTTPError)
	return ok && he.Status == status
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Client fetches JSON from a pool of RPC endpoints and a pool of LCD
// endpoints. Endpoints are tried round-robin per call; 429/5xx responses
// are retried with jittered exponential backoff, other 4xx fail fast.
type Client struct {
	rpc  []string
	lcd  []string
	http *http.Client
}

func NewClient(rpcEndpoints, lcdEndpoints []string) (*Client, error) {
	if len(rpcEndpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint required")
	}
	if len(lcdEndpoints) == 0 {
		return nil, fmt.Errorf("at least one LCD endpoint required")
	}
	return &Client{
		rpc:  trimEndpoints(rpcEndpoints),
		lcd:  trimEndpoints(lcdEndpoints),
		http: &http.Client{Timeout: requestTimeout},
	}, nil
}

// NewClientFromEnv builds endpoint pools from comma-separated primary and
// backup lists.
func NewClientFromEnv(rpcPrimary, rpcBackup, lcdPrimary, lcdBackup string) (*Client, error) {
	return NewClient(splitList(rpcPrimary, rpcBackup), splitList(lcdPrimary, lcdBackup))
}

func splitList(lists ...string) []string {
	var out []string
	for _, l := range lists {
		for _, e := range strings.Split(l, ",") {
			if e = strings.TrimSpace(e); e != "" {
				out = append(out, e)
			}
		}
	}
	return out
}

func trimEndpoints(in []string) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		out = append(out, strings.TrimRight(strings.TrimSpace(e), "/"))
	}
	return out
}

func backoffDelay(attempt int) time.Duration {
	ms := float64(backoffBaseMs) * math.Pow(backoffFactor, float64(attempt))
	if ms > backoffCapMs {
		ms = backoffCapMs
	}
	return time.Duration(ms+float64(rand.Intn(backoffJitter))) * time.Millisecond
}

// getJSON fetches path from the endpoint pool, decoding the body into out.
// Endpoints rotate on every attempt so a stuck primary fails over to the
// backup without operator action.
func (c *Client) getJSON(ctx context.Context, endpoints []string, path string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		endpoint := endpoints[attempt%len(endpoints)]
		err := c.getJSONOnce(ctx, endpoint+path, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if he, ok := err.(*HTTPError); ok && !retryable(he.Status) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffDelay(attempt)):
		}
	}
	return fmt.Errorf("all attempts exhausted: %w", lastErr)
}

func (c *Client) getJSONOnce(ctx context.Context, fullURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "zigscan/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{Status: resp.StatusCode, URL: fullURL, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", fullURL, err)
	}
	return nil
}

// --- RPC ---

type statusResponse struct {
	Result struct {
		SyncInfo struct {
			LatestBlockHeight string `json:"latest_block_height"`
		} `json:"sync_info"`
	} `json:"result"`
}

// Status returns the chain tip height from /status.
func (c *Client) Status(ctx context.Context) (int64, error) {
	var sr statusResponse
	if err := c.getJSON(ctx, c.rpc, "/status", &sr); err != nil {
		return 0, err
	}
	h, err := strconv.ParseInt(sr.Result.SyncInfo.LatestBlockHeight, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse latest_block_height %q: %w", sr.Result.SyncInfo.LatestBlockHeight, err)
	}
	return h, nil
}

// Block is the decoded /block response.
type Block struct {
	Height int64
	Time   time.Time
	Txs    []string // base64 tx bytes
}

type blockResponse struct {
	Result struct {
		Block struct {
			Header struct {
				Height string    `json:"height"`
				Time   time.Time `json:"time"`
			} `json:"header"`
			Data struct {
				Txs []string `json:"txs"`
			} `json:"data"`
		} `json:"block"`
	} `json:"result"`
}

// GetBlock fetches /block?height=h.
func (c *Client) GetBlock(ctx context.Context, height int64) (*Block, error) {
	var br blockResponse
	if err := c.getJSON(ctx, c.rpc, fmt.Sprintf("/block?height=%d", height), &br); err != nil {
		return nil, fmt.Errorf("get block %d: %w", height, err)
	}
	h, err := strconv.ParseInt(br.Result.Block.Header.Height, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse block height %q: %w", br.Result.Block.Header.Height, err)
	}
	return &Block{
		Height: h,
		Time:   br.Result.Block.Header.Time,
		Txs:    br.Result.Block.Data.Txs,
	}, nil
}

// EventAttribute is a raw (possibly base64-encoded) event attribute.
type EventAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is one tx-result event with its raw attributes.
type Event struct {
	Type       string           `json:"type"`
	Attributes []EventAttribute `json:"attributes"`
}

// TxResult is one entry of txs_results.
type TxResult struct {
	Code   int     `json:"code"`
	Events []Event `json:"events"`
}

type blockResultsResponse struct {
	Result struct {
		TxsResults []TxResult `json:"txs_results"`
	} `json:"result"`
}

// GetBlockResults fetches /block_results?height=h.
func (c *Client) GetBlockResults(ctx context.Context, height int64) ([]TxResult, error) {
	var br blockResultsResponse
	if err := c.getJSON(ctx, c.rpc, fmt.Sprintf("/block_results?height=%d", height), &br); err != nil {
		return nil, fmt.Errorf("get block_results %d: %w", height, err)
	}
	return br.Result.TxsResults, nil
}

// --- LCD ---

// DenomUnit is one entry of a bank metadata denom_units list.
type DenomUnit struct {
	Denom    string   `json:"denom"`
	Exponent int      `json:"exponent"`
	Aliases  []string `json:"aliases"`
}

// DenomMetadata is the bank module metadata for one denom.
type DenomMetadata struct {
	Description string      `json:"description"`
	DenomUnits  []DenomUnit `json:"denom_units"`
	Base        string      `json:"base"`
	Display     string      `json:"display"`
	Name        string      `json:"name"`
	Symbol      string      `json:"symbol"`
	URI         string      `json:"uri"`
}

type denomMetadataResponse struct {
	Metadata DenomMetadata `json:"metadata"`
}

// GetDenomMetadata fetches bank metadata for denom. Returns nil when the
// chain has no metadata entry (404).
func (c *Client) GetDenomMetadata(ctx context.Context, denom string) (*DenomMetadata, error) {
	var mr denomMetadataResponse
	path := "/cosmos/bank/v1beta1/denoms_metadata/" + url.PathEscape(denom)
	if err := c.getJSON(ctx, c.lcd, path, &mr); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("denom metadata %s: %w", denom, err)
	}
	return &mr.Metadata, nil
}

// FactoryDenom is the chain-specific factory module view of a denom.
type FactoryDenom struct {
	Creator             string `json:"creator"`
	MaxSupply           string `json:"max_supply"`
	TotalSupply         string `json:"total_supply"`
	TotalMinted         string `json:"total_minted"`
	CanChangeMintingCap bool   `json:"can_change_minting_cap"`
	MintingCap          string `json:"minting_cap"`
}

type factoryDenomResponse struct {
	Denom FactoryDenom `json:"denom"`
}

// GetFactoryDenom fetches the factory record for denom; nil on 404/501.
func (c *Client) GetFactoryDenom(ctx context.Context, denom string) (*FactoryDenom, error) {
	var fr factoryDenomResponse
	path := "/zigchain/factory/denom/" + url.PathEscape(denom)
	if err := c.getJSON(ctx, c.lcd, path, &fr); err != nil {
		if IsStatus(err, http.StatusNotFound) || IsStatus(err, http.StatusNotImplemented) {
			return nil, nil
		}
		return nil, fmt.Errorf("factory denom %s: %w", denom, err)
	}
	return &fr.Denom, nil
}

// DenomOwner is one (address, balance) pair from denom_owners.
type DenomOwner struct {
	Address string `json:"address"`
	Balance struct {
		Denom  string `json:"denom"`
		Amount string `json:"amount"`
	} `json:"balance"`
}

// DenomOwnersPage is one page of token ownership.
type DenomOwnersPage struct {
	Owners  []DenomOwner
	NextKey string
}

type denomOwnersResponse struct {
	DenomOwners []DenomOwner `json:"denom_owners"`
	Pagination  struct {
		NextKey string `json:"next_key"`
	} `json:"pagination"`
}

// GetDenomOwners fetches one page of owners for denom. pageKey is the
// base64 pagination key from the previous page, empty for the first.
func (c *Client) GetDenomOwners(ctx context.Context, denom, pageKey string) (*DenomOwnersPage, error) {
	path := "/cosmos/bank/v1beta1/denom_owners/" + url.PathEscape(denom)
	if pageKey != "" {
		path += "?pagination.key=" + url.QueryEscape(pageKey)
	}
	var dr denomOwnersResponse
	if err := c.getJSON(ctx, c.lcd, path, &dr); err != nil {
		return nil, err
	}
	return &DenomOwnersPage{Owners: dr.DenomOwners, NextKey: dr.Pagination.NextKey}, nil
}

// DenomTrace is the IBC transfer trace for a hashed denom.
type DenomTrace struct {
	Path      string `json:"path"`
	BaseDenom string `json:"base_denom"`
}

type denomTraceResponse struct {
	DenomTrace DenomTrace `json:"denom_trace"`
	Denom      DenomTrace `json:"denom"`
}

// GetIBCDenomTrace resolves an ibc/HASH denom to its trace; nil on 404.
func (c *Client) GetIBCDenomTrace(ctx context.Context, hash string) (*DenomTrace, error) {
	var tr denomTraceResponse
	path := "/ibc/apps/transfer/v1/denoms/ibc/" + url.PathEscape(hash)
	if err := c.getJSON(ctx, c.lcd, path, &tr); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("ibc denom trace %s: %w", hash, err)
	}
	if tr.DenomTrace.BaseDenom != "" {
		return &tr.DenomTrace, nil
	}
	return &tr.Denom, nil
}

type smartQueryResponse struct {
	Data json.RawMessage `json:"data"`
}

// SmartQuery performs a CosmWasm smart query against contract. msg is the
// JSON query document; the raw data tree comes back for the caller to
// interpret.
func (c *Client) SmartQuery(ctx context.Context, contract string, msg interface{}) (json.RawMessage, error) {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(msgJSON)
	path := "/cosmwasm/wasm/v1/contract/" + url.PathEscape(contract) + "/smart/" + url.PathEscape(encoded)
	var sr smartQueryResponse
	if err := c.getJSON(ctx, c.lcd, path, &sr); err != nil {
		return nil, fmt.Errorf("smart query %s: %w", contract, err)
	}
	return sr.Data, nil
}

// PoolReserves is the decoded {"pool":{}} smart-query response of a pair
// contract: a two-asset reserve list.
type PoolReserves struct {
	Assets []struct {
		Info struct {
			NativeToken *struct {
				Denom string `json:"denom"`
			} `json:"native_token"`
			Token *struct {
				ContractAddr string `json:"contract_addr"`
			} `json:"token"`
		} `json:"info"`
		Amount string `json:"amount"`
	} `json:"assets"`
}

// QueryPoolReserves runs the standard {"pool":{}} query on a pair contract.
func (c *Client) QueryPoolReserves(ctx context.Context, pairContract string) (*PoolReserves, error) {
	data, err := c.SmartQuery(ctx, pairContract, map[string]interface{}{"pool": map[string]interface{}{}})
	if err != nil {
		return nil, err
	}
	var pr PoolReserves
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("decode pool reserves for %s: %w", pairContract, err)
	}
	return &pr, nil
}

// ReserveFor returns the raw amount for denom in the pool response, and
// whether it was present. CW20 legs match on the contract address.
func (pr *PoolReserves) ReserveFor(denom string) (string, bool) {
	for _, a := range pr.Assets {
		if a.Info.NativeToken != nil && a.Info.NativeToken.Denom == denom {
			return a.Amount, true
		}
		if a.Info.Token != nil && a.Info.Token.ContractAddr == denom {
			return a.Amount, true
		}
	}
	return "", false
}
