// Package nodegw is a thin HTTP client over a Bitcoin Core node's REST
// interface. It exposes tip-height lookup and whole-block fetch by height
// or hash, decoding the node's hex-encoded consensus block representation
// into a structured block value.
package nodegw

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Error classes surfaced by the gateway. Callers use errors.Is against
// these sentinels to decide retry/backoff behavior.
var (
	// ErrTransport indicates a network failure talking to the node.
	ErrTransport = errors.New("nodegw: transport error")
	// ErrUpstream indicates the node returned a non-2xx response.
	ErrUpstream = errors.New("nodegw: upstream error")
	// ErrDecode indicates a hex/consensus/JSON deserialization failure.
	ErrDecode = errors.New("nodegw: decode error")
)

const requestTimeout = 30 * time.Second

// Block is the structured result of decoding a consensus-encoded block:
// header hash, header timestamp, and the full transaction list.
type Block struct {
	Hash         chainhash.Hash
	Timestamp    time.Time
	Transactions []*wire.MsgTx
}

// Client is a reusable REST client bound to one node's base URL.
type Client struct {
	http    *http.Client
	baseURL string
}

// chainInfo mirrors the shape of /rest/chaininfo.json that this client reads.
type chainInfo struct {
	Chain  string `json:"chain"`
	Blocks uint64 `json:"blocks"`
}

// New constructs a Client against rawBaseURL, normalizing it (prepending
// http:// when no scheme is present, stripping a trailing slash) and then
// eagerly probing the tip height so a misconfigured endpoint fails at
// startup rather than mid-sync.
func New(rawBaseURL string) (*Client, error) {
	base := rawBaseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	base = strings.TrimSuffix(base, "/")

	c := &Client{
		http:    &http.Client{Timeout: requestTimeout},
		baseURL: base,
	}

	info, err := c.chainInfo()
	if err != nil {
		return nil, fmt.Errorf("nodegw: startup tip probe against %s failed: %w", base, err)
	}
	log.Printf("[nodegw] connected to node REST at %s (chain=%s, blocks=%d)", base, info.Chain, info.Blocks)

	return c, nil
}

// TipHeight fetches /rest/chaininfo.json and returns the blocks field.
func (c *Client) TipHeight() (uint64, error) {
	info, err := c.chainInfo()
	if err != nil {
		return 0, err
	}
	return info.Blocks, nil
}

func (c *Client) chainInfo() (chainInfo, error) {
	resp, err := c.get("/rest/chaininfo.json")
	if err != nil {
		return chainInfo{}, err
	}
	defer resp.Body.Close()

	var info chainInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return chainInfo{}, fmt.Errorf("%w: chaininfo.json: %v", ErrDecode, err)
	}
	return info, nil
}

// BlockHashAtHeight fetches /rest/blockhashbyheight/{h}.hex.
func (c *Client) BlockHashAtHeight(height uint64) (chainhash.Hash, error) {
	path := fmt.Sprintf("/rest/blockhashbyheight/%d.hex", height)
	resp, err := c.get(path)
	if err != nil {
		return chainhash.Hash{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("%w: reading block hash body for height %d: %v", ErrTransport, height, err)
	}

	trimmed := strings.TrimSpace(string(body))
	hash, err := chainhash.NewHashFromStr(trimmed)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("%w: parsing block hash %q for height %d: %v", ErrDecode, trimmed, height, err)
	}
	return *hash, nil
}

// BlockByHeight composes BlockHashAtHeight with BlockByHash.
func (c *Client) BlockByHeight(height uint64) (*Block, error) {
	hash, err := c.BlockHashAtHeight(height)
	if err != nil {
		return nil, fmt.Errorf("block hash lookup for height %d: %w", height, err)
	}
	return c.BlockByHash(hash)
}

// BlockByHash fetches /rest/block/{hash}.hex, hex-decodes it, and
// consensus-decodes the bytes into a structured block.
func (c *Client) BlockByHash(hash chainhash.Hash) (*Block, error) {
	path := fmt.Sprintf("/rest/block/%s.hex", hash.String())
	resp, err := c.get(path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading block body for hash %s: %v", ErrTransport, hash, err)
	}

	blockBytes, err := hex.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: hex-decoding block for hash %s: %v", ErrDecode, hash, err)
	}

	var msgBlock wire.MsgBlock
	if err := msgBlock.BtcDecode(bytes.NewReader(blockBytes), wire.ProtocolVersion, wire.WitnessEncoding); err != nil {
		return nil, fmt.Errorf("%w: consensus-decoding block for hash %s: %v", ErrDecode, hash, err)
	}

	return &Block{
		Hash:         msgBlock.BlockHash(),
		Timestamp:    msgBlock.Header.Timestamp,
		Transactions: msgBlock.Transactions,
	}, nil
}

func (c *Client) get(path string) (*http.Response, error) {
	url := c.baseURL + path
	resp, err := c.http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrTransport, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%w: GET %s returned %s: %s", ErrUpstream, path, resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
}
