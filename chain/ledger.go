package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"sao-files/types"
	"sao-files/utils"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("chain")

const defaultRequestTimeout = 30 * time.Second

// ledger service provides access to the file registry: ranked providers,
// published encryption keys and indexer assignments.
type LedgerSvc struct {
	remote  string
	client  *http.Client
	timeout time.Duration
}

type LedgerSvcApi interface {
	GetProviders(ctx context.Context, merkleRoot string) ([]types.ProviderRef, string, error)
	GetIndexers(ctx context.Context, merkleRoot string) ([]types.IndexerRef, error)
	GetPublishedKey(ctx context.Context, owner string) (string, error)
	PublishKey(ctx context.Context, owner string, publicKey string) error
	RegisterFile(ctx context.Context, req *RegisterFileRequest) (*RegisterFileResponse, error)
}

type RegisterFileRequest struct {
	Owner          string `json:"owner"`
	MerkleRoot     string `json:"merkleRoot"`
	Cid            string `json:"cid"`
	Size           int64  `json:"size"`
	ChunkCount     int    `json:"chunkCount"`
	ExpirationTime int64  `json:"expirationTime"`
}

type RegisterFileResponse struct {
	TxHash    string              `json:"txHash"`
	Primary   string              `json:"primary"`
	Providers []types.ProviderRef `json:"providers"`
}

func NewLedgerSvc(remote string, timeout time.Duration) *LedgerSvc {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &LedgerSvc{
		remote:  remote,
		client:  &http.Client{},
		timeout: timeout,
	}
}

// GetProviders returns the ranked provider list for merkleRoot along with
// the id of the designated primary. The order is the ledger's, never
// reshuffled locally.
func (ls *LedgerSvc) GetProviders(ctx context.Context, merkleRoot string) ([]types.ProviderRef, string, error) {
	var resp struct {
		Primary   string              `json:"primary"`
		Providers []types.ProviderRef `json:"providers"`
	}
	endpoint := fmt.Sprintf("%s/api/ledger/v1/providers?merkle_root=%s", ls.remote, url.QueryEscape(merkleRoot))
	if err := ls.get(ctx, endpoint, &resp); err != nil {
		return nil, "", types.Wrap(types.ErrQueryProvidersFailed, err)
	}
	if len(resp.Providers) == 0 {
		return nil, "", types.Wrapf(types.ErrQueryProvidersFailed, "no providers for %s", merkleRoot)
	}
	return resp.Providers, resp.Primary, nil
}

func (ls *LedgerSvc) GetIndexers(ctx context.Context, merkleRoot string) ([]types.IndexerRef, error) {
	var resp struct {
		Indexers []types.IndexerRef `json:"indexers"`
	}
	endpoint := fmt.Sprintf("%s/api/ledger/v1/indexers?merkle_root=%s", ls.remote, url.QueryEscape(merkleRoot))
	if err := ls.get(ctx, endpoint, &resp); err != nil {
		return nil, types.Wrap(types.ErrQueryIndexersFailed, err)
	}
	return resp.Indexers, nil
}

// GetPublishedKey returns the hex encoded uncompressed encryption public
// key currently published for owner.
func (ls *LedgerSvc) GetPublishedKey(ctx context.Context, owner string) (string, error) {
	var resp struct {
		PublicKey string `json:"publicKey"`
	}
	endpoint := fmt.Sprintf("%s/api/ledger/v1/keys/%s", ls.remote, url.PathEscape(owner))
	if err := ls.get(ctx, endpoint, &resp); err != nil {
		return "", types.Wrap(types.ErrQueryKeyFailed, err)
	}
	if resp.PublicKey == "" {
		return "", types.Wrapf(types.ErrKeyNotPublished, "owner %s", owner)
	}
	return resp.PublicKey, nil
}

func (ls *LedgerSvc) PublishKey(ctx context.Context, owner string, publicKey string) error {
	payload := map[string]string{
		"owner":     owner,
		"publicKey": publicKey,
	}
	endpoint := fmt.Sprintf("%s/api/ledger/v1/keys", ls.remote)
	if err := ls.post(ctx, endpoint, payload, nil); err != nil {
		return types.Wrap(types.ErrPublishKeyFailed, err)
	}
	log.Infof("published encryption key for %s", owner)
	return nil
}

// RegisterFile announces the upload to the ledger and receives the tx
// hash plus the ranked providers assigned to host it.
func (ls *LedgerSvc) RegisterFile(ctx context.Context, req *RegisterFileRequest) (*RegisterFileResponse, error) {
	var resp RegisterFileResponse
	endpoint := fmt.Sprintf("%s/api/ledger/v1/files", ls.remote)
	if err := ls.post(ctx, endpoint, req, &resp); err != nil {
		return nil, types.Wrap(types.ErrRegisterFileFailed, err)
	}
	if resp.TxHash == "" || len(resp.Providers) == 0 {
		return nil, types.Wrapf(types.ErrRegisterFileFailed, "incomplete registration response")
	}
	return &resp, nil
}

func (ls *LedgerSvc) get(ctx context.Context, endpoint string, out interface{}) error {
	callCtx, cancel := context.WithTimeout(ctx, ls.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return ls.do(callCtx, req, out)
}

func (ls *LedgerSvc) post(ctx context.Context, endpoint string, payload interface{}, out interface{}) error {
	body, err := utils.Marshal(payload)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, ls.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return ls.do(callCtx, req, out)
}

// do runs the request and separates a deadline expiry from any other
// transport failure, mirroring the provider and indexer call sites.
func (ls *LedgerSvc) do(ctx context.Context, req *http.Request, out interface{}) error {
	resp, err := ls.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return types.Wrapf(types.ErrTimeout, "ledger %s: %v", req.URL.Path, err)
		}
		return types.Wrapf(types.ErrNetwork, "ledger %s: %v", req.URL.Path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ledger responded %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	return utils.Unmarshal(body, out)
}
