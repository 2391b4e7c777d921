package transfer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"sao-files/chain"
	"sao-files/types"
	"sao-files/utils"
)

const chunksPath = "/api/indexer/v1/chunks"

// MetadataDistributor publishes chunk descriptors and the wrapped file
// key to every indexer responsible for a merkle root. This is the only
// concurrent fan-out in the pipeline and it joins all results: a failing
// indexer is recorded, never escalated, as long as one accepts.
type MetadataDistributor struct {
	ledger  chain.LedgerSvcApi
	client  *http.Client
	timeout time.Duration
}

func NewMetadataDistributor(ledger chain.LedgerSvcApi, timeout time.Duration) *MetadataDistributor {
	return &MetadataDistributor{
		ledger:  ledger,
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Submit fans the same payload out to every active indexer for
// merkleRoot. Zero acceptances is a hard failure.
func (md *MetadataDistributor) Submit(ctx context.Context, owner string, merkleRoot string, descriptors []types.ChunkDescriptor, wrappedKey types.WrappedKey) (*types.DistributeResult, error) {
	indexers, err := md.ledger.GetIndexers(ctx, merkleRoot)
	if err != nil {
		return nil, err
	}

	active := make([]types.IndexerRef, 0, len(indexers))
	for _, indexer := range indexers {
		if indexer.Active {
			active = append(active, indexer)
		}
	}
	if len(active) == 0 {
		return nil, types.Wrapf(types.ErrNoIndexerAccepted, "no active indexer for %s", merkleRoot)
	}

	payload, err := utils.Marshal(types.FileMetadata{
		Owner:            owner,
		MerkleRoot:       merkleRoot,
		EncryptedFileKey: string(wrappedKey),
		Chunks:           descriptors,
	})
	if err != nil {
		return nil, err
	}

	results := make([]error, len(active))
	var wg sync.WaitGroup
	for i, indexer := range active {
		wg.Add(1)
		go func(i int, indexer types.IndexerRef) {
			defer wg.Done()
			results[i] = md.submitOne(ctx, indexer, payload)
		}(i, indexer)
	}
	wg.Wait()

	result := &types.DistributeResult{}
	var lastErr error
	for i, err := range results {
		if err == nil {
			result.SuccessCount++
			result.Succeeded = append(result.Succeeded, active[i].Id)
		} else {
			result.FailureCount++
			lastErr = err
			log.Warnf("indexer %s rejected metadata for %s: %v", active[i].Id, merkleRoot, err)
		}
	}

	if result.SuccessCount == 0 {
		return nil, types.Wrap(types.ErrNoIndexerAccepted, lastErr)
	}

	log.Infof("metadata for %s accepted by %d/%d indexer(s)", merkleRoot, result.SuccessCount, len(active))
	return result, nil
}

func (md *MetadataDistributor) submitOne(ctx context.Context, indexer types.IndexerRef, payload []byte) error {
	callCtx, cancel := context.WithTimeout(ctx, md.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, indexer.Address+chunksPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := md.client.Do(req)
	if err != nil {
		return classify(callCtx, err, "indexer %s", indexer.Id)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(resp.Body)
		return types.Wrapf(types.ErrNetwork, "indexer %s: status %d: %s", indexer.Id, resp.StatusCode, bytes.TrimSpace(msg))
	}

	return nil
}

// Lookup asks the indexers, in ledger order, for the stored metadata of
// merkleRoot. The first answer wins.
func (md *MetadataDistributor) Lookup(ctx context.Context, merkleRoot string) (*types.FileMetadata, error) {
	indexers, err := md.ledger.GetIndexers(ctx, merkleRoot)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, indexer := range indexers {
		if !indexer.Active {
			continue
		}

		meta, err := md.lookupOne(ctx, indexer, merkleRoot)
		if err == nil {
			return meta, nil
		}
		lastErr = err
		log.Debugf("indexer %s lookup for %s failed: %v", indexer.Id, merkleRoot, err)
	}

	if lastErr == nil {
		return nil, types.Wrapf(types.ErrMetadataNotFound, "no active indexer for %s", merkleRoot)
	}
	return nil, types.Wrap(types.ErrMetadataNotFound, lastErr)
}

func (md *MetadataDistributor) lookupOne(ctx context.Context, indexer types.IndexerRef, merkleRoot string) (*types.FileMetadata, error) {
	callCtx, cancel := context.WithTimeout(ctx, md.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, indexer.Address+chunksPath+"?merkle_root="+merkleRoot, nil)
	if err != nil {
		return nil, err
	}

	resp, err := md.client.Do(req)
	if err != nil {
		return nil, classify(callCtx, err, "indexer %s", indexer.Id)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, types.Wrapf(types.ErrNetwork, "indexer %s: status %d: %s", indexer.Id, resp.StatusCode, bytes.TrimSpace(body))
	}

	var meta types.FileMetadata
	if err := utils.Unmarshal(body, &meta); err != nil {
		return nil, err
	}
	if meta.EncryptedFileKey == "" {
		return nil, types.Wrapf(types.ErrMetadataNotFound, "indexer %s returned no file key", indexer.Id)
	}
	return &meta, nil
}
