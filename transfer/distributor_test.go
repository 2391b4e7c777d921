package transfer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"sao-files/chain"
	"sao-files/types"
	"sao-files/utils"

	"github.com/stretchr/testify/require"
)

// fakeLedger serves a fixed indexer set.
type fakeLedger struct {
	indexers []types.IndexerRef
}

func (l *fakeLedger) GetProviders(ctx context.Context, merkleRoot string) ([]types.ProviderRef, string, error) {
	return nil, "", nil
}

func (l *fakeLedger) GetIndexers(ctx context.Context, merkleRoot string) ([]types.IndexerRef, error) {
	return l.indexers, nil
}

func (l *fakeLedger) GetPublishedKey(ctx context.Context, owner string) (string, error) {
	return "", nil
}

func (l *fakeLedger) PublishKey(ctx context.Context, owner string, publicKey string) error {
	return nil
}

func (l *fakeLedger) RegisterFile(ctx context.Context, req *chain.RegisterFileRequest) (*chain.RegisterFileResponse, error) {
	return nil, nil
}

func indexerServer(t *testing.T, accept bool, hits *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, chunksPath, r.URL.Path)
		atomic.AddInt32(hits, 1)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var meta types.FileMetadata
		require.NoError(t, utils.Unmarshal(body, &meta))
		require.Equal(t, "sao1alice", meta.Owner)
		require.NotEmpty(t, meta.MerkleRoot)
		require.NotEmpty(t, meta.EncryptedFileKey)
		require.Len(t, meta.Chunks, 2)

		if !accept {
			http.Error(w, "index rebuild in progress", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
}

func testDescriptors() []types.ChunkDescriptor {
	return []types.ChunkDescriptor{
		{Index: 0, Hash: "hash-0", Size: 100},
		{Index: 1, Hash: "hash-1", Size: 60},
	}
}

func TestDistributorToleratesPartialFailure(t *testing.T) {
	var hits [3]int32
	good1 := indexerServer(t, true, &hits[0])
	defer good1.Close()
	bad := indexerServer(t, false, &hits[1])
	defer bad.Close()
	good2 := indexerServer(t, true, &hits[2])
	defer good2.Close()

	ledger := &fakeLedger{indexers: []types.IndexerRef{
		{Id: "i1", Address: good1.URL, Active: true},
		{Id: "i2", Address: bad.URL, Active: true},
		{Id: "i3", Address: good2.URL, Active: true},
	}}

	md := NewMetadataDistributor(ledger, 5*time.Second)
	result, err := md.Submit(context.Background(), "sao1alice", "root-1", testDescriptors(), "aa|bb")
	require.NoError(t, err)
	require.Equal(t, 2, result.SuccessCount)
	require.Equal(t, 1, result.FailureCount)
	require.ElementsMatch(t, []string{"i1", "i3"}, result.Succeeded)

	// every active indexer was addressed exactly once
	for i := range hits {
		require.EqualValues(t, 1, atomic.LoadInt32(&hits[i]))
	}
}

func TestDistributorSkipsInactiveIndexers(t *testing.T) {
	var hits [2]int32
	active := indexerServer(t, true, &hits[0])
	defer active.Close()
	inactive := indexerServer(t, true, &hits[1])
	defer inactive.Close()

	ledger := &fakeLedger{indexers: []types.IndexerRef{
		{Id: "i1", Address: active.URL, Active: true},
		{Id: "i2", Address: inactive.URL, Active: false},
	}}

	md := NewMetadataDistributor(ledger, 5*time.Second)
	result, err := md.Submit(context.Background(), "sao1alice", "root-2", testDescriptors(), "aa|bb")
	require.NoError(t, err)
	require.Equal(t, 1, result.SuccessCount)
	require.EqualValues(t, 0, atomic.LoadInt32(&hits[1]))
}

func TestDistributorZeroSuccessIsHardFailure(t *testing.T) {
	var hits int32
	bad := indexerServer(t, false, &hits)
	defer bad.Close()

	ledger := &fakeLedger{indexers: []types.IndexerRef{
		{Id: "i1", Address: bad.URL, Active: true},
		{Id: "i2", Address: "http://127.0.0.1:1", Active: true},
	}}

	md := NewMetadataDistributor(ledger, 2*time.Second)
	_, err := md.Submit(context.Background(), "sao1alice", "root-3", testDescriptors(), "aa|bb")
	require.ErrorIs(t, err, types.ErrNoIndexerAccepted)
}

func TestDistributorNoActiveIndexers(t *testing.T) {
	ledger := &fakeLedger{indexers: []types.IndexerRef{
		{Id: "i1", Address: "http://127.0.0.1:1", Active: false},
	}}

	md := NewMetadataDistributor(ledger, time.Second)
	_, err := md.Submit(context.Background(), "sao1alice", "root-4", testDescriptors(), "aa|bb")
	require.ErrorIs(t, err, types.ErrNoIndexerAccepted)
}

func TestLookupFirstAnswerWins(t *testing.T) {
	meta := types.FileMetadata{
		Owner:            "sao1alice",
		MerkleRoot:       "root-5",
		EncryptedFileKey: "aa|bb",
		Chunks:           testDescriptors(),
	}

	answering := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := utils.Marshal(meta)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload) //nolint:errcheck
	}))
	defer answering.Close()

	ledger := &fakeLedger{indexers: []types.IndexerRef{
		{Id: "down", Address: "http://127.0.0.1:1", Active: true},
		{Id: "up", Address: answering.URL, Active: true},
	}}

	md := NewMetadataDistributor(ledger, 2*time.Second)
	got, err := md.Lookup(context.Background(), "root-5")
	require.NoError(t, err)
	require.Equal(t, meta.EncryptedFileKey, got.EncryptedFileKey)
	require.Equal(t, meta.Chunks, got.Chunks)
}

func TestLookupAllIndexersDown(t *testing.T) {
	ledger := &fakeLedger{indexers: []types.IndexerRef{
		{Id: "down", Address: "http://127.0.0.1:1", Active: true},
	}}

	md := NewMetadataDistributor(ledger, time.Second)
	_, err := md.Lookup(context.Background(), "root-6")
	require.ErrorIs(t, err, types.ErrMetadataNotFound)
}
