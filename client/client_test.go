package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"testing"

	"sao-files/chain"
	"sao-files/crypto"
	"sao-files/types"
	"sao-files/utils"

	"github.com/stretchr/testify/require"
)

type fakeWallet struct {
	address string
}

func (w *fakeWallet) Enable(ctx context.Context, chainId string) error {
	return nil
}

func (w *fakeWallet) GetAddress(ctx context.Context) (string, error) {
	return w.address, nil
}

func (w *fakeWallet) SignArbitrary(ctx context.Context, chainId string, address string, message string) (string, error) {
	mac := hmac.New(sha256.New, []byte(address))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// fakeLedger keeps registrations and published keys in memory.
type fakeLedger struct {
	lk        sync.Mutex
	keys      map[string]string
	providers []types.ProviderRef
	indexers  []types.IndexerRef
}

func (l *fakeLedger) GetProviders(ctx context.Context, merkleRoot string) ([]types.ProviderRef, string, error) {
	return l.providers, l.providers[0].Id, nil
}

func (l *fakeLedger) GetIndexers(ctx context.Context, merkleRoot string) ([]types.IndexerRef, error) {
	return l.indexers, nil
}

func (l *fakeLedger) GetPublishedKey(ctx context.Context, owner string) (string, error) {
	l.lk.Lock()
	defer l.lk.Unlock()
	key, ok := l.keys[owner]
	if !ok {
		return "", types.Wrapf(types.ErrKeyNotPublished, "owner %s", owner)
	}
	return key, nil
}

func (l *fakeLedger) PublishKey(ctx context.Context, owner string, publicKey string) error {
	l.lk.Lock()
	defer l.lk.Unlock()
	l.keys[owner] = publicKey
	return nil
}

func (l *fakeLedger) RegisterFile(ctx context.Context, req *chain.RegisterFileRequest) (*chain.RegisterFileResponse, error) {
	return &chain.RegisterFileResponse{
		TxHash:    "0xabc123",
		Primary:   l.providers[0].Id,
		Providers: l.providers,
	}, nil
}

// fakeProvider stores uploaded chunk frames and serves them back as a
// multipart/byteranges stream in reverse index order.
type fakeProvider struct {
	lk     sync.Mutex
	chunks map[string]map[int][]byte
	names  map[string]string

	// dropLast withholds the highest-index part; omitTotal leaves out the
	// X-Total-Chunks header
	dropLast  bool
	omitTotal bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		chunks: make(map[string]map[int][]byte),
		names:  make(map[string]string),
	}
}

func (p *fakeProvider) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/storage/files/upload":
			require.NoError(t, r.ParseMultipartForm(1<<22))
			root := r.FormValue("combined_merkle_root")
			index, err := strconv.Atoi(r.FormValue("chunk_index"))
			require.NoError(t, err)
			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			frame, err := io.ReadAll(file)
			require.NoError(t, err)

			p.lk.Lock()
			if p.chunks[root] == nil {
				p.chunks[root] = make(map[int][]byte)
			}
			p.chunks[root][index] = frame
			p.names[root] = header.Filename
			p.lk.Unlock()
			w.WriteHeader(http.StatusOK)

		case "/api/storage/v1/files/download":
			root := r.URL.Query().Get("merkle_root")
			p.lk.Lock()
			stored := p.chunks[root]
			p.lk.Unlock()
			if stored == nil {
				http.Error(w, "unknown merkle root", http.StatusNotFound)
				return
			}

			indices := make([]int, 0, len(stored))
			for index := range stored {
				indices = append(indices, index)
			}
			sort.Sort(sort.Reverse(sort.IntSlice(indices)))
			if p.dropLast && len(indices) > 0 {
				indices = indices[1:]
			}

			const boundary = "provider-part-boundary"
			w.Header().Set("Content-Type", "multipart/byteranges; boundary="+boundary)
			if !p.omitTotal {
				w.Header().Set("X-Total-Chunks", strconv.Itoa(len(stored)))
			}
			w.Header().Set("X-Original-Name", "restored.bin")
			w.Header().Set("X-Content-Type", "application/octet-stream")

			for _, index := range indices {
				fmt.Fprintf(w, "--%s\r\nX-Chunk-Index: %d\r\n\r\n", boundary, index)
				w.Write(stored[index]) //nolint:errcheck
				io.WriteString(w, "\r\n") //nolint:errcheck
			}
			fmt.Fprintf(w, "--%s--\r\n", boundary)

		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}
}

// fakeIndexer stores and serves file metadata.
type fakeIndexer struct {
	lk   sync.Mutex
	meta map[string]types.FileMetadata
}

func (ix *fakeIndexer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/indexer/v1/chunks", r.URL.Path)

		if r.Method == http.MethodPost {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			var meta types.FileMetadata
			require.NoError(t, utils.Unmarshal(body, &meta))

			ix.lk.Lock()
			ix.meta[meta.MerkleRoot] = meta
			ix.lk.Unlock()
			w.WriteHeader(http.StatusCreated)
			return
		}

		ix.lk.Lock()
		meta, ok := ix.meta[r.URL.Query().Get("merkle_root")]
		ix.lk.Unlock()
		if !ok {
			http.Error(w, "unknown merkle root", http.StatusNotFound)
			return
		}
		payload, err := utils.Marshal(meta)
		require.NoError(t, err)
		w.Write(payload) //nolint:errcheck
	}
}

func testClient(t *testing.T, ledger chain.LedgerSvcApi) *SaoFilesClient {
	sc, err := NewSaoFilesClient(context.Background(), SaoFilesOptions{
		Repo:   t.TempDir(),
		Wallet: &fakeWallet{address: "sao1alice"},
		Ledger: ledger,
	})
	require.NoError(t, err)
	return sc
}

func TestUploadDownloadRoundtrip(t *testing.T) {
	provider := newFakeProvider()
	providerServer := httptest.NewServer(provider.handler(t))
	defer providerServer.Close()

	indexer := &fakeIndexer{meta: make(map[string]types.FileMetadata)}
	indexerServer := httptest.NewServer(indexer.handler(t))
	defer indexerServer.Close()

	ledger := &fakeLedger{
		keys: make(map[string]string),
		providers: []types.ProviderRef{
			{Id: "p1", Address: providerServer.URL},
		},
		indexers: []types.IndexerRef{
			{Id: "i1", Address: indexerServer.URL, Active: true},
		},
	}

	sc := testClient(t, ledger)
	// small chunk size so the file spans several chunks
	sc.codec = crypto.Codec{ChunkSize: 1024}

	content := make([]byte, 3000)
	rand.Read(content)
	input := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(input, content, 0644))

	ctx := context.Background()
	result, err := sc.Upload(ctx, UploadOptions{Path: input})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 3)
	require.Equal(t, "p1", result.Provider)
	require.Equal(t, 1, result.Indexers.SuccessCount)
	// the key was auto-published for the uploader
	require.NotEmpty(t, ledger.keys["sao1alice"])

	// the provider stores ciphertext, never the plaintext
	for _, frame := range provider.chunks[result.MerkleRoot] {
		require.NotContains(t, string(frame), string(content[:64]))
	}

	var progressed int
	output := filepath.Join(t.TempDir(), "output.bin")
	download, err := sc.Download(ctx, result.MerkleRoot, output, func(index, total int) {
		progressed++
		require.Equal(t, 3, total)
	})
	require.NoError(t, err)
	require.Equal(t, "restored.bin", download.Name)
	require.Equal(t, int64(len(content)), download.Size)
	require.Equal(t, 3, progressed)

	restored, err := os.ReadFile(output)
	require.NoError(t, err)
	require.True(t, bytes.Equal(content, restored))
}

func TestBusyFlagRejectsOverlappingTransfers(t *testing.T) {
	ledger := &fakeLedger{
		keys:      map[string]string{},
		providers: []types.ProviderRef{{Id: "p1", Address: "http://127.0.0.1:1"}},
	}
	sc := testClient(t, ledger)

	require.NoError(t, sc.acquire())
	_, err := sc.Upload(context.Background(), UploadOptions{Path: "whatever"})
	require.ErrorIs(t, err, types.ErrAlreadyRunning)
	_, err = sc.Download(context.Background(), "some-root", "", nil)
	require.ErrorIs(t, err, types.ErrAlreadyRunning)

	sc.release()
	// released again, the pipeline proceeds past the guard
	_, err = sc.Upload(context.Background(), UploadOptions{Path: filepath.Join(t.TempDir(), "missing")})
	require.ErrorIs(t, err, types.ErrReadFileFailed)
}

func TestConfigBootstrap(t *testing.T) {
	repo := t.TempDir()
	ledger := &fakeLedger{keys: map[string]string{}}

	_, err := NewSaoFilesClient(context.Background(), SaoFilesOptions{
		Repo:   repo,
		Wallet: &fakeWallet{address: "sao1alice"},
		Ledger: ledger,
	})
	require.NoError(t, err)

	// first run wrote the defaults
	_, err = os.Stat(filepath.Join(repo, "config.toml"))
	require.NoError(t, err)

	sc, err := NewSaoFilesClient(context.Background(), SaoFilesOptions{
		Repo:   repo,
		Wallet: &fakeWallet{address: "sao1alice"},
		Ledger: ledger,
	})
	require.NoError(t, err)
	require.Equal(t, DefaultSaoFilesConfig().ChainId, sc.Cfg.ChainId)
	require.Equal(t, DefaultSaoFilesConfig().RequestTimeout, sc.Cfg.RequestTimeout)
}

func TestOptionsOverrideConfig(t *testing.T) {
	keyring := t.TempDir()
	sc, err := NewSaoFilesClient(context.Background(), SaoFilesOptions{
		Repo:         t.TempDir(),
		ChainAddress: "http://ledger.example:1317",
		ChainId:      "sao-devnet",
		KeyName:      "alice",
		KeyringHome:  keyring,
		Wallet:       &fakeWallet{address: "sao1alice"},
		Ledger:       &fakeLedger{keys: map[string]string{}},
	})
	require.NoError(t, err)
	require.Equal(t, "http://ledger.example:1317", sc.Cfg.ChainAddress)
	require.Equal(t, "sao-devnet", sc.Cfg.ChainId)
	require.Equal(t, "alice", sc.Cfg.KeyName)
	require.Equal(t, keyring, sc.Cfg.KeyringHome)
}

func TestDownloadRejectsStaleDerivedKey(t *testing.T) {
	provider := newFakeProvider()
	providerServer := httptest.NewServer(provider.handler(t))
	defer providerServer.Close()

	indexer := &fakeIndexer{meta: make(map[string]types.FileMetadata)}
	indexerServer := httptest.NewServer(indexer.handler(t))
	defer indexerServer.Close()

	ledger := &fakeLedger{
		keys:      make(map[string]string),
		providers: []types.ProviderRef{{Id: "p1", Address: providerServer.URL}},
		indexers:  []types.IndexerRef{{Id: "i1", Address: indexerServer.URL, Active: true}},
	}

	sc := testClient(t, ledger)
	sc.codec = crypto.Codec{ChunkSize: 1024}

	input := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(input, []byte("guarded content"), 0644))

	ctx := context.Background()
	result, err := sc.Upload(ctx, UploadOptions{Path: input})
	require.NoError(t, err)

	// someone re-published a different key: the derived one must be refused
	ledger.keys["sao1alice"] = "04deadbeef"
	_, err = sc.Download(ctx, result.MerkleRoot, filepath.Join(t.TempDir(), "out.bin"), nil)
	require.ErrorIs(t, err, types.ErrKeyMismatch)
}

func TestDownloadRejectsTruncatedStream(t *testing.T) {
	provider := newFakeProvider()
	providerServer := httptest.NewServer(provider.handler(t))
	defer providerServer.Close()

	indexer := &fakeIndexer{meta: make(map[string]types.FileMetadata)}
	indexerServer := httptest.NewServer(indexer.handler(t))
	defer indexerServer.Close()

	ledger := &fakeLedger{
		keys:      make(map[string]string),
		providers: []types.ProviderRef{{Id: "p1", Address: providerServer.URL}},
		indexers:  []types.IndexerRef{{Id: "i1", Address: indexerServer.URL, Active: true}},
	}

	sc := testClient(t, ledger)
	sc.codec = crypto.Codec{ChunkSize: 1024}

	content := make([]byte, 3000)
	rand.Read(content)
	input := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(input, content, 0644))

	ctx := context.Background()
	result, err := sc.Upload(ctx, UploadOptions{Path: input})
	require.NoError(t, err)
	require.Len(t, result.Chunks, 3)

	// the provider drops the trailing part and the part count header: the
	// surviving frames still authenticate individually, so only the root
	// check can catch the truncation
	provider.dropLast = true
	provider.omitTotal = true

	output := filepath.Join(t.TempDir(), "out.bin")
	_, err = sc.Download(ctx, result.MerkleRoot, output, nil)
	require.ErrorIs(t, err, types.ErrIntegrity)

	// nothing was written
	_, err = os.Stat(output)
	require.True(t, os.IsNotExist(err))
}
