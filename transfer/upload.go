package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"sao-files/types"
	"sao-files/utils"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("transfer")

const uploadPath = "/api/storage/files/upload"

// UploadRequest carries everything a provider needs to accept the file.
type UploadRequest struct {
	Chunks      []types.EncryptedChunk
	Descriptors []types.ChunkDescriptor
	MerkleRoot  string
	Owner       string
	TxHash      string
	Expiration  int64
	Providers   []types.ProviderRef
	Primary     string
	Progress    ProgressFunc
}

// UploadCoordinator pushes chunks to one provider at a time, strictly in
// index order, and fails over to the next ranked provider on the first
// error. Providers are full mirrors: a failover restarts at chunk 0,
// there is no cross-provider resume.
type UploadCoordinator struct {
	client  *http.Client
	timeout time.Duration
}

func NewUploadCoordinator(timeout time.Duration) *UploadCoordinator {
	return &UploadCoordinator{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Run uploads every chunk to the first ranked provider that accepts all
// of them, the designated primary first. Exhausting the ranking returns a
// transfer error wrapping the last underlying failure.
func (uc *UploadCoordinator) Run(ctx context.Context, session *types.TransferSession, req *UploadRequest) (string, error) {
	ranked := rankProviders(req.Providers, req.Primary)

	var lastErr error
	for attempt, provider := range ranked {
		session.ProviderAttempt = attempt
		session.ChunkIndex = 0

		err := uc.uploadAll(ctx, session, provider, req)
		if err == nil {
			log.Infof("upload %s: %d chunk(s) accepted by provider %s", session.UploadId, len(req.Chunks), provider.Id)
			return provider.Id, nil
		}

		lastErr = err
		log.Warnf("upload %s: provider %s failed at chunk %d: %v", session.UploadId, provider.Id, session.ChunkIndex, err)

		// a canceled or expired top-level context stops the failover loop
		if ctx.Err() != nil {
			break
		}
	}

	return "", types.Wrap(types.ErrTransferFailed, lastErr)
}

func (uc *UploadCoordinator) uploadAll(ctx context.Context, session *types.TransferSession, provider types.ProviderRef, req *UploadRequest) error {
	others := alternates(req.Providers, provider.Id)
	for _, chunk := range req.Chunks {
		session.ChunkIndex = chunk.Index
		if err := uc.uploadChunk(ctx, provider, chunk, req, others); err != nil {
			return err
		}
		if req.Progress != nil {
			req.Progress(chunk.Index, len(req.Chunks))
		}
	}
	return nil
}

func (uc *UploadCoordinator) uploadChunk(ctx context.Context, provider types.ProviderRef, chunk types.EncryptedChunk, req *UploadRequest, others []types.ProviderRef) error {
	othersJson, err := utils.Marshal(others)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", fmt.Sprintf("%s.%d", req.MerkleRoot, chunk.Index))
	if err != nil {
		return err
	}
	if _, err = part.Write(chunk.Data); err != nil {
		return err
	}

	fields := map[string]string{
		"merkle_root":          req.Descriptors[chunk.Index].Hash,
		"combined_merkle_root": req.MerkleRoot,
		"owner":                req.Owner,
		"expiration_time":      strconv.FormatInt(req.Expiration, 10),
		"chunk_index":          strconv.Itoa(chunk.Index),
		"total_chunks":         strconv.Itoa(len(req.Chunks)),
		"transaction_hash":     req.TxHash,
		"other_providers":      string(othersJson),
	}
	for name, value := range fields {
		if err = form.WriteField(name, value); err != nil {
			return err
		}
	}
	if err = form.Close(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, provider.Address+uploadPath, &body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := uc.client.Do(httpReq)
	if err != nil {
		return classify(callCtx, err, "provider %s chunk %d", provider.Id, chunk.Index)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(resp.Body)
		return types.Wrapf(types.ErrNetwork, "provider %s chunk %d: status %d: %s", provider.Id, chunk.Index, resp.StatusCode, bytes.TrimSpace(msg))
	}

	return nil
}

// rankProviders moves the designated primary to the front and keeps the
// remainder in the ledger's original order.
func rankProviders(providers []types.ProviderRef, primary string) []types.ProviderRef {
	ranked := make([]types.ProviderRef, 0, len(providers))
	for _, p := range providers {
		if p.Id == primary {
			ranked = append(ranked, p)
			break
		}
	}
	for _, p := range providers {
		if p.Id != primary {
			ranked = append(ranked, p)
		}
	}
	return ranked
}

func alternates(providers []types.ProviderRef, current string) []types.ProviderRef {
	others := make([]types.ProviderRef, 0, len(providers))
	for _, p := range providers {
		if p.Id != current {
			others = append(others, p)
		}
	}
	return others
}

// classify separates a deadline expiry from any other transport failure
// so that callers can tell a timeout apart from a server-reported error.
func classify(ctx context.Context, err error, format string, args ...interface{}) error {
	scope := fmt.Sprintf(format, args...)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.Wrapf(types.ErrTimeout, "%s: %v", scope, err)
	}
	return types.Wrapf(types.ErrNetwork, "%s: %v", scope, err)
}
