package client

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"sao-files/chain"
	"sao-files/crypto"
	"sao-files/transfer"
	"sao-files/types"
	"sao-files/utils"

	eciesgo "github.com/ecies/go/v2"
)

type UploadOptions struct {
	Path string
	// Recipient is the wallet address the file key is wrapped for.
	// Empty means the uploader themselves.
	Recipient      string
	ExpirationDays int
	Progress       transfer.ProgressFunc
}

// Upload encrypts the file at opt.Path, registers it, pushes the chunks
// to the ranked providers and fans the metadata out to the indexers.
func (sc *SaoFilesClient) Upload(ctx context.Context, opt UploadOptions) (*types.UploadResult, error) {
	if err := sc.acquire(); err != nil {
		return nil, err
	}
	defer sc.release()

	content, err := os.ReadFile(opt.Path)
	if err != nil {
		return nil, types.Wrap(types.ErrReadFileFailed, err)
	}

	owner, err := sc.enable(ctx)
	if err != nil {
		return nil, err
	}

	recipient := opt.Recipient
	if recipient == "" {
		recipient = owner
	}
	recipientPub, err := sc.recipientKey(ctx, owner, recipient)
	if err != nil {
		return nil, err
	}

	bundle, err := crypto.NewAesBundle()
	if err != nil {
		return nil, err
	}

	chunks, err := sc.codec.Encrypt(bytes.NewReader(content), bundle)
	if err != nil {
		return nil, err
	}

	descriptors := make([]types.ChunkDescriptor, len(chunks))
	frames := make([][]byte, len(chunks))
	var cipherSize int64
	for i, chunk := range chunks {
		descriptors[i] = types.ChunkDescriptor{
			Index: chunk.Index,
			Hash:  utils.MerkleRoot(chunk.Data),
			Size:  int64(len(chunk.Data)),
		}
		frames[i] = chunk.Data
		cipherSize += int64(len(chunk.Data))
	}
	combinedRoot := utils.CombinedMerkleRoot(frames)

	contentCid, err := utils.CalculateCid(bytes.Join(frames, nil))
	if err != nil {
		return nil, err
	}

	expirationDays := opt.ExpirationDays
	if expirationDays <= 0 {
		expirationDays = sc.Cfg.ExpirationDays
	}
	expiration := time.Now().AddDate(0, 0, expirationDays).Unix()

	registration, err := sc.ledger.RegisterFile(ctx, &chain.RegisterFileRequest{
		Owner:          owner,
		MerkleRoot:     combinedRoot,
		Cid:            contentCid.String(),
		Size:           cipherSize,
		ChunkCount:     len(chunks),
		ExpirationTime: expiration,
	})
	if err != nil {
		return nil, err
	}

	session := &types.TransferSession{UploadId: utils.GenerateUploadId()}
	log.Infof("upload %s: %s, %d chunk(s), root %s", session.UploadId, filepath.Base(opt.Path), len(chunks), combinedRoot)

	coordinator := transfer.NewUploadCoordinator(sc.Cfg.RequestTimeout)
	accepted, err := coordinator.Run(ctx, session, &transfer.UploadRequest{
		Chunks:      chunks,
		Descriptors: descriptors,
		MerkleRoot:  combinedRoot,
		Owner:       owner,
		TxHash:      registration.TxHash,
		Expiration:  expiration,
		Providers:   registration.Providers,
		Primary:     registration.Primary,
		Progress:    opt.Progress,
	})
	if err != nil {
		return nil, err
	}

	wrapped, err := crypto.WrapKey(bundle, recipientPub)
	if err != nil {
		return nil, err
	}

	distributor := transfer.NewMetadataDistributor(sc.ledger, sc.Cfg.RequestTimeout)
	distribution, err := distributor.Submit(ctx, owner, combinedRoot, descriptors, wrapped)
	if err != nil {
		return nil, err
	}

	return &types.UploadResult{
		MerkleRoot: combinedRoot,
		Cid:        contentCid.String(),
		TxHash:     registration.TxHash,
		Chunks:     descriptors,
		Provider:   accepted,
		Indexers:   distribution,
	}, nil
}

// Download retrieves merkleRoot from its primary provider, reassembles
// the multipart stream, unwraps the file key and decrypts into outPath.
// There is no retry: a failed download is re-invoked from scratch.
func (sc *SaoFilesClient) Download(ctx context.Context, merkleRoot string, outPath string, progress transfer.ProgressFunc) (*types.DownloadResult, error) {
	if err := sc.acquire(); err != nil {
		return nil, err
	}
	defer sc.release()

	owner, err := sc.enable(ctx)
	if err != nil {
		return nil, err
	}

	providers, primary, err := sc.ledger.GetProviders(ctx, merkleRoot)
	if err != nil {
		return nil, err
	}
	provider := providers[0]
	for _, p := range providers {
		if p.Id == primary {
			provider = p
			break
		}
	}

	downloader := transfer.NewDownloader(sc.Cfg.RequestTimeout)
	response, err := downloader.Fetch(ctx, provider, merkleRoot, progress)
	if err != nil {
		return nil, err
	}

	// the combined root is the content identifier: a provider stream that
	// reassembled to different ciphertext is rejected before any frame is
	// opened, even when each surviving frame authenticates on its own
	if got := utils.MerkleRoot(response.Data); got != merkleRoot {
		return nil, types.Wrapf(types.ErrIntegrity, "reassembled ciphertext hashes to %s, requested %s", got, merkleRoot)
	}

	distributor := transfer.NewMetadataDistributor(sc.ledger, sc.Cfg.RequestTimeout)
	meta, err := distributor.Lookup(ctx, merkleRoot)
	if err != nil {
		return nil, err
	}

	priv, err := sc.keys.Derive(ctx, sc.wallet, sc.Cfg.ChainId, owner)
	if err != nil {
		return nil, err
	}

	// the published key is the source of truth: a keypair derived under a
	// stale seed message must never silently decrypt garbage
	published, err := sc.ledger.GetPublishedKey(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err = crypto.VerifyPublishedKey(priv, published); err != nil {
		return nil, err
	}

	bundle, err := crypto.UnwrapKey(types.WrappedKey(meta.EncryptedFileKey), priv)
	if err != nil {
		return nil, err
	}

	var plain bytes.Buffer
	rest := response.Data
	for index := 0; len(rest) > 0; index++ {
		opened, next, err := sc.codec.DecryptFrame(rest, index, bundle)
		if err != nil {
			return nil, err
		}
		plain.Write(opened)
		rest = next
	}

	name := response.Name
	if name == "" {
		name = merkleRoot
	}
	target := outPath
	if target == "" {
		target = name
	}
	if err = os.WriteFile(target, plain.Bytes(), 0644); err != nil {
		return nil, types.Wrap(types.ErrWriteFileFailed, err)
	}

	log.Infof("download %s: %d chunk(s), %d byte(s) -> %s", merkleRoot, response.TotalChunks, plain.Len(), target)
	return &types.DownloadResult{
		Name:        name,
		ContentType: response.ContentType,
		Size:        int64(plain.Len()),
		Chunks:      response.TotalChunks,
	}, nil
}

// recipientKey resolves the ECIES public key the file key is wrapped for.
// For self-uploads a missing published key is derived and published on
// the fly; for third parties it is a hard error.
func (sc *SaoFilesClient) recipientKey(ctx context.Context, owner string, recipient string) (*eciesgo.PublicKey, error) {
	published, err := sc.ledger.GetPublishedKey(ctx, recipient)
	if err != nil {
		if recipient != owner {
			return nil, err
		}

		priv, derr := sc.keys.Derive(ctx, sc.wallet, sc.Cfg.ChainId, owner)
		if derr != nil {
			return nil, derr
		}
		published = crypto.PublicKeyHex(priv)
		if perr := sc.ledger.PublishKey(ctx, owner, published); perr != nil {
			return nil, perr
		}
	}

	pub, err := crypto.PublicKeyFromHex(published)
	if err != nil {
		return nil, err
	}
	return pub, nil
}
