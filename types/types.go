package types

// AesBundle is the per-file symmetric secret: a 256-bit AEAD key and the
// 16-byte IV registered together with the file. The bundle only lives in
// memory for the duration of one transfer and is never persisted in clear.
type AesBundle struct {
	IV  []byte
	Key []byte
}

const (
	BundleIVSize  = 16
	BundleKeySize = 32
)

// EncryptedChunk is one sealed segment of the input file, already framed:
// an 8 digit zero-padded ASCII length of iv+ciphertext+tag, the 12-byte
// GCM iv, then ciphertext followed by the 16-byte tag.
type EncryptedChunk struct {
	Index int
	// Data holds the complete frame, header included.
	Data []byte
	// PlainSize is the plaintext byte count sealed into this chunk.
	PlainSize int
}

// WrappedKey is an AesBundle encrypted for one recipient:
// hex(ecies(iv)) + "|" + hex(ecies(key)).
type WrappedKey string

// ChunkDescriptor describes one uploaded chunk for the indexers. Index
// values are contiguous from 0.
type ChunkDescriptor struct {
	Index int    `json:"index"`
	Hash  string `json:"hash"`
	Size  int64  `json:"size"`
}

// ProviderRef points to a storage node able to host file chunks. The
// ranked list comes from the ledger and is never reordered locally except
// for moving the designated primary to the front.
type ProviderRef struct {
	Id      string `json:"provider_id"`
	Address string `json:"provider_address"`
}

// IndexerRef points to a chunk metadata indexer.
type IndexerRef struct {
	Id      string `json:"indexer_id"`
	Address string `json:"indexer_address"`
	Active  bool   `json:"active"`
}

// TransferSession tracks the progress of a single upload call. It is
// discarded on completion or terminal failure, never persisted.
type TransferSession struct {
	UploadId        string
	ChunkIndex      int
	ProviderAttempt int
}

// FileMetadata is the indexer record for one stored file.
type FileMetadata struct {
	Owner            string            `json:"owner"`
	MerkleRoot       string            `json:"merkleRoot"`
	EncryptedFileKey string            `json:"encryptedFileKey"`
	Chunks           []ChunkDescriptor `json:"chunks,omitempty"`
}

// DistributeResult reports the indexer fan-out outcome. Failures are
// recorded, not escalated, as long as at least one indexer accepted.
type DistributeResult struct {
	SuccessCount int
	FailureCount int
	Succeeded    []string
}

type UploadResult struct {
	MerkleRoot string
	Cid        string
	TxHash     string
	Chunks     []ChunkDescriptor
	Provider   string
	Indexers   *DistributeResult
}

type DownloadResult struct {
	Name        string
	ContentType string
	Size        int64
	Chunks      int
}
