package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"sao-files/types"
)

const (
	// DefaultChunkSize is the fixed plaintext segment size: 32 MiB.
	DefaultChunkSize = 32 << 20

	frameHeaderSize = 8
	gcmIVSize       = 12
	gcmTagSize      = 16
)

// Codec seals a byte stream into framed authenticated chunks and opens
// them again. Each frame is: 8 digit zero-padded ASCII length of
// iv+ciphertext+tag, the 12-byte iv, then ciphertext followed by the tag.
type Codec struct {
	// ChunkSize is the plaintext bytes per chunk. Zero means DefaultChunkSize.
	ChunkSize int
}

func (c Codec) chunkSize() int {
	if c.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return c.ChunkSize
}

// Encrypt splits reader into fixed-size segments and seals each with
// AES-256-GCM under bundle.Key. Segment 0 uses the bundle IV truncated to
// 12 bytes, later segments use fresh random IVs.
func (c Codec) Encrypt(reader io.Reader, bundle *types.AesBundle) ([]types.EncryptedChunk, error) {
	aead, err := newAead(bundle)
	if err != nil {
		return nil, err
	}

	var chunks []types.EncryptedChunk
	segment := make([]byte, c.chunkSize())
	for index := 0; ; index++ {
		n, err := io.ReadFull(reader, segment)
		if err == io.EOF {
			if index > 0 {
				break
			}
			// an empty input still yields one sealed chunk so that the
			// receiver can authenticate emptiness
			n = 0
		} else if err != nil && err != io.ErrUnexpectedEOF {
			return nil, types.Wrap(types.ErrReadFileFailed, err)
		}

		var iv []byte
		if index == 0 {
			iv = bundle.IV[:gcmIVSize]
		} else {
			iv = make([]byte, gcmIVSize)
			if _, err := io.ReadFull(rand.Reader, iv); err != nil {
				return nil, types.Wrap(types.ErrCreateBundleFailed, err)
			}
		}

		sealed := aead.Seal(nil, iv, segment[:n], nil)
		frame := make([]byte, 0, frameHeaderSize+gcmIVSize+len(sealed))
		frame = append(frame, []byte(fmt.Sprintf("%08d", gcmIVSize+len(sealed)))...)
		frame = append(frame, iv...)
		frame = append(frame, sealed...)

		chunks = append(chunks, types.EncryptedChunk{
			Index:     index,
			Data:      frame,
			PlainSize: n,
		})

		if n < c.chunkSize() {
			break
		}
	}

	log.Debugf("sealed %d chunk(s)", len(chunks))
	return chunks, nil
}

// Decrypt walks the concatenated frames in blob and opens each one,
// returning the reassembled plaintext. A bad header or an undersized body
// is a format error; a tag failure is an integrity error and never yields
// unauthenticated output.
func (c Codec) Decrypt(blob []byte, bundle *types.AesBundle) ([]byte, error) {
	aead, err := newAead(bundle)
	if err != nil {
		return nil, err
	}

	var plain bytes.Buffer
	rest := blob
	for index := 0; len(rest) > 0; index++ {
		body, next, err := nextFrame(rest, index)
		if err != nil {
			return nil, err
		}
		rest = next

		iv := body[:gcmIVSize]
		opened, err := aead.Open(nil, iv, body[gcmIVSize:], nil)
		if err != nil {
			return nil, types.Wrapf(types.ErrIntegrity, "chunk %d: %v", index, err)
		}
		plain.Write(opened)
	}

	return plain.Bytes(), nil
}

// DecryptFrame opens the single frame at the start of blob and returns the
// plaintext along with the unconsumed remainder.
func (c Codec) DecryptFrame(blob []byte, index int, bundle *types.AesBundle) ([]byte, []byte, error) {
	aead, err := newAead(bundle)
	if err != nil {
		return nil, nil, err
	}

	body, rest, err := nextFrame(blob, index)
	if err != nil {
		return nil, nil, err
	}

	opened, err := aead.Open(nil, body[:gcmIVSize], body[gcmIVSize:], nil)
	if err != nil {
		return nil, nil, types.Wrapf(types.ErrIntegrity, "chunk %d: %v", index, err)
	}
	return opened, rest, nil
}

func nextFrame(blob []byte, index int) (body []byte, rest []byte, err error) {
	if len(blob) < frameHeaderSize {
		return nil, nil, types.Wrapf(types.ErrMalformedFrame, "chunk %d: truncated size header", index)
	}

	size := 0
	for _, ch := range blob[:frameHeaderSize] {
		if ch < '0' || ch > '9' {
			return nil, nil, types.Wrapf(types.ErrMalformedFrame, "chunk %d: non numeric size header %q", index, blob[:frameHeaderSize])
		}
		size = size*10 + int(ch-'0')
	}

	if len(blob) < frameHeaderSize+size {
		return nil, nil, types.Wrapf(types.ErrMalformedFrame, "chunk %d: frame declares %d bytes, %d available", index, size, len(blob)-frameHeaderSize)
	}
	if size < gcmIVSize+gcmTagSize {
		return nil, nil, types.Wrapf(types.ErrMalformedFrame, "chunk %d: undersized ciphertext (%d bytes)", index, size)
	}

	return blob[frameHeaderSize : frameHeaderSize+size], blob[frameHeaderSize+size:], nil
}

func newAead(bundle *types.AesBundle) (cipher.AEAD, error) {
	if bundle == nil || len(bundle.Key) != types.BundleKeySize || len(bundle.IV) < gcmIVSize {
		return nil, types.Wrapf(types.ErrMalformedKey, "invalid bundle")
	}

	block, err := aes.NewCipher(bundle.Key)
	if err != nil {
		return nil, types.Wrap(types.ErrCreateBundleFailed, err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, types.Wrap(types.ErrCreateBundleFailed, err)
	}
	return aead, nil
}
