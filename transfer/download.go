package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"sao-files/types"
)

const (
	downloadPath = "/api/storage/v1/files/download"

	readChunkSize = 32 * 1024
)

// ProgressFunc is invoked once per completed part with the part index and
// the total part count.
type ProgressFunc func(index int, total int)

type reassemblerState int

const (
	stateSeekFirstBoundary reassemblerState = iota
	stateReadingPartHeaders
	stateReadingPartBody
	stateDone
)

// Reassembler is a streaming parser over a multipart/byteranges body. It
// consumes one network read at a time, advances as far as the buffered
// bytes permit, and reorders completed parts by their declared chunk
// index: arrival order is not assumed to match final order.
type Reassembler struct {
	boundary []byte // full token: --<boundary>
	closing  []byte // --<boundary>--
	total    int
	progress ProgressFunc

	state reassemblerState
	buf   []byte
	parts map[int][]byte

	partIndex int
	partBody  bytes.Buffer
}

func NewReassembler(boundary string, totalChunks int, progress ProgressFunc) *Reassembler {
	token := []byte("--" + boundary)
	return &Reassembler{
		boundary:  token,
		closing:   append(append([]byte{}, token...), '-', '-'),
		total:     totalChunks,
		progress:  progress,
		state:     stateSeekFirstBoundary,
		parts:     make(map[int][]byte),
		partIndex: -1,
	}
}

// Run drains reader through the state machine and returns the reassembled
// blob. Any unresolved index, missing boundary or malformed part header
// aborts the whole download.
func (r *Reassembler) Run(reader io.Reader) ([]byte, error) {
	chunk := make([]byte, readChunkSize)
	for r.state != stateDone {
		n, err := reader.Read(chunk)
		if n > 0 {
			if ferr := r.feed(chunk[:n]); ferr != nil {
				return nil, ferr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, types.Wrapf(types.ErrNetwork, "download stream: %v", err)
		}
	}

	if r.state != stateDone {
		return nil, types.Wrapf(types.ErrMalformedResponse, "stream ended in state %d before the closing boundary", r.state)
	}

	return r.assemble()
}

// feed appends one network read to the parse buffer and advances the
// state machine as far as the available bytes permit.
func (r *Reassembler) feed(data []byte) error {
	r.buf = append(r.buf, data...)

	for {
		switch r.state {
		case stateSeekFirstBoundary:
			pos := bytes.Index(r.buf, r.boundary)
			if pos < 0 {
				// keep a tail in case the token straddles two reads
				r.trimTo(len(r.boundary) + 4)
				return nil
			}
			r.buf = r.buf[pos+len(r.boundary):]
			r.buf = skipLineBreak(r.buf)
			r.state = stateReadingPartHeaders

		case stateReadingPartHeaders:
			header, rest, found := cutHeaderBlock(r.buf)
			if !found {
				return nil
			}
			index, total, err := parsePartHeaders(header)
			if err != nil {
				return err
			}
			if r.total == 0 && total > 0 {
				r.total = total
			}
			r.partIndex = index
			r.partBody.Reset()
			r.buf = rest
			r.state = stateReadingPartBody

		case stateReadingPartBody:
			pos := bytes.Index(r.buf, r.boundary)
			if pos < 0 {
				// everything but the retained tail is final part content;
				// the tail may hold the head of a split boundary token
				keep := len(r.boundary) + 4
				if len(r.buf) > keep {
					r.partBody.Write(r.buf[:len(r.buf)-keep])
					r.buf = r.buf[len(r.buf)-keep:]
				}
				return nil
			}
			if len(r.buf) < pos+len(r.boundary)+2 {
				// not enough lookahead to tell a middle boundary from the
				// closing one yet
				return nil
			}

			r.partBody.Write(trimPartTail(r.buf[:pos]))
			r.buf = r.buf[pos:]
			if err := r.completePart(); err != nil {
				return err
			}

			if bytes.HasPrefix(r.buf, r.closing) {
				r.state = stateDone
				return nil
			}
			r.buf = r.buf[len(r.boundary):]
			r.buf = skipLineBreak(r.buf)
			r.state = stateReadingPartHeaders

		case stateDone:
			return nil
		}
	}
}

func (r *Reassembler) completePart() error {
	if r.partIndex < 0 {
		return types.Wrapf(types.ErrMalformedResponse, "part completed without a chunk index")
	}
	if _, dup := r.parts[r.partIndex]; dup {
		return types.Wrapf(types.ErrMalformedResponse, "duplicate chunk index %d", r.partIndex)
	}

	body := make([]byte, r.partBody.Len())
	copy(body, r.partBody.Bytes())
	r.parts[r.partIndex] = body

	if r.progress != nil {
		r.progress(r.partIndex, r.total)
	}

	r.partIndex = -1
	return nil
}

// assemble sorts completed parts by declared index and concatenates them.
func (r *Reassembler) assemble() ([]byte, error) {
	if r.total > 0 && len(r.parts) != r.total {
		return nil, types.Wrapf(types.ErrIncompleteFile, "got %d part(s), expected %d", len(r.parts), r.total)
	}

	indices := make([]int, 0, len(r.parts))
	for index := range r.parts {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	var blob bytes.Buffer
	for want, index := range indices {
		if index != want {
			return nil, types.Wrapf(types.ErrIncompleteFile, "chunk %d missing", want)
		}
		blob.Write(r.parts[index])
	}

	return blob.Bytes(), nil
}

func (r *Reassembler) trimTo(keep int) {
	if len(r.buf) > keep {
		r.buf = r.buf[len(r.buf)-keep:]
	}
}

// cutHeaderBlock splits buf at the blank-line header terminator.
func cutHeaderBlock(buf []byte) (header []byte, rest []byte, found bool) {
	for _, sep := range [][]byte{[]byte("\r\n\r\n"), []byte("\n\n")} {
		if pos := bytes.Index(buf, sep); pos >= 0 {
			return buf[:pos], buf[pos+len(sep):], true
		}
	}
	return nil, buf, false
}

// parsePartHeaders extracts the chunk index, and if present the total
// count, from one part's headers. The index comes from a dedicated
// X-Chunk-Index header or a content-range style "chunk i/n" value.
func parsePartHeaders(header []byte) (index int, total int, err error) {
	index = -1
	for _, line := range strings.Split(string(header), "\n") {
		line = strings.TrimRight(line, "\r")
		name, value, ok := cutHeaderLine(line)
		if !ok {
			continue
		}

		switch strings.ToLower(name) {
		case "x-chunk-index":
			index, err = strconv.Atoi(value)
			if err != nil {
				return -1, 0, types.Wrapf(types.ErrMalformedResponse, "bad chunk index header %q", value)
			}
		case "content-range":
			fields := strings.FieldsFunc(strings.TrimPrefix(value, "chunk "), func(r rune) bool {
				return r == '/'
			})
			if len(fields) != 2 {
				return -1, 0, types.Wrapf(types.ErrMalformedResponse, "bad content range %q", value)
			}
			index, err = strconv.Atoi(strings.TrimSpace(fields[0]))
			if err != nil {
				return -1, 0, types.Wrapf(types.ErrMalformedResponse, "bad content range %q", value)
			}
			total, err = strconv.Atoi(strings.TrimSpace(fields[1]))
			if err != nil {
				return -1, 0, types.Wrapf(types.ErrMalformedResponse, "bad content range %q", value)
			}
		}
	}

	if index < 0 {
		return -1, 0, types.Wrapf(types.ErrMalformedResponse, "part headers carry no chunk index")
	}
	return index, total, nil
}

func cutHeaderLine(line string) (name string, value string, ok bool) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:colon]), strings.TrimSpace(line[colon+1:]), true
}

func skipLineBreak(buf []byte) []byte {
	if bytes.HasPrefix(buf, []byte("\r\n")) {
		return buf[2:]
	}
	if bytes.HasPrefix(buf, []byte("\n")) {
		return buf[1:]
	}
	return buf
}

// trimPartTail drops the line break separating a part body from the next
// boundary token.
func trimPartTail(body []byte) []byte {
	if bytes.HasSuffix(body, []byte("\r\n")) {
		return body[:len(body)-2]
	}
	if bytes.HasSuffix(body, []byte("\n")) {
		return body[:len(body)-1]
	}
	return body
}

// FileResponse is one provider's answer to a download request.
type FileResponse struct {
	Data        []byte
	Name        string
	ContentType string
	TotalChunks int
}

// Downloader fetches the multipart stream from the primary provider and
// reassembles it. The download path has no retry: any network or parse
// failure surfaces directly and the caller re-invokes from scratch.
type Downloader struct {
	client  *http.Client
	timeout time.Duration
}

func NewDownloader(timeout time.Duration) *Downloader {
	return &Downloader{
		client:  &http.Client{},
		timeout: timeout,
	}
}

func (d *Downloader) Fetch(ctx context.Context, provider types.ProviderRef, merkleRoot string, progress ProgressFunc) (*FileResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s%s?merkle_root=%s", provider.Address, downloadPath, merkleRoot)
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, classify(callCtx, err, "provider %s download", provider.Id)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, types.Wrapf(types.ErrNetwork, "provider %s download: status %d: %s", provider.Id, resp.StatusCode, bytes.TrimSpace(msg))
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/byteranges" || params["boundary"] == "" {
		return nil, types.Wrapf(types.ErrMalformedResponse, "provider %s: unexpected content type %q", provider.Id, resp.Header.Get("Content-Type"))
	}

	totalChunks, err := strconv.Atoi(resp.Header.Get("X-Total-Chunks"))
	if err != nil {
		totalChunks = 0
	}

	reassembler := NewReassembler(params["boundary"], totalChunks, progress)
	data, err := reassembler.Run(resp.Body)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, classify(callCtx, callCtx.Err(), "provider %s download", provider.Id)
		}
		return nil, err
	}

	return &FileResponse{
		Data:        data,
		Name:        resp.Header.Get("X-Original-Name"),
		ContentType: resp.Header.Get("X-Content-Type"),
		TotalChunks: reassembler.total,
	}, nil
}
