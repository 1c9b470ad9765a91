// Package ipfsclient wraps an out-of-process IPFS HTTP API (spec §4.2):
// add, pin, unpin, cat, pinLs and gc, each wrapped with a bounded deadline.
// The add path computes the CID locally with go-cid + go-multihash,
// then POSTs to the gateway and cross-checks its returned hash against
// the local value.
package ipfsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"github.com/sirupsen/logrus"

	"shogunrelay/internal/errs"
)

// PinType selects the scope of a pinLs listing.
type PinType string

const (
	PinDirect    PinType = "direct"
	PinRecursive PinType = "recursive"
	PinAll       PinType = "all"
)

// AddResult is the outcome of an add call.
type AddResult struct {
	CID       string
	SizeBytes int64
	Entries   []AddEntry // populated when wrapDir is set and content is a directory
}

// AddEntry describes one child of a directory-wrapped add.
type AddEntry struct {
	Name string
	Path string
	Size int64
	CID  string
}

// AddOptions controls an add call.
type AddOptions struct {
	WrapDir bool
	Pin     bool
	// Filename is attached to the multipart part; the gateway preserves it
	// for wrap-with-directory listings.
	Filename string
}

// Client talks to a single IPFS gateway/API endpoint.
type Client struct {
	gateway string
	http    *http.Client
	log     *logrus.Logger
	timeout time.Duration
}

// New builds a Client against gateway (e.g. "http://127.0.0.1:5001"),
// applying timeout as the default per-call deadline.
func New(gateway string, timeout time.Duration, log *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		gateway: gateway,
		http:    &http.Client{Timeout: timeout},
		log:     log,
		timeout: timeout,
	}
}

// localCID computes the CIDv1 of data (raw codec, SHA2-256), so the
// gateway's reported hash can be cross-checked before it's trusted as
// authoritative.
func localCID(data []byte) (string, error) {
	sum, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

// Add sends data to the gateway's /api/v0/add endpoint. The content is
// taken as an in-memory byte slice, which (a) allows local CID computation
// before the request and (b) lets the whole multipart body be built in a
// buffer before it is sent; upload pipeline callers stage content on disk
// and read it back before this call, so the slice is bounded by the upload
// size limit.
func (c *Client) Add(ctx context.Context, data []byte, opts AddOptions) (*AddResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	local, err := localCID(data)
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ipfs-local-cid", "compute local cid", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	filename := opts.Filename
	if filename == "" {
		filename = "blob"
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ipfs-add", "build multipart body", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, errs.Wrap(errs.Backend, "ipfs-add", "write multipart body", err)
	}
	if err := mw.Close(); err != nil {
		return nil, errs.Wrap(errs.Backend, "ipfs-add", "close multipart writer", err)
	}

	q := url.Values{}
	q.Set("pin", fmt.Sprintf("%v", opts.Pin))
	q.Set("wrap-with-directory", fmt.Sprintf("%v", opts.WrapDir))
	endpoint := c.gateway + "/api/v0/add?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ipfs-add", "build request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.classify(err, "add")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(resp, "add")
	}

	var meta struct {
		Hash string `json:"Hash"`
		Size string `json:"Size"`
		Name string `json:"Name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, errs.Wrap(errs.Backend, "ipfs-add", "decode gateway response", err)
	}
	if !opts.WrapDir && meta.Hash != local {
		return nil, errs.New(errs.Backend, "cid-mismatch", "gateway cid does not match locally computed cid")
	}

	c.log.WithFields(logrus.Fields{"cid": meta.Hash, "bytes": len(data)}).Info("ipfs: added content")
	return &AddResult{CID: meta.Hash, SizeBytes: int64(len(data))}, nil
}

// Pin instructs the gateway to retain cid, retrying is the caller's
// responsibility per spec §4.2.
func (c *Client) Pin(ctx context.Context, cidStr string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.gateway + "/api/v0/pin/add?arg=" + url.QueryEscape(cidStr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return errs.Wrap(errs.Backend, "ipfs-pin", "build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.classify(err, "pin")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusErr(resp, "pin")
	}
	return nil
}

// Unpin releases cid so it becomes eligible for GC once no other pin holds it.
func (c *Client) Unpin(ctx context.Context, cidStr string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.gateway + "/api/v0/pin/rm?arg=" + url.QueryEscape(cidStr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return errs.Wrap(errs.Backend, "ipfs-unpin", "build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.classify(err, "unpin")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusErr(resp, "unpin")
	}
	return nil
}

// Cat streams cid (optionally a subpath within a directory cid) back to the
// caller; range, if non-empty, is forwarded as a Range header.
func (c *Client) Cat(ctx context.Context, cidStr, subpath, rangeHeader string) (io.ReadCloser, error) {
	p := cidStr
	if subpath != "" {
		p = cidStr + "/" + subpath
	}
	endpoint := c.gateway + "/ipfs/" + p

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ipfs-cat", "build request", err)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.classify(err, "cat")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, errs.New(errs.NotFound, "not-found", "cid not found")
		}
		return nil, statusErr(resp, "cat")
	}
	return resp.Body, nil
}

// PinLs lists pinned cids of the given scope.
func (c *Client) PinLs(ctx context.Context, pinType PinType) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.gateway + "/api/v0/pin/ls?type=" + url.QueryEscape(string(pinType))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ipfs-pinls", "build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.classify(err, "pinls")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusErr(resp, "pinls")
	}

	var out struct {
		Keys map[string]struct {
			Type string `json:"Type"`
		} `json:"Keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errs.Wrap(errs.Backend, "ipfs-pinls", "decode response", err)
	}
	cids := make([]string, 0, len(out.Keys))
	for k := range out.Keys {
		cids = append(cids, k)
	}
	return cids, nil
}

// GC asks the store to collect unreferenced blocks.
func (c *Client) GC(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.gateway + "/api/v0/repo/gc"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return errs.Wrap(errs.Backend, "ipfs-gc", "build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return c.classify(err, "gc")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusErr(resp, "gc")
	}
	return nil
}

// classify maps a transport-level error (timeout, connection refused) onto
// the Transient kind per spec §4.2: "on timeout the operation returns
// Transient. Retries are the caller's responsibility."
func (c *Client) classify(err error, op string) error {
	return errs.Wrap(errs.Transient, "ipfs-"+op, "ipfs gateway call failed", err)
}

func statusErr(resp *http.Response, op string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return errs.New(errs.Backend, "ipfs-"+op, fmt.Sprintf("gateway %s returned %d: %s", op, resp.StatusCode, string(body)))
}
