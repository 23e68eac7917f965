package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/nordgaard/github-rest-client/pkg/logging"
)

// replayHeaders are restored from the snapshot when a 304 is rewritten,
// replacing whatever the 304 itself carried so decoders downstream see
// exactly the committed values.
var replayHeaders = []string{"Content-Type", "Link"}

// InconsistencyError reports a 304 Not Modified for which no snapshot
// could be produced: the store answered the validator lookup but lost
// the entry, and an unconditional refetch still came back 304. It is
// recoverable; callers typically clear the entry or retry later.
type InconsistencyError struct {
	URI string
	Err error
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("cache inconsistency for %s: not modified response with no stored snapshot", e.URI)
}

func (e *InconsistencyError) Unwrap() error {
	return e.Err
}

// Transport is an http.RoundTripper that layers conditional requests
// over any inner transport. For URIs with a stored validator it attaches
// If-None-Match or If-Modified-Since, serves the stored snapshot when
// the server answers 304 Not Modified, and populates the store from
// fresh 200 responses through a write-through tap on the body.
//
// Storage failures degrade the request to uncached; they never fail
// delivery.
type Transport struct {
	inner   http.RoundTripper
	storage Storage
	logger  zerolog.Logger
}

// NewTransport wraps inner with the conditional cache layer backed by
// storage. A nil inner defaults to http.DefaultTransport.
func NewTransport(inner http.RoundTripper, storage Storage) *Transport {
	if storage == nil {
		panic("cache storage cannot be nil")
	}
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &Transport{
		inner:   inner,
		storage: storage,
		logger:  logging.NewLogger("cache"),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	uri := req.URL.String()

	conditional := false
	key, ok, err := t.storage.Validator(req.Context(), uri)
	switch {
	case err != nil:
		t.logger.Warn().Err(err).Str("uri", uri).Msg("validator lookup failed, sending uncached request")
	case ok && !key.IsZero():
		// Leave the caller's request untouched; the conditional header
		// goes on a clone.
		req = req.Clone(req.Context())
		key.Apply(req.Header)
		conditional = true
		ConditionalRequests.WithLabelValues(string(key.Kind)).Inc()
		t.logger.Debug().Str("uri", uri).Str("validator", string(key.Kind)).Msg("conditional request")
	default:
		CacheMisses.Inc()
	}

	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// Only rewrite a 304 we provoked ourselves. A caller managing its
	// own conditional headers gets the 304 back untouched.
	if resp.StatusCode == http.StatusNotModified && conditional {
		return t.replay(req, resp)
	}

	t.tapResponse(req.Context(), uri, resp)
	return resp, nil
}

// replay substitutes the stored snapshot for a 304 response, rewriting
// it into the 200 the caller would have received on a full fetch.
func (t *Transport) replay(req *http.Request, resp *http.Response) (*http.Response, error) {
	uri := req.URL.String()

	entry, err := t.storage.Load(req.Context(), uri)
	if err != nil {
		// The validator hit but the snapshot is gone. Fall back to one
		// unconditional fetch so the caller still gets a real response.
		CacheInconsistencies.Inc()
		t.logger.Warn().Err(err).Str("uri", uri).Msg("not modified but snapshot missing, refetching unconditionally")
		drainAndClose(resp.Body)
		return t.refetch(req)
	}
	drainAndClose(resp.Body)

	CacheHits.Inc()
	t.logger.Debug().Str("uri", uri).Int("size", entry.Size()).Msg("serving stored snapshot for 304")

	for _, name := range replayHeaders {
		if vals, present := entry.Header[name]; present {
			resp.Header[name] = append([]string(nil), vals...)
		}
	}
	resp.Header.Set("Content-Length", strconv.Itoa(len(entry.Body)))
	resp.ContentLength = int64(len(entry.Body))
	resp.Body = io.NopCloser(bytes.NewReader(entry.Body))
	resp.StatusCode = http.StatusOK
	resp.Status = fmt.Sprintf("%d %s", http.StatusOK, http.StatusText(http.StatusOK))
	return resp, nil
}

// refetch re-issues the request without conditional headers after the
// snapshot for a 304 turned out to be missing.
func (t *Transport) refetch(req *http.Request) (*http.Response, error) {
	uri := req.URL.String()

	retry := req.Clone(req.Context())
	retry.Header.Del("If-None-Match")
	retry.Header.Del("If-Modified-Since")
	if req.Body != nil {
		if req.GetBody == nil {
			return nil, &InconsistencyError{URI: uri, Err: ErrNoEntry}
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, &InconsistencyError{URI: uri, Err: err}
		}
		retry.Body = body
	}

	resp, err := t.inner.RoundTrip(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotModified {
		// The server insists nothing changed even without validators;
		// there is no body anywhere to deliver.
		drainAndClose(resp.Body)
		return nil, &InconsistencyError{URI: uri, Err: ErrNoEntry}
	}

	t.tapResponse(retry.Context(), uri, resp)
	return resp, nil
}

// tapResponse arranges write-through population: a cacheable 200 with a
// validator gets its body wrapped so the bytes delivered to the caller
// are committed to storage once the body has been read to completion.
func (t *Transport) tapResponse(reqCtx context.Context, uri string, resp *http.Response) {
	if resp.StatusCode != http.StatusOK {
		return
	}
	key, ok := KeyFromHeader(resp.Header)
	if !ok {
		return
	}

	header := resp.Header.Clone()
	// The commit may run after the request context is done; detach it so
	// a caller cancelling right after the final read cannot lose the entry.
	ctx := context.WithoutCancel(reqCtx)

	resp.Body = &writeTap{
		body: resp.Body,
		commit: func(body []byte) {
			entry := &Entry{
				Key:      key,
				Body:     body,
				Header:   header,
				StoredAt: time.Now().UTC(),
			}
			if err := t.storage.Store(ctx, uri, entry); err != nil {
				t.logger.Warn().Err(err).Str("uri", uri).Msg("cache write failed")
				return
			}
			CacheWrites.Inc()
			t.logger.Debug().Str("uri", uri).Int("size", entry.Size()).Msg("snapshot stored")
		},
	}
}

// writeTap forwards reads to the caller unchanged while keeping a copy.
// The commit fires exactly once, when the underlying body reports EOF;
// closing early never commits a partial snapshot.
type writeTap struct {
	body      io.ReadCloser
	buf       bytes.Buffer
	commit    func([]byte)
	committed bool
}

func (w *writeTap) Read(p []byte) (int, error) {
	n, err := w.body.Read(p)
	if n > 0 {
		w.buf.Write(p[:n])
	}
	if err == io.EOF && !w.committed {
		w.committed = true
		w.commit(w.buf.Bytes())
	}
	return n, err
}

func (w *writeTap) Close() error {
	return w.body.Close()
}

func drainAndClose(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	io.Copy(io.Discard, rc) //nolint:errcheck
	rc.Close()
}
