// Package retriever implements the wget-equivalent HTTP retriever
// (spec.md §4.1): Range-resume, Content-Encoding-aware streaming, retries,
// host blacklisting, and the Internet-Archive fallback.
package retriever

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

const (
	maxRetries    = 20
	maxRetrySleep = 10 * time.Second
	chunkSize     = 1 << 20 // 1 MiB, spec.md §4.1 step 8
)

// EnospcGate is the narrow capability the retriever needs from the
// concurrency runtime (poolrt.Gate) without importing it directly, keeping
// retriever free of a dependency on the coordinator's wiring.
type EnospcGate interface {
	// Signal blocks the caller until the main thread clears the disk-full
	// condition (spec.md §4.7 WaitOnMainThread), or returns an error if the
	// run was aborted while waiting.
	Signal(ctx context.Context) error
}

// Request describes one retrieval (spec.md §4.1's single operation).
type Request struct {
	URL            string
	DestDir        string
	DestName       string
	PostID         int64
	PostTimestamp  time.Time
	AdjustBasename func(basename string) string
}

// Retriever is the shared, stateful HTTP fetcher every Media Downloader
// call goes through.
type Retriever struct {
	client              *http.Client
	blacklist           *HostBlacklist
	userAgent           string
	useServerTimestamps bool
	internetArchive     bool
	enospc              EnospcGate
}

func New(client *http.Client, blacklist *HostBlacklist, userAgent string, useServerTimestamps, internetArchive bool, enospc EnospcGate) *Retriever {
	return &Retriever{
		client:              client,
		blacklist:           blacklist,
		userAgent:           userAgent,
		useServerTimestamps: useServerTimestamps,
		internetArchive:     internetArchive,
		enospc:              enospc,
	}
}

// Retrieve implements spec.md §4.1's guarantee: on success DestName (or the
// AdjustBasename-renamed file) exists with correct bytes and mtime; on
// failure a typed *Error is returned and no partial file is left at the
// final name.
func (r *Retriever) Retrieve(ctx context.Context, req Request) error {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return newError(KindBadProtocol, req.URL, "not an HTTP(S) URL", err)
	}

	err = r.retrieveLoop(ctx, req, u)
	if err == nil {
		return nil
	}

	if r.internetArchive && isRetryableViaArchive(err) && strings.HasSuffix(u.Hostname(), ".tumblr.com") {
		archiveURL := fmt.Sprintf("https://web.archive.org/web/0/%s", req.URL)
		au, parseErr := url.Parse(archiveURL)
		if parseErr == nil {
			archiveReq := req
			archiveErr := r.retrieveLoop(ctx, archiveReq, au)
			if archiveErr == nil {
				return nil
			}
			if !isArchive404(archiveErr) {
				return archiveErr
			}
		}
	}

	return err
}

func isRetryableViaArchive(err error) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Kind == KindBadResponse && (e.Msg == "403" || e.Msg == "404")
}

func isArchive404(err error) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Msg == "404"
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// attemptOutcome models the state machine DESIGN NOTES §9 calls for,
// replacing the original's exception-driven control flow.
type attemptOutcome int

const (
	outcomeDone attemptOutcome = iota
	outcomeRetry
	outcomeReset
)

func (r *Retriever) retrieveLoop(ctx context.Context, req Request, u *url.URL) error {
	var (
		restval       int64
		priorEncoding string
		pf            *partFile
		dec           *decoder
		lastModified  time.Time
		tmpPath       string
	)

	destName := req.DestName

	closeDec := func() {
		if dec != nil {
			dec.Close()
			dec = nil
		}
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			closeDec()
			return err
		}

		hostport := u.Host
		if r.blacklist.Contains(hostport) {
			closeDec()
			return newError(KindUnreachableHost, req.URL, "host is blacklisted", nil)
		}

		res := r.attempt(ctx, req, u, attempt, restval, priorEncoding, tmpPath, &pf, &dec, &destName)
		if !res.lastModified.IsZero() {
			lastModified = res.lastModified
		}
		tmpPath = res.tmpPath
		priorEncoding = res.encoding

		switch res.outcome {
		case outcomeDone:
			closeDec()
			if res.err != nil {
				if pf != nil {
					pf.Close()
				}
				return res.err
			}
			if pf != nil {
				mtime := r.chooseMtime(req.PostTimestamp, lastModified)
				finalName := destName
				if req.AdjustBasename != nil {
					finalName = req.AdjustBasename(destName)
				}
				commitErr := pf.Commit(finalName, mtime)
				pf.Close()
				return commitErr
			}
			return nil
		case outcomeReset:
			restval = 0
			closeDec()
			if pf != nil {
				pf.Close()
				pf = nil
				tmpPath = ""
			}
			continue
		case outcomeRetry:
			restval = res.restval
			if res.sleep > 0 {
				select {
				case <-time.After(res.sleep):
				case <-ctx.Done():
					closeDec()
					return ctx.Err()
				}
			}
			continue
		}
	}

	closeDec()
	if pf != nil {
		pf.Close()
	}
	return newError(KindMaxRetry, req.URL, "retry budget exhausted", nil)
}

func (r *Retriever) chooseMtime(postTime, remoteTime time.Time) time.Time {
	if !r.useServerTimestamps {
		return time.Time{}
	}
	switch {
	case !postTime.IsZero() && !remoteTime.IsZero():
		if postTime.Before(remoteTime) {
			return postTime
		}
		return remoteTime
	case !remoteTime.IsZero():
		return remoteTime
	default:
		return postTime
	}
}

// attemptResult carries everything the retry loop needs to decide its next
// move, replacing an unwieldy multi-value return.
type attemptResult struct {
	outcome      attemptOutcome
	sleep        time.Duration
	restval      int64
	lastModified time.Time
	tmpPath      string
	encoding     string
	err          error
}

// attempt performs one HTTP GET and returns the outcome plus updated resume
// state. It returns a non-nil *partFile via pfOut once bytes have begun
// streaming to disk so the caller can keep appending across retries, and a
// non-nil *decoder via decOut so a resumed encoded transfer keeps decoding
// through the same gzip/flate state machine instead of restarting it.
func (r *Retriever) attempt(
	ctx context.Context,
	req Request,
	u *url.URL,
	attemptNum int,
	restval int64,
	priorEncoding string,
	tmpPath string,
	pfOut **partFile,
	decOut **decoder,
	destName *string,
) attemptResult {
	fail := func(kind Kind, msg string, err error) attemptResult {
		return attemptResult{outcome: outcomeDone, restval: restval, tmpPath: tmpPath, err: newError(kind, req.URL, msg, err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fail(KindBadResponse, "failed building request", err)
	}
	if r.userAgent != "" {
		httpReq.Header.Set("User-Agent", r.userAgent)
	}
	if restval > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", restval))
	}

	res, httpErr := r.client.Do(httpReq)
	if httpErr != nil {
		if isConnectTimeout(httpErr) {
			r.blacklist.Add(u.Host)
			return fail(KindUnreachableHost, "connect timeout", httpErr)
		}
		if restval > 0 {
			return attemptResult{outcome: outcomeRetry, sleep: retrySleep(attemptNum), restval: restval, tmpPath: tmpPath}
		}
		return fail(KindBadResponse, "request failed", httpErr)
	}
	defer res.Body.Close()

	ct := res.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/byteranges") {
		return fail(KindBadResponse, "multipart/byteranges unsupported", nil)
	}

	var cr *contentRange
	if raw := res.Header.Get("Content-Range"); raw != "" {
		cr, err = parseContentRange(raw)
		if err != nil {
			return fail(KindBadResponse, "bad Content-Range", err)
		}
	}

	lm := parseLastModified(res.Header)
	encoding := res.Header.Get("Content-Encoding")

	if restval > 0 && priorEncoding != "" && encoding != priorEncoding {
		return attemptResult{outcome: outcomeReset, lastModified: lm, encoding: encoding}
	}

	switch {
	case isCloudflareOriginDown(res.StatusCode):
		r.blacklist.Add(u.Host)
		return attemptResult{outcome: outcomeDone, restval: restval, lastModified: lm, tmpPath: tmpPath, encoding: encoding, err: newError(KindUnreachableHost, req.URL, "cloudflare origin down", nil)}
	case res.StatusCode == http.StatusNotFound:
		return attemptResult{outcome: outcomeDone, restval: restval, lastModified: lm, tmpPath: tmpPath, encoding: encoding, err: newError(KindBadResponse, req.URL, "404", nil)}
	case res.StatusCode == http.StatusForbidden:
		return attemptResult{outcome: outcomeDone, restval: restval, lastModified: lm, tmpPath: tmpPath, encoding: encoding, err: newError(KindBadResponse, req.URL, "403", nil)}
	case res.StatusCode == 420:
		return attemptResult{outcome: outcomeRetry, sleep: 60 * time.Second, restval: restval, lastModified: lm, tmpPath: tmpPath, encoding: encoding}
	case res.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return attemptResult{outcome: outcomeReset, lastModified: lm, encoding: encoding}
	case res.StatusCode == http.StatusNoContent:
		return attemptResult{outcome: outcomeDone, restval: restval, lastModified: lm, tmpPath: tmpPath, encoding: encoding}
	case res.StatusCode == http.StatusPartialContent:
		contrange := int64(0)
		if cr != nil {
			contrange = cr.first
		}
		if contrange != 0 && contrange != restval {
			return attemptResult{outcome: outcomeDone, restval: restval, lastModified: lm, tmpPath: tmpPath, encoding: encoding, err: newError(KindRange, req.URL, fmt.Sprintf("server gave Content-Range starting at %d, requested %d", contrange, restval), nil)}
		}
		if restval > 0 && contrange == 0 {
			return attemptResult{outcome: outcomeDone, restval: restval, lastModified: lm, tmpPath: tmpPath, encoding: encoding, err: newError(KindRange, req.URL, "server misused 206 with contrange==0", nil)}
		}
	case res.StatusCode >= 200 && res.StatusCode < 300 && res.StatusCode != http.StatusMultiStatus:
		// RETROKF, fallthrough to streaming below. 207 (Multi-Status) is
		// explicitly excluded: spec.md §4.1 step 6.
	default:
		return attemptResult{outcome: outcomeDone, restval: restval, lastModified: lm, tmpPath: tmpPath, encoding: encoding, err: newError(KindBadResponse, req.URL, fmt.Sprintf("status %d", res.StatusCode), nil)}
	}

	skip := int64(0)
	if res.StatusCode == http.StatusOK && restval > 0 && (cr == nil || cr.first == 0) {
		skip = restval
	}

	dec := *decOut
	if dec != nil && restval > 0 && encoding == priorEncoding {
		dec.resume(res.Body)
	} else {
		if dec != nil {
			dec.Close()
		}
		dec, err = newDecoder(encoding, res.Body)
		if err != nil {
			return attemptResult{outcome: outcomeDone, restval: restval, lastModified: lm, tmpPath: tmpPath, encoding: encoding, err: newError(KindBadResponse, req.URL, "bad content-encoding stream", err)}
		}
	}
	*decOut = dec

	if skip > 0 {
		if err := discard(dec, skip); err != nil {
			return attemptResult{outcome: outcomeDone, restval: restval, lastModified: lm, tmpPath: tmpPath, encoding: encoding, err: newError(KindBadResponse, req.URL, "failed skipping resumed bytes", err)}
		}
	}

	pf := *pfOut
	if pf == nil {
		pf, err = openPartFile(req.DestDir, *destName, restval > 0, tmpPath)
		if err != nil {
			return attemptResult{outcome: outcomeDone, restval: restval, lastModified: lm, tmpPath: tmpPath, encoding: encoding, err: err}
		}
		*pfOut = pf
	}
	newTmpPath := pf.TempPath()

	written, copyErr := copyChunks(pf, dec)
	if copyErr != nil {
		if isENOSPC(copyErr) {
			if r.enospc != nil {
				if gateErr := r.enospc.Signal(ctx); gateErr != nil {
					return attemptResult{outcome: outcomeDone, restval: restval, lastModified: lm, tmpPath: newTmpPath, encoding: encoding, err: gateErr}
				}
			}
			return attemptResult{outcome: outcomeRetry, restval: restval + written, lastModified: lm, tmpPath: newTmpPath, encoding: encoding}
		}
		if written > 0 {
			return attemptResult{outcome: outcomeRetry, sleep: retrySleep(attemptNum), restval: restval + written, lastModified: lm, tmpPath: newTmpPath, encoding: encoding}
		}
		return attemptResult{outcome: outcomeDone, restval: restval, lastModified: lm, tmpPath: newTmpPath, encoding: encoding, err: newError(KindBadResponse, req.URL, "read error", copyErr)}
	}

	return attemptResult{outcome: outcomeDone, restval: restval + written, lastModified: lm, tmpPath: newTmpPath, encoding: encoding}
}

func copyChunks(w io.Writer, r io.Reader) (int64, error) {
	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

func discard(r io.Reader, n int64) error {
	_, err := io.CopyN(io.Discard, r, n)
	if err == io.EOF {
		return nil
	}
	return err
}

func retrySleep(attempt int) time.Duration {
	s := time.Duration(attempt+1) * time.Second
	if s > maxRetrySleep {
		return maxRetrySleep
	}
	return s
}

func isENOSPC(err error) bool {
	return strings.Contains(err.Error(), syscall.ENOSPC.Error())
}

func isConnectTimeout(err error) bool {
	var nerr interface{ Timeout() bool }
	if u, ok := err.(*url.Error); ok {
		if t, ok := u.Err.(interface{ Timeout() bool }); ok {
			nerr = t
		}
	}
	return nerr != nil && nerr.Timeout()
}

func parseLastModified(h http.Header) time.Time {
	raw := h.Get("Last-Modified")
	if raw == "" {
		raw = h.Get("X-Archive-Orig-Last-Modified")
	}
	if raw == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
