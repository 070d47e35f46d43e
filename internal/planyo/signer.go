package planyo

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

// Result is the envelope every Planyo method responds with. Code 0 is success;
// anything else carries a human-readable Message. Raw keeps the unparsed body
// for diagnostics when a call fails twice.
type Result struct {
	Code    int             `json:"response_code"`
	Message string          `json:"response_message"`
	Data    json.RawMessage `json:"data"`

	Raw []byte `json:"-"`
}

func (r Result) OK() bool { return r.Code == 0 }

// driftRe pulls the server's own clock out of an invalid-timestamp error,
// e.g. "Invalid hash_timestamp. The current unix timestamp is 1690000000."
var driftRe = regexp.MustCompile(`(?i)current\s+(?:unix\s+)?timestamp\s+is\s+(\d{9,11})`)

// Signer builds authenticated request URLs: hash_key is
// hex(md5(sharedSecret || unixTimestamp || method)) and is attached together
// with hash_timestamp and the caller's parameters.
type Signer struct {
	base    string
	apiKey  string
	hashKey string
	siteID  string
	hc      *http.Client
	now     func() time.Time
}

func NewSigner(base, apiKey, hashKey, siteID string) *Signer {
	return &Signer{
		base:    base,
		apiKey:  apiKey,
		hashKey: hashKey,
		siteID:  siteID,
		hc:      &http.Client{Timeout: 15 * time.Second},
		now:     time.Now,
	}
}

// Call performs a signed request. If the service rejects the timestamp and
// embeds its own clock in the error message, the call is retried exactly once
// with the corrected value; the second result is returned as-is, ok or not.
func (s *Signer) Call(ctx context.Context, method string, params url.Values) (Result, error) {
	res, err := s.do(ctx, method, params, s.now().Unix())
	if err != nil {
		return Result{}, err
	}
	if res.OK() {
		return res, nil
	}
	if m := driftRe.FindStringSubmatch(res.Message); m != nil {
		ts, perr := strconv.ParseInt(m[1], 10, 64)
		if perr == nil {
			return s.do(ctx, method, params, ts)
		}
	}
	return res, nil
}

func (s *Signer) do(ctx context.Context, method string, params url.Values, ts int64) (Result, error) {
	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("method", method)
	q.Set("api_key", s.apiKey)
	if s.siteID != "" && q.Get("site_id") == "" {
		q.Set("site_id", s.siteID)
	}
	tsStr := strconv.FormatInt(ts, 10)
	sum := md5.Sum([]byte(s.hashKey + tsStr + method))
	q.Set("hash_timestamp", tsStr)
	q.Set("hash_key", hex.EncodeToString(sum[:]))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"?"+q.Encode(), nil)
	if err != nil {
		return Result{}, err
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("planyo %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("planyo %s: read body: %w", method, err)
	}

	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		// non-JSON bodies become a structured failure instead of an error
		return Result{Code: -1, Message: "unparseable response", Raw: body}, nil
	}
	res.Raw = body
	return res, nil
}
