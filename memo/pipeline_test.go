package memo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"xdao.co/memo/cidutil"
	"xdao.co/memo/content"
	"xdao.co/memo/digest"
	"xdao.co/memo/gateway"
	"xdao.co/memo/ledger"
	"xdao.co/memo/model"
	"xdao.co/memo/sink"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

var testConfig = Config{
	LedgerEndpointURL:   "http://127.0.0.1:8545",
	RecordSourceAddress: testContract,
}

type fakeLedger struct {
	mu    sync.Mutex
	calls int
	rec   ledger.Record
	err   error
}

func (f *fakeLedger) Memo(_ context.Context, _ uint64) (ledger.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.rec, f.err
}

type fakeFetcher struct {
	mu   sync.Mutex
	urls []string
	body string
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*gateway.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.Response{URL: url, StatusCode: 200, ContentType: "application/json", Body: []byte(f.body)}, nil
}

type recordingSink struct {
	mu         sync.Mutex
	deliveries []sink.Delivery
	err        error
}

func (s *recordingSink) Deliver(_ context.Context, d sink.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	return s.err
}

func record(uri, committed string) ledger.Record {
	return ledger.Record{
		Sender:         common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Timestamp:      1700000000,
		ContentURI:     uri,
		ExpectedDigest: digest.Sum(committed),
	}
}

type harness struct {
	ledger  *fakeLedger
	fetcher *fakeFetcher
	sink    *recordingSink
	p       *Pipeline
}

func newHarness(t *testing.T, cfg Config, rec ledger.Record, body string) *harness {
	t.Helper()
	h := &harness{
		ledger:  &fakeLedger{rec: rec},
		fetcher: &fakeFetcher{body: body},
		sink:    &recordingSink{},
	}
	h.p = New(cfg,
		WithLedger(h.ledger),
		WithFetcher(h.fetcher),
		WithSink(h.sink),
		WithLogger(zaptest.NewLogger(t)))
	return h
}

func TestRetrieve_ContentField(t *testing.T) {
	h := newHarness(t, testConfig, record("ipfs://abc123", "hello"), `{"content": "hello"}`)

	out, err := h.p.Retrieve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Content)
	assert.Equal(t, content.RuleContent, out.Rule)
	assert.Equal(t, digest.Sum("hello"), out.Digest)
	assert.Equal(t, gateway.DefaultBase+"abc123", out.GatewayURL)
	assert.Equal(t, []string{gateway.DefaultBase + "abc123"}, h.fetcher.urls)

	require.Len(t, h.sink.deliveries, 1)
	d := h.sink.deliveries[0]
	assert.Equal(t, "hello", d.Content)
	assert.Equal(t, uint64(1), d.MemoID)
	assert.Equal(t, digest.Sum("hello").Hex(), d.Digest)
	assert.Equal(t, "ipfs://abc123", d.ContentURI)
}

func TestRetrieve_JoinedFragments(t *testing.T) {
	h := newHarness(t, testConfig, record("ipfs://abc123", "foobar"), `{"nftResults": ["foo", "bar"]}`)

	out, err := h.p.Retrieve(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "foobar", out.Content)
	assert.Equal(t, content.RuleNFTResults, out.Rule)
	require.Len(t, h.sink.deliveries, 1)
	assert.Equal(t, "foobar", h.sink.deliveries[0].Content)
}

func TestRetrieve_DigestMismatchNeverDelivers(t *testing.T) {
	h := newHarness(t, testConfig, record("ipfs://abc123", "goodbye"), `{"content": "hello"}`)

	out, err := h.p.Retrieve(context.Background(), 3)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, IsKind(err, KindIntegrityFailure))
	assert.Equal(t, msgIntegrity, err.Error())
	assert.Empty(t, h.sink.deliveries)
}

func TestRetrieve_UnrecognizedShape(t *testing.T) {
	h := newHarness(t, testConfig, record("ipfs://abc123", "hello"), `{"unexpectedField": 42}`)

	_, err := h.p.Retrieve(context.Background(), 4)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindExtractionFailure))
	assert.ErrorIs(t, err, content.ErrNotFound)
	assert.Empty(t, h.sink.deliveries)
}

func TestRetrieve_MissingConfigurationMakesNoCalls(t *testing.T) {
	cases := map[string]Config{
		"no endpoint": {RecordSourceAddress: testContract},
		"no address":  {LedgerEndpointURL: "http://127.0.0.1:8545"},
		"bad address": {LedgerEndpointURL: "http://127.0.0.1:8545", RecordSourceAddress: "0x1234"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, cfg, record("ipfs://abc123", "hello"), `{"content": "hello"}`)
			dials := 0
			h.p.ledger = nil
			h.p.dial = func(context.Context, string, string) (ledger.Reader, func(), error) {
				dials++
				return h.ledger, func() {}, nil
			}

			_, err := h.p.Retrieve(context.Background(), 5)
			require.Error(t, err)
			assert.True(t, IsKind(err, KindConfigurationMissing))
			assert.Zero(t, dials)
			assert.Zero(t, h.ledger.calls)
			assert.Empty(t, h.fetcher.urls)
			assert.Empty(t, h.sink.deliveries)
		})
	}
}

func TestRetrieve_LedgerFailure(t *testing.T) {
	h := newHarness(t, testConfig, ledger.Record{}, "")
	h.ledger.err = errors.New("execution reverted")

	_, err := h.p.Retrieve(context.Background(), 6)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindLedgerFailure))
	assert.ErrorContains(t, err, "execution reverted")
	assert.Empty(t, h.fetcher.urls)
}

func TestRetrieve_DialsAndClosesLedger(t *testing.T) {
	h := newHarness(t, testConfig, record("ipfs://abc123", "hello"), `{"content": "hello"}`)
	h.p.ledger = nil
	var endpoint, address string
	closed := 0
	h.p.dial = func(_ context.Context, e, a string) (ledger.Reader, func(), error) {
		endpoint, address = e, a
		return h.ledger, func() { closed++ }, nil
	}

	_, err := h.p.Retrieve(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, testConfig.LedgerEndpointURL, endpoint)
	assert.Equal(t, testContract, address)
	assert.Equal(t, 1, closed)

	h.p.dial = func(context.Context, string, string) (ledger.Reader, func(), error) {
		return nil, nil, errors.New("connection refused")
	}
	_, err = h.p.Retrieve(context.Background(), 7)
	assert.True(t, IsKind(err, KindLedgerFailure))
}

func TestRetrieve_FetchFailure(t *testing.T) {
	h := newHarness(t, testConfig, record("ipfs://abc123", "hello"), "")
	h.fetcher.err = &gateway.StatusError{StatusCode: 504, URL: gateway.DefaultBase + "abc123"}

	_, err := h.p.Retrieve(context.Background(), 8)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindFetchFailure))
	var status *gateway.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, 504, status.StatusCode)
	assert.Empty(t, h.sink.deliveries)
}

func TestRetrieve_CustomGateway(t *testing.T) {
	cfg := testConfig
	cfg.GatewayBaseURL = "https://ipfs.example/ipfs/"
	h := newHarness(t, cfg, record("  abc123 ", "hello"), "hello")

	out, err := h.p.Retrieve(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, "https://ipfs.example/ipfs/abc123", out.GatewayURL)
	assert.Equal(t, content.RulePlain, out.Rule)
}

func TestRetrieve_RawBlockMustMatchIdentifier(t *testing.T) {
	id, err := cidutil.CIDv1RawSHA256CID([]byte("hello"))
	require.NoError(t, err)
	uri := "ipfs://" + id.String()

	h := newHarness(t, testConfig, record(uri, "hello"), "hello")
	out, err := h.p.Retrieve(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Content)

	// The committed digest matches, but the gateway served other bytes
	// under the same identifier.
	h = newHarness(t, testConfig, record(uri, "hullo"), "hullo")
	_, err = h.p.Retrieve(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindFetchFailure))
	assert.ErrorIs(t, err, cidutil.ErrCIDMismatch)
	assert.Empty(t, h.sink.deliveries)
}

func TestRetrieve_SinkFailure(t *testing.T) {
	h := newHarness(t, testConfig, record("ipfs://abc123", "hello"), `{"content": "hello"}`)
	h.sink.err = errors.New("disk full")

	_, err := h.p.Retrieve(context.Background(), 11)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindSinkFailure))
	assert.Len(t, h.sink.deliveries, 1)
}

func TestRetrieve_Concurrent(t *testing.T) {
	h := newHarness(t, testConfig, record("ipfs://abc123", "hello"), `{"content": "hello"}`)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			_, err := h.p.Retrieve(context.Background(), id)
			assert.NoError(t, err)
		}(uint64(i))
	}
	wg.Wait()
	assert.Len(t, h.sink.deliveries, 8)
	assert.Equal(t, 8, h.ledger.calls)
}

func TestReport(t *testing.T) {
	h := newHarness(t, testConfig, record("ipfs://abc123", "hello"), `{"content": "hello"}`)
	out, err := h.p.Retrieve(context.Background(), 12)
	require.NoError(t, err)

	got := Report(12, out, nil)
	assert.Equal(t, model.StatusVerified, got.Status)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000aa").Hex(), got.Sender)
	assert.Equal(t, int64(1700000000), got.Timestamp)
	assert.Equal(t, digest.Sum("hello").Hex(), got.Digest)
	assert.Equal(t, "content", got.Rule)
	assert.Equal(t, 5, got.Bytes)
	assert.Nil(t, got.Error)

	rejected := Report(13, nil, newError(KindIntegrityFailure, msgIntegrity, nil))
	assert.Equal(t, model.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.Error)
	assert.Equal(t, model.ErrIntegrityFailure, rejected.Error.Code)
	assert.Equal(t, "verify", rejected.Error.Stage)

	internal := Report(14, nil, errors.New("surprise"))
	assert.Equal(t, model.ErrInternal, internal.Error.Code)
}

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"POLYGON_RPC_URL":  "https://polygon.example",
		"CONTRACT_ADDRESS": "0xlegacy",
		EnvRecordSource:    " " + testContract + " ",
		EnvGatewayBase:     "https://ipfs.example/ipfs/",
		EnvLedgerEndpoint:  "   ",
	}
	cfg := ConfigFromEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.Equal(t, Config{
		LedgerEndpointURL:   "https://polygon.example",
		RecordSourceAddress: testContract,
		GatewayBaseURL:      "https://ipfs.example/ipfs/",
	}, cfg)
	assert.NoError(t, cfg.Validate())

	err := Config{}.Validate()
	assert.True(t, IsKind(err, KindConfigurationMissing))
	assert.Equal(t, "Missing LEDGER_ENDPOINT_URL", err.Error())
}

func TestRetrieve_InvalidUTF8HashedAsReplacement(t *testing.T) {
	h := newHarness(t, testConfig, record("ipfs://abc123", "a\uFFFDb"), "{\"content\":\"a\xffb\"}")

	out, err := h.p.Retrieve(context.Background(), 15)
	require.NoError(t, err)
	assert.Equal(t, "a\uFFFDb", out.Content)
	assert.Equal(t, digest.Sum("a\uFFFDb"), out.Digest)
	require.Len(t, h.sink.deliveries, 1)
}
