package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"raydium-sniper-bot/internal/raydium"
	"raydium-sniper-bot/internal/safety"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMint(t *testing.T) {
	authority := solana.NewWallet().PublicKey()
	data := EncodeMint(safety.TokenMetadata{
		MintAuthority: &authority,
		Supply:        1_000_000_000_000_000,
		Decimals:      6,
	})

	meta, err := ParseMint(data)
	require.NoError(t, err)
	require.NotNil(t, meta.MintAuthority)
	assert.Equal(t, authority, *meta.MintAuthority)
	assert.Nil(t, meta.FreezeAuthority)
	assert.Equal(t, uint64(1_000_000_000_000_000), meta.Supply)
	assert.Equal(t, uint8(6), meta.Decimals)
}

func TestParseMintRevokedAndExtensions(t *testing.T) {
	data := EncodeMint(safety.TokenMetadata{Supply: 42, Decimals: 9})
	data = append(data, make([]byte, 83)...) // Token-2022 extension area

	meta, err := ParseMint(data)
	require.NoError(t, err)
	assert.Nil(t, meta.MintAuthority)
	assert.Nil(t, meta.FreezeAuthority)
	assert.Equal(t, uint64(42), meta.Supply)
}

func TestParseMintRejectsBadAccounts(t *testing.T) {
	_, err := ParseMint(make([]byte, 81))
	assert.Error(t, err)

	uninitialized := EncodeMint(safety.TokenMetadata{})
	uninitialized[isInitializedOffset] = 0
	_, err = ParseMint(uninitialized)
	assert.Error(t, err)

	badTag := EncodeMint(safety.TokenMetadata{})
	badTag[freezeAuthorityOffset] = 7
	_, err = ParseMint(badTag)
	assert.ErrorContains(t, err, "freeze authority")
}

func TestConvertTransactionResolvesLookupsAndInner(t *testing.T) {
	keys := make([]solana.PublicKey, 5)
	for i := range keys {
		keys[i] = solana.NewWallet().PublicKey()
	}
	keys[2] = raydium.AmmV4ProgramID

	raw := RawTransaction{Slot: 99}
	raw.Transaction = &rawTxBody{Signatures: []string{"sig1"}}
	raw.Transaction.Message.AccountKeys = []string{keys[0].String(), keys[1].String(), keys[2].String()}
	raw.Transaction.Message.Instructions = []rawInstruction{
		{ProgramIDIndex: 2, Accounts: []int{0, 3, 4}, Data: base58.Encode([]byte{1, 2, 3})},
	}
	raw.Meta = &rawMeta{
		LogMessages: []string{"Program log: hi"},
		LoadedAddresses: &rawLoadedLookup{
			Writable: []string{keys[3].String()},
			Readonly: []string{keys[4].String()},
		},
		InnerInstructions: []rawInnerGroup{
			{Index: 0, Instructions: []rawInstruction{{ProgramIDIndex: 4, Accounts: []int{1}}}},
		},
	}

	tx, err := raw.Convert()
	require.NoError(t, err)
	assert.Equal(t, "sig1", tx.Signature)
	assert.Equal(t, uint64(99), tx.Slot)
	assert.Equal(t, []string{"Program log: hi"}, tx.Logs)
	require.Len(t, tx.Instructions, 2)

	top := tx.Instructions[0]
	assert.Equal(t, raydium.AmmV4ProgramID, top.ProgramID)
	assert.Equal(t, []solana.PublicKey{keys[0], keys[3], keys[4]}, top.Accounts)
	assert.Equal(t, []byte{1, 2, 3}, top.Data)

	inner := tx.Instructions[1]
	assert.Equal(t, keys[4], inner.ProgramID)
	assert.Empty(t, inner.Data)
}

func TestConvertTransactionIndexOutOfRange(t *testing.T) {
	raw := RawTransaction{Transaction: &rawTxBody{}}
	raw.Transaction.Message.AccountKeys = []string{solana.NewWallet().PublicKey().String()}
	raw.Transaction.Message.Instructions = []rawInstruction{{ProgramIDIndex: 0, Accounts: []int{5}}}

	_, err := raw.Convert()
	assert.ErrorContains(t, err, "out of range")
}

func TestConvertTransactionFromJSON(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	payload := `{"slot":7,"transaction":{"signatures":["abc"],"message":{
		"accountKeys":["` + program.String() + `"],
		"instructions":[{"programIdIndex":0,"accounts":[],"data":""}]}},
		"meta":{"err":null,"logMessages":["a","b"]}}`

	var raw RawTransaction
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))
	tx, err := raw.Convert()
	require.NoError(t, err)
	assert.Equal(t, "abc", tx.Signature)
	assert.Len(t, tx.Logs, 2)
	assert.Equal(t, program, tx.Instructions[0].ProgramID)
}

func TestBundleOK(t *testing.T) {
	assert.True(t, bundleOK(map[string]interface{}{"Ok": nil}))
	assert.False(t, bundleOK(map[string]interface{}{"Err": "x"}))
	assert.False(t, bundleOK("failed"))
}

func TestJitoSendBundle(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"bundle-1"}`))
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	jc := NewJitoClient(JitoClientConfig{Endpoint: srv.URL}, logger)

	id, err := jc.SendBundle(context.Background(), [][]byte{{1, 2}, {3}})
	require.NoError(t, err)
	assert.Equal(t, "bundle-1", id)
	assert.Equal(t, "sendBundle", got["method"])
	params := got["params"].([]interface{})
	assert.Equal(t, []interface{}{"AQI=", "Aw=="}, params[0])
}

func TestJitoRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bad bundle"}}`))
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	jc := NewJitoClient(JitoClientConfig{Endpoint: srv.URL}, logger)

	_, err := jc.GetTipAccounts(context.Background())
	assert.ErrorContains(t, err, "bad bundle")
}

func TestJitoTipAccountsCachedAndRotated(t *testing.T) {
	a, b := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":["` + a.String() + `","` + b.String() + `"]}`))
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	jc := NewJitoClient(JitoClientConfig{Endpoint: srv.URL}, logger)

	first, err := jc.GetRandomTipAccount(context.Background())
	require.NoError(t, err)
	second, err := jc.GetRandomTipAccount(context.Background())
	require.NoError(t, err)

	assert.Equal(t, a, first)
	assert.Equal(t, b, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestJitoTipAccountsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	jc := NewJitoClient(JitoClientConfig{Endpoint: srv.URL}, logger)

	tip, err := jc.GetRandomTipAccount(context.Background())
	require.NoError(t, err)
	assert.Contains(t, defaultTipAccounts, tip)
}

func TestJitoConfirmBundleFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":[{"bundle_id":"b1","slot":42,
			"confirmation_status":"processed","err":{"Err":"simulation failed"}}]}}`))
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	jc := NewJitoClient(JitoClientConfig{Endpoint: srv.URL}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := jc.ConfirmBundle(ctx, "b1", 10*time.Millisecond)

	var bundleErr *BundleError
	require.ErrorAs(t, err, &bundleErr)
	assert.Equal(t, uint64(42), bundleErr.Slot)
}

func TestJitoConfirmBundleLanded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":[{"bundle_id":"b1","slot":7,
			"confirmation_status":"confirmed","err":{"Ok":null}}]}}`))
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	jc := NewJitoClient(JitoClientConfig{Endpoint: srv.URL}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, jc.ConfirmBundle(ctx, "b1", 10*time.Millisecond))
}

func TestJitoSendBundleRejectsOversized(t *testing.T) {
	logger, _ := test.NewNullLogger()
	jc := NewJitoClient(JitoClientConfig{Endpoint: "http://127.0.0.1:0"}, logger)

	_, err := jc.SendBundle(context.Background(), make([][]byte, 6))
	assert.Error(t, err)
}

// wsNode is a minimal logsSubscribe server.
type wsNode struct {
	mu       sync.Mutex
	conns    []*websocket.Conn
	requests chan map[string]interface{}
}

func newWSNode(t *testing.T) (*wsNode, *httptest.Server) {
	node := &wsNode{requests: make(chan map[string]interface{}, 8)}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		node.mu.Lock()
		node.conns = append(node.conns, conn)
		node.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req map[string]interface{}
			if json.Unmarshal(data, &req) != nil {
				continue
			}
			node.requests <- req
			id := int(req["id"].(float64))
			reply, _ := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": id, "result": 1000 + id})
			node.mu.Lock()
			conn.WriteMessage(websocket.TextMessage, reply)
			node.mu.Unlock()
		}
	}))
	t.Cleanup(srv.Close)
	return node, srv
}

func (n *wsNode) notify(subID int, signature string) {
	msg := `{"jsonrpc":"2.0","method":"logsNotification","params":{"subscription":` +
		itoa(subID) + `,"result":{"context":{"slot":5},"value":{"signature":"` + signature + `","err":null,"logs":["Program log: ray_log: AA=="]}}}}`
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.conns {
		c.WriteMessage(websocket.TextMessage, []byte(msg))
	}
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

func TestWSClientSubscribeAndNotify(t *testing.T) {
	node, srv := newWSNode(t)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	ws := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), logger, WithPingInterval(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ws.Connect(ctx))

	got := make(chan LogsNotification, 1)
	_, err := ws.SubscribeLogs(raydium.CPMMProgramID.String(), "processed", func(n LogsNotification) {
		got <- n
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- ws.Run(ctx) }()

	req := <-node.requests
	assert.Equal(t, "logsSubscribe", req["method"])

	require.Eventually(t, func() bool {
		return ws.Stats()["active_subscriptions"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	node.notify(1001, "sigX")
	select {
	case n := <-got:
		assert.Equal(t, "sigX", n.Result.Value.Signature)
		assert.Equal(t, uint64(5), n.Result.Context.Slot)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestBalanceChangeFromMeta(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()

	payload := `{"slot":9,"transaction":{"signatures":["s"],"message":{
		"accountKeys":["` + owner.String() + `","` + other.String() + `"],"instructions":[]}},
		"meta":{"err":null,"fee":5000,
			"preBalances":[1000000000,10],"postBalances":[899995000,10],
			"preTokenBalances":[
				{"accountIndex":2,"mint":"` + mint.String() + `","owner":"` + other.String() + `","uiTokenAmount":{"amount":"900","decimals":6}}],
			"postTokenBalances":[
				{"accountIndex":2,"mint":"` + mint.String() + `","owner":"` + other.String() + `","uiTokenAmount":{"amount":"100","decimals":6}},
				{"accountIndex":3,"mint":"` + mint.String() + `","owner":"` + owner.String() + `","uiTokenAmount":{"amount":"4912345","decimals":6}}]}}`

	var raw RawTransaction
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))

	change, err := raw.BalanceChange(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, int64(4_912_345), change.Token)
	assert.Equal(t, int64(-100_000_000), change.Lamports)
	assert.Equal(t, uint64(5000), change.Fee)
}

func TestBalanceChangeFailedTransaction(t *testing.T) {
	raw := RawTransaction{Transaction: &rawTxBody{}, Meta: &rawMeta{Err: map[string]interface{}{"InstructionError": 1}}}
	_, err := raw.BalanceChange(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	assert.ErrorContains(t, err, "transaction failed")
}
