package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/engine"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/parameters"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/types"
	"github.com/cloudwithsk/ECD-FHE-Healthcare-System/pkg/core/worker"
)

var (
	vitals  = []float64{20, 117, 83, 80, 99}
	operand = []float64{0, 5, 0, 0, 0}
)

func newEngine(t *testing.T, sp parameters.SchemeParameters) *engine.Engine {
	t.Helper()
	e, err := engine.New(sp)
	require.NoError(t, err)
	return e
}

func newWorker(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(worker.NewHTTPServer("127.0.0.1:0").Handler())
	t.Cleanup(srv.Close)
	return srv
}

func requireClose(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.InDelta(t, want[i], got[i], 0.01*max(1, want[i]), "slot %d", i)
	}
}

func requireStage(t *testing.T, err error, stage Stage) *StageError {
	t.Helper()
	var se *StageError
	require.True(t, errors.As(err, &se), "got %v", err)
	require.Equal(t, stage, se.Stage)
	require.NotEmpty(t, se.RequestID)
	return se
}

// transportFunc 测试用传输
type transportFunc func(ctx context.Context, req types.OperationRequest) (types.OperationResult, error)

func (f transportFunc) Invoke(ctx context.Context, req types.OperationRequest) (types.OperationResult, error) {
	return f(ctx, req)
}

func TestOffloadOverHTTP(t *testing.T) {
	srv := newWorker(t)
	for _, scheme := range []types.SchemeKind{types.ApproximateReal, types.IntegerBatched} {
		t.Run(scheme.String(), func(t *testing.T) {
			core, logs := observer.New(zap.InfoLevel)
			e := newEngine(t, parameters.Default(scheme))
			o, err := New(e, NewHTTPTransport(srv.URL, nil), WithLogger(zap.New(core)))
			require.NoError(t, err)

			out, err := o.Offload(context.Background(), vitals, types.OpAddPlain, operand)
			require.NoError(t, err)
			require.Equal(t, types.OpAddPlain, out.Operation)
			require.NotEmpty(t, out.RequestID)
			requireClose(t, []float64{20, 122, 83, 80, 99}, out.Values)

			tm := out.Timings
			require.Positive(t, int64(tm.Encryption))
			require.Positive(t, int64(tm.Decryption))
			require.GreaterOrEqual(t, int64(tm.Network), int64(0))
			require.GreaterOrEqual(t, int64(tm.Total), int64(tm.Encryption+tm.Decryption))
			require.Equal(t, 1, logs.FilterMessage("offload completed").Len())

			// 标量操作数广播到输入长度
			out, err = o.Offload(context.Background(), vitals, "multiply", 2)
			require.NoError(t, err)
			require.Equal(t, types.OpMultiplyPlain, out.Operation)
			requireClose(t, []float64{40, 234, 166, 160, 198}, out.Values)

			out, err = o.Offload(context.Background(), vitals, types.OpAddCipher, vitals)
			require.NoError(t, err)
			requireClose(t, []float64{40, 234, 166, 160, 198}, out.Values)
		})
	}
}

func TestOffloadRelinearizationKeyIsOptIn(t *testing.T) {
	srv := newWorker(t)
	e := newEngine(t, parameters.Default(types.ApproximateReal))

	o, err := New(e, NewHTTPTransport(srv.URL, nil))
	require.NoError(t, err)
	out, err := o.Offload(context.Background(), vitals, types.OpSquare, nil)
	require.Nil(t, out)
	requireStage(t, err, StageRemote)
	require.True(t, types.IsKind(err, types.RemoteExecutionError))
	require.ErrorIs(t, err, types.ErrRemoteExecutionFailed)
	require.Contains(t, err.Error(), "422")
	require.Contains(t, err.Error(), string(types.DegradedCapability))

	o, err = New(e, NewHTTPTransport(srv.URL, nil), WithRelinearizationKey(true))
	require.NoError(t, err)
	out, err = o.Offload(context.Background(), vitals, types.OpSquare, nil)
	require.NoError(t, err)
	requireClose(t, []float64{400, 13689, 6889, 6400, 9801}, out.Values)

	out, err = o.Offload(context.Background(), vitals, types.OpMultiplyCipher, operand)
	require.NoError(t, err)
	requireClose(t, []float64{0, 585, 0, 0, 0}, out.Values)
}

func TestOffloadOverWebSocket(t *testing.T) {
	srv := newWorker(t)
	e := newEngine(t, parameters.Default(types.ApproximateReal))

	tr, err := NewTransport("websocket", srv.URL, nil)
	require.NoError(t, err)
	ws := tr.(*WebSocketTransport)
	defer func() { require.NoError(t, ws.Close()) }()

	o, err := New(e, ws)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		out, err := o.Offload(context.Background(), vitals, types.OpAddPlain, operand)
		require.NoError(t, err)
		requireClose(t, []float64{20, 122, 83, 80, 99}, out.Values)
	}

	// 远端错误帧不会断开连接
	_, err = o.Offload(context.Background(), vitals, types.OpSquare, nil)
	requireStage(t, err, StageRemote)
	out, err := o.Offload(context.Background(), vitals, types.OpAddPlain, operand)
	require.NoError(t, err)
	require.Len(t, out.Values, len(vitals))
}

func TestOffloadCipher(t *testing.T) {
	srv := newWorker(t)
	e := newEngine(t, parameters.Default(types.ApproximateReal))
	o, err := New(e, NewHTTPTransport(srv.URL, nil))
	require.NoError(t, err)

	a, err := e.Encrypt(vitals)
	require.NoError(t, err)
	b, err := e.Encrypt(operand)
	require.NoError(t, err)

	out, err := o.OffloadCipher(context.Background(), a, b, types.OpAddCipher)
	require.NoError(t, err)
	values, err := e.Decrypt(out.Ciphertext)
	require.NoError(t, err)
	requireClose(t, []float64{20, 122, 83, 80, 99}, engine.Truncate(values, len(vitals)))

	_, err = o.OffloadCipher(context.Background(), a, nil, types.OpAddCipher)
	requireStage(t, err, StageEncode)
	_, err = o.OffloadCipher(context.Background(), a, nil, types.OpAddPlain)
	requireStage(t, err, StageEncode)
}

func TestOffloadRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom","kind":"remote_execution_error"}`))
	}))
	defer srv.Close()

	e := newEngine(t, parameters.Default(types.ApproximateReal))
	o, err := New(e, NewHTTPTransport(srv.URL, nil))
	require.NoError(t, err)

	out, err := o.Offload(context.Background(), vitals, types.OpAddPlain, operand)
	require.Nil(t, out)
	requireStage(t, err, StageRemote)
	require.ErrorIs(t, err, types.ErrRemoteExecutionFailed)
	require.Contains(t, err.Error(), "boom")
}

func TestOffloadTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := newEngine(t, parameters.Default(types.ApproximateReal))
	o, err := New(e, NewHTTPTransport(url, nil))
	require.NoError(t, err)

	_, err = o.Offload(context.Background(), vitals, types.OpAddPlain, operand)
	requireStage(t, err, StageTransport)
	require.True(t, types.IsKind(err, types.TransportError))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	live := newWorker(t)
	o, err = New(e, NewHTTPTransport(live.URL, nil))
	require.NoError(t, err)
	_, err = o.Offload(ctx, vitals, types.OpAddPlain, operand)
	requireStage(t, err, StageTransport)
	require.ErrorIs(t, err, context.Canceled)
}

func TestOffloadRejectsForeignCiphertext(t *testing.T) {
	e := newEngine(t, parameters.Default(types.ApproximateReal))
	sp := parameters.Default(types.ApproximateReal)
	sp.ScaleBits = 30
	other := newEngine(t, sp)

	foreign := transportFunc(func(_ context.Context, req types.OperationRequest) (types.OperationResult, error) {
		ct, err := other.Encrypt(vitals)
		if err != nil {
			return types.OperationResult{}, err
		}
		data, err := other.Codec().EncodeCiphertext(ct)
		if err != nil {
			return types.OperationResult{}, err
		}
		return types.OperationResult{RequestID: req.RequestID, Operation: req.Operation, Result: data}, nil
	})
	o, err := New(e, foreign)
	require.NoError(t, err)

	out, err := o.Offload(context.Background(), vitals, types.OpAddPlain, operand)
	require.Nil(t, out)
	requireStage(t, err, StageDeserialize)
	require.ErrorIs(t, err, types.ErrIncompatibleContext)
}

func TestOffloadRejectsMismatchedResponse(t *testing.T) {
	e := newEngine(t, parameters.Default(types.ApproximateReal))
	stale := transportFunc(func(_ context.Context, req types.OperationRequest) (types.OperationResult, error) {
		return types.OperationResult{RequestID: "someone-else", Operation: req.Operation, Result: req.EncryptedData}, nil
	})
	o, err := New(e, stale)
	require.NoError(t, err)

	_, err = o.Offload(context.Background(), vitals, types.OpAddPlain, operand)
	requireStage(t, err, StageRemote)
	require.ErrorIs(t, err, types.ErrRemoteExecutionFailed)

	empty := transportFunc(func(_ context.Context, req types.OperationRequest) (types.OperationResult, error) {
		return types.OperationResult{RequestID: req.RequestID}, nil
	})
	o, err = New(e, empty)
	require.NoError(t, err)
	_, err = o.Offload(context.Background(), vitals, types.OpAddPlain, operand)
	requireStage(t, err, StageRemote)
}

func TestOffloadRejectsBadInput(t *testing.T) {
	e := newEngine(t, parameters.Default(types.ApproximateReal))
	called := false
	never := transportFunc(func(context.Context, types.OperationRequest) (types.OperationResult, error) {
		called = true
		return types.OperationResult{}, nil
	})
	o, err := New(e, never)
	require.NoError(t, err)

	cases := []struct {
		name    string
		values  any
		kind    types.OperationKind
		operand any
	}{
		{"unknown operation", vitals, "rotate", nil},
		{"missing plaintext", vitals, types.OpAddPlain, nil},
		{"missing ciphertext operand", vitals, types.OpMultiplyCipher, nil},
		{"empty input", []float64{}, types.OpSquare, nil},
		{"unsupported type", "vitals", types.OpSquare, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := o.Offload(context.Background(), c.values, c.kind, c.operand)
			requireStage(t, err, StageEncode)
			require.True(t, types.IsKind(err, types.EncodingError), "got %v", err)
		})
	}
	require.False(t, called)
}

func TestNewRequiresComponents(t *testing.T) {
	_, err := New(nil, NewHTTPTransport("http://127.0.0.1:1", nil))
	require.ErrorIs(t, err, types.ErrUninitialized)

	_, err = NewTransport("carrier-pigeon", "http://127.0.0.1:1", nil)
	require.True(t, types.IsKind(err, types.ConfigurationError))
}

func TestHealth(t *testing.T) {
	srv := newWorker(t)

	hs, err := CheckHealth(context.Background(), nil, srv.URL)
	require.NoError(t, err)
	require.Equal(t, "ok", hs.Status)
	require.ElementsMatch(t, types.AllOperations, hs.Operations)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	hs, err = WaitReady(ctx, srv.Client(), srv.URL+"/", 10*time.Millisecond)
	require.NoError(t, err)
	require.Zero(t, hs.CachedContexts)

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = WaitReady(ctx, nil, down.URL, 10*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
