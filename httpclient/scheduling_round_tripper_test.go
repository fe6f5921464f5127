/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-slowrate/config"
	"github.com/acronis/go-slowrate/scheduler"
	"github.com/acronis/go-slowrate/testutil"
)

type reqInfo struct {
	path               string
	body               string
	retryAttemptHeader string
}

type testServer struct {
	*httptest.Server
	mu        sync.Mutex
	reqInfos  []reqInfo
	respCodes []int
}

func newTestServer(respCodes ...int) *testServer {
	srv := &testServer{respCodes: respCodes}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		reqBody, _ := io.ReadAll(r.Body)

		srv.mu.Lock()
		srv.reqInfos = append(srv.reqInfos, reqInfo{
			path:               r.URL.Path,
			body:               string(reqBody),
			retryAttemptHeader: r.Header.Get(RetryAttemptNumberHeader),
		})
		respCode := http.StatusOK
		if len(srv.respCodes) > 0 {
			respCode = srv.respCodes[0]
			srv.respCodes = srv.respCodes[1:]
		}
		srv.mu.Unlock()

		rw.WriteHeader(respCode)
		_, _ = rw.Write([]byte(fmt.Sprintf("status %d", respCode)))
	}))
	return srv
}

func (s *testServer) ReqInfos() []reqInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reqInfo(nil), s.reqInfos...)
}

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type temporaryError struct{}

func (temporaryError) Error() string   { return "connection reset" }
func (temporaryError) Temporary() bool { return true }

func newTestScheduler(t *testing.T, interval time.Duration, maxAttempts int) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(&scheduler.Config{Interval: config.TimeDuration(interval), MaxAttempts: maxAttempts})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Stop(false)
	})
	return s
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestSchedulingRoundTripper_Success(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	client := New(newTestScheduler(t, time.Millisecond*10, 3))
	resp, err := client.Get(srv.URL + "/quota")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "status 200", readBody(t, resp))
	require.Equal(t, []reqInfo{{path: "/quota"}}, srv.ReqInfos())
}

func TestSchedulingRoundTripper_Retries(t *testing.T) {
	const reqBody = `{"name":"slowrate"}`

	tests := []struct {
		Name       string
		MakeReq    func(url string) *http.Request
		RespCodes  []int
		WantStatus int
		WantReqs   int
	}{
		{
			Name: "body with GetBody",
			MakeReq: func(url string) *http.Request {
				req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(reqBody))
				return req
			},
			RespCodes:  []int{http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusOK},
			WantStatus: http.StatusOK,
			WantReqs:   3,
		},
		{
			Name: "seekable body",
			MakeReq: func(url string) *http.Request {
				req, _ := http.NewRequest(http.MethodPut, url, bytes.NewReader([]byte(reqBody)))
				req.GetBody = nil
				return req
			},
			RespCodes:  []int{http.StatusInternalServerError, http.StatusCreated},
			WantStatus: http.StatusCreated,
			WantReqs:   2,
		},
		{
			Name: "buffered body",
			MakeReq: func(url string) *http.Request {
				req, _ := http.NewRequest(http.MethodPost, url, io.NopCloser(strings.NewReader(reqBody)))
				return req
			},
			RespCodes:  []int{http.StatusBadGateway, http.StatusOK},
			WantStatus: http.StatusOK,
			WantReqs:   2,
		},
		{
			Name: "attempts are exhausted, last response is returned",
			MakeReq: func(url string) *http.Request {
				req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(reqBody))
				return req
			},
			RespCodes:  []int{http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusOK},
			WantStatus: http.StatusTooManyRequests,
			WantReqs:   3,
		},
		{
			Name: "client error is not retried",
			MakeReq: func(url string) *http.Request {
				req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(reqBody))
				return req
			},
			RespCodes:  []int{http.StatusBadRequest, http.StatusOK},
			WantStatus: http.StatusBadRequest,
			WantReqs:   1,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.Name, func(t *testing.T) {
			srv := newTestServer(tt.RespCodes...)
			defer srv.Close()

			client := New(newTestScheduler(t, time.Millisecond*10, 3))
			resp, err := client.Do(tt.MakeReq(srv.URL + "/items"))
			require.NoError(t, err)
			require.Equal(t, tt.WantStatus, resp.StatusCode)
			require.Equal(t, fmt.Sprintf("status %d", tt.WantStatus), readBody(t, resp))

			reqInfos := srv.ReqInfos()
			require.Len(t, reqInfos, tt.WantReqs)
			for i, info := range reqInfos {
				require.Equal(t, reqBody, info.body)
				if i == 0 {
					require.Empty(t, info.retryAttemptHeader)
				} else {
					require.Equal(t, fmt.Sprintf("%d", i), info.retryAttemptHeader)
				}
			}
		})
	}
}

func TestSchedulingRoundTripper_MaxAttemptsFromContext(t *testing.T) {
	srv := newTestServer(http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK)
	defer srv.Close()

	client := New(newTestScheduler(t, time.Millisecond*10, 5))
	req, err := http.NewRequestWithContext(NewContextWithMaxAttempts(context.Background(), 2), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_ = readBody(t, resp)
	require.Len(t, srv.ReqInfos(), 2)
}

func TestSchedulingRoundTripper_Priority(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	s := newTestScheduler(t, time.Millisecond*200, 1)
	client := New(s)

	var wg sync.WaitGroup
	send := func(path string, priority int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := NewContextWithPriority(context.Background(), priority)
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
			resp, err := client.Do(req)
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
	}

	send("/low", 0)
	require.NoError(t, testutil.WaitTrue(func() bool { return s.QueueSize() == 1 }, time.Second))
	send("/high", 100)
	require.NoError(t, testutil.WaitTrue(func() bool { return s.QueueSize() == 2 }, time.Second))
	wg.Wait()

	reqInfos := srv.ReqInfos()
	require.Len(t, reqInfos, 2)
	require.Equal(t, "/high", reqInfos[0].path)
	require.Equal(t, "/low", reqInfos[1].path)
}

func TestSchedulingRoundTripper_TransportErrors(t *testing.T) {
	t.Run("temporary error is retried", func(t *testing.T) {
		var calls int32
		delegate := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return nil, fmt.Errorf("dial: %w", temporaryError{})
		})
		client := NewWithOpts(newTestScheduler(t, time.Millisecond*10, 3), Opts{Delegate: delegate})
		_, err := client.Get("http://example.invalid")
		require.ErrorAs(t, err, &temporaryError{})
		require.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("non-temporary error is not retried", func(t *testing.T) {
		var calls int32
		errRefused := errors.New("connection refused")
		delegate := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return nil, errRefused
		})
		client := NewWithOpts(newTestScheduler(t, time.Millisecond*10, 3), Opts{Delegate: delegate})
		_, err := client.Get("http://example.invalid")
		require.ErrorIs(t, err, errRefused)
		require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("neither response nor error", func(t *testing.T) {
		delegate := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return nil, nil
		})
		rt := NewSchedulingRoundTripper(delegate, newTestScheduler(t, time.Millisecond*10, 3))
		req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
		_, err := rt.RoundTrip(req)
		var rtErr *SchedulingRoundTripperError
		require.ErrorAs(t, err, &rtErr)
		require.ErrorIs(t, err, errNoResponse)
	})
}

func TestSchedulingRoundTripper_CustomCheckRetry(t *testing.T) {
	srv := newTestServer(http.StatusNotFound, http.StatusOK)
	defer srv.Close()

	client := NewWithOpts(newTestScheduler(t, time.Millisecond*10, 2), Opts{
		CheckRetry: func(ctx context.Context, resp *http.Response, roundTripErr error) (bool, error) {
			return roundTripErr == nil && resp.StatusCode == http.StatusNotFound, nil
		},
	})
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = readBody(t, resp)
	require.Len(t, srv.ReqInfos(), 2)
}

func TestSchedulingRoundTripper_SchedulerIsStopped(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	s := newTestScheduler(t, time.Millisecond*10, 1)
	require.NoError(t, s.Stop(true))

	_, err := New(s).Get(srv.URL)
	var rtErr *SchedulingRoundTripperError
	require.ErrorAs(t, err, &rtErr)
	require.ErrorIs(t, err, scheduler.ErrStopped)
	require.Empty(t, srv.ReqInfos())
}

func TestSchedulingRoundTripper_ContextIsDoneWhileWaiting(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	s := newTestScheduler(t, time.Hour, 1)
	client := NewWithOpts(s, Opts{Timeout: time.Millisecond * 50})
	_, err := client.Get(srv.URL)
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())
	require.Empty(t, srv.ReqInfos())
}
