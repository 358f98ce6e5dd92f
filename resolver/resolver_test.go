package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"quantmuse/models"
	"quantmuse/ratelimit"
	"quantmuse/session"
	"quantmuse/terminal"
)

// scriptedTerminal returns pre-canned responses in call order.
type scriptedTerminal struct {
	responses []models.RawResponse
	errs      []error
	invokes   int
	logins    int
}

func (s *scriptedTerminal) Login(ctx context.Context, userID, password string) (int, error) {
	s.logins++
	return terminal.StatusOK, nil
}

func (s *scriptedTerminal) Logout(ctx context.Context) error { return nil }

func (s *scriptedTerminal) Invoke(ctx context.Context, op terminal.Op, params ...string) (models.RawResponse, error) {
	idx := s.invokes
	s.invokes++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return models.NewRawNil(), s.errs[idx]
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return models.NewRawNil(), nil
}

func newResolver(st *scriptedTerminal) *Resolver {
	sess := session.NewManager(st, "u", "p", 3, time.Millisecond)
	limiter := ratelimit.New(1000, time.Second, 0)
	return New(st, limiter, sess)
}

func shapes(n int) []InvocationShape {
	out := make([]InvocationShape, n)
	for i := range out {
		out[i] = InvocationShape{
			Description: fmt.Sprintf("candidate-%d", i+1),
			Op:          terminal.OpDataPool,
			Params:      []string{"stock"},
		}
	}
	return out
}

func okResponse(rows int) models.RawResponse {
	list := make([]interface{}, rows)
	for i := range list {
		list[i] = map[string]interface{}{"code": fmt.Sprintf("C%d", i)}
	}
	return models.NewRawMapping(map[string]interface{}{
		"errorcode": float64(0),
		"data":      list,
	})
}

func failResponse() models.RawResponse {
	return models.NewRawMapping(map[string]interface{}{"errorcode": float64(-4001)})
}

func TestResolveShortCircuits(t *testing.T) {
	st := &scriptedTerminal{responses: []models.RawResponse{
		failResponse(),
		failResponse(),
		okResponse(2),
		okResponse(99), // must never be reached
		okResponse(99),
	}}
	r := newResolver(st)

	rows, trace, err := r.Resolve(context.Background(), shapes(5), DefaultSuccess)
	if err != nil {
		t.Fatal(err)
	}
	if st.invokes != 3 {
		t.Fatalf("physical calls = %d, want exactly 3", st.invokes)
	}
	if len(trace) != 3 {
		t.Fatalf("trace length = %d, want 3", len(trace))
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if trace[2].RowCount != 2 || trace[2].StatusCode == nil || *trace[2].StatusCode != 0 {
		t.Fatalf("unexpected final trace entry %+v", trace[2])
	}
}

func TestResolveExhaustionIsNotAnError(t *testing.T) {
	st := &scriptedTerminal{responses: []models.RawResponse{
		failResponse(), failResponse(), failResponse(),
	}}
	r := newResolver(st)

	rows, trace, err := r.Resolve(context.Background(), shapes(3), DefaultSuccess)
	if err != nil {
		t.Fatalf("exhaustion must not be an error, got %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(rows))
	}
	if len(trace) != 3 {
		t.Fatalf("trace length = %d, want 3 (one per attempt)", len(trace))
	}
}

func TestResolveSkipsTransportErrors(t *testing.T) {
	st := &scriptedTerminal{
		errs:      []error{errors.New("connection reset"), nil},
		responses: []models.RawResponse{models.NewRawNil(), okResponse(1)},
	}
	r := newResolver(st)

	rows, trace, err := r.Resolve(context.Background(), shapes(2), DefaultSuccess)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if trace[0].RawType != "error" {
		t.Fatalf("trace[0].RawType = %q, want error", trace[0].RawType)
	}
}

func TestResolveRecoversExpiredSession(t *testing.T) {
	st := &scriptedTerminal{responses: []models.RawResponse{
		models.NewRawMapping(map[string]interface{}{"errorcode": float64(terminal.StatusSessionExpired)}),
		okResponse(1),
	}}
	r := newResolver(st)

	rows, _, err := r.Resolve(context.Background(), shapes(2), DefaultSuccess)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if st.logins != 2 {
		t.Fatalf("logins = %d, want 2 (fresh login after expiry)", st.logins)
	}
}

func TestResolveHonorsCancellation(t *testing.T) {
	st := &scriptedTerminal{responses: []models.RawResponse{failResponse()}}
	r := newResolver(st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := r.Resolve(ctx, shapes(3), DefaultSuccess)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
