package health

import (
	"context"
	"errors"
	"testing"

	"github.com/tidechat/tidechat/internal/chatstore"
)

type probeStore struct {
	chatstore.Store
	err error
}

func (p *probeStore) ListChats(context.Context) ([]chatstore.Chat, error) {
	return nil, p.err
}

type probeUpstream struct{ err error }

func (p *probeUpstream) Ping(context.Context) error { return p.err }

func TestCheckAllHealthy(t *testing.T) {
	c := New(Config{Store: &probeStore{}, Upstream: &probeUpstream{}})
	report := c.Check(context.Background())
	if report.Status != StatusHealthy {
		t.Fatalf("status = %s, want healthy", report.Status)
	}
	if len(report.Components) != 2 {
		t.Fatalf("components = %d, want 2", len(report.Components))
	}
}

func TestCheckUpstreamDownDegrades(t *testing.T) {
	c := New(Config{Store: &probeStore{}, Upstream: &probeUpstream{err: errors.New("refused")}})
	report := c.Check(context.Background())
	if report.Status != StatusDegraded {
		t.Fatalf("status = %s, want degraded", report.Status)
	}
}

func TestCheckStoreDownUnhealthy(t *testing.T) {
	c := New(Config{Store: &probeStore{err: errors.New("disk gone")}, Upstream: &probeUpstream{}})
	report := c.Check(context.Background())
	if report.Status != StatusUnhealthy {
		t.Fatalf("status = %s, want unhealthy", report.Status)
	}
}

func TestLastBeforeCheck(t *testing.T) {
	c := New(Config{Store: &probeStore{}})
	if got := c.Last(); got.Status != "" || len(got.Components) != 0 {
		t.Fatalf("unexpected initial report: %+v", got)
	}
	c.Check(context.Background())
	if got := c.Last(); got.Status != StatusHealthy {
		t.Fatalf("last status = %s, want healthy", got.Status)
	}
}
