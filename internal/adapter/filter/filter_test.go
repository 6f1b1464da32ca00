package filter

import (
	"context"
	"testing"

	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
)

type fakeConn struct {
	desc *domain.Connection
}

func (f *fakeConn) ID() string                     { return f.desc.ID }
func (f *fakeConn) Descriptor() *domain.Connection { return f.desc }
func (f *fakeConn) Close(context.Context) error     { return nil }
func (f *fakeConn) SetRole(domain.Role, bool) error { return nil }
func (f *fakeConn) IncrementOpenRequests()          {}
func (f *fakeConn) DecrementOpenRequests()          {}
func (f *fakeConn) Request(context.Context, ports.RequestParams, func(*ports.Response, error)) ports.AbortHandle {
	return nil
}

func TestDefaultExcludesMasterOnly(t *testing.T) {
	masterOnly := &fakeConn{desc: &domain.Connection{ID: "m", Roles: domain.NewRoleSet(domain.RoleMaster)}}
	if Default(masterOnly) {
		t.Errorf("expected Default filter to exclude a master-only connection")
	}

	dataNode := &fakeConn{desc: &domain.Connection{ID: "d", Roles: domain.NewDefaultRoleSet()}}
	if !Default(dataNode) {
		t.Errorf("expected Default filter to include a data-role connection")
	}
}

func TestRequireRole(t *testing.T) {
	ingestOnly := &fakeConn{desc: &domain.Connection{ID: "i", Roles: domain.NewRoleSet(domain.RoleIngest)}}
	f := RequireRole(domain.RoleIngest)
	if !f(ingestOnly) {
		t.Errorf("expected RequireRole(ingest) to accept an ingest connection")
	}
	if RequireRole(domain.RoleML)(ingestOnly) {
		t.Errorf("expected RequireRole(ml) to reject a non-ml connection")
	}
}

func TestAllCombinesWithAnd(t *testing.T) {
	conn := &fakeConn{desc: &domain.Connection{ID: "x", Roles: domain.NewDefaultRoleSet()}}
	alwaysTrue := func(ports.Connection) bool { return true }
	alwaysFalse := func(ports.Connection) bool { return false }

	if !All(alwaysTrue, alwaysTrue)(conn) {
		t.Errorf("expected All(true, true) to pass")
	}
	if All(alwaysTrue, alwaysFalse)(conn) {
		t.Errorf("expected All(true, false) to fail")
	}
}
