package pool

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/olla-labs/estransport/internal/core/domain"
	"github.com/olla-labs/estransport/internal/core/ports"
)

func TestParseCloudID(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("localhost$abcd$efgh"))
	cloudID := "name:" + payload

	rawURL, tlsOptions, err := ParseCloudID(cloudID)
	if err != nil {
		t.Fatalf("ParseCloudID failed: %v", err)
	}
	if rawURL != "https://abcd.localhost" {
		t.Errorf("expected https://abcd.localhost, got %s", rawURL)
	}
	if tlsOptions["minVersion"] != "TLSv1.2" {
		t.Errorf("expected TLSv1.2 minVersion, got %v", tlsOptions["minVersion"])
	}
}

func TestParseCloudIDInvalid(t *testing.T) {
	if _, _, err := ParseCloudID("not-a-valid-id"); err == nil {
		t.Errorf("expected error for cloud id missing name:payload separator")
	}
}

func TestCloudPoolAlwaysReturnsCachedConnection(t *testing.T) {
	factory := &fakeFactory{respond: func(string, ports.RequestParams) (*ports.Response, error) {
		return &ports.Response{StatusCode: 200}, nil
	}}
	c := NewCloud(factory, ports.PoolDefaults{})
	if err := c.Update(context.Background(), []domain.Descriptor{{URL: "https://abcd.localhost"}}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	conn, err := c.GetConnection(context.Background(), ports.SelectOptions{}, nil, nil)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}

	c.MarkDead(conn)

	again, err := c.GetConnection(context.Background(), ports.SelectOptions{}, nil, nil)
	if err != nil {
		t.Fatalf("GetConnection after MarkDead failed: %v", err)
	}
	if again.ID() != conn.ID() {
		t.Errorf("expected cloud pool to keep returning the same connection even when dead")
	}
}

func TestCloudPoolUpdateCachesOnlyFirstConnection(t *testing.T) {
	factory := &fakeFactory{respond: func(string, ports.RequestParams) (*ports.Response, error) {
		return &ports.Response{StatusCode: 200}, nil
	}}
	c := NewCloud(factory, ports.PoolDefaults{})
	_ = c.Update(context.Background(), []domain.Descriptor{{URL: "https://one.example"}})
	first, _ := c.GetConnection(context.Background(), ports.SelectOptions{}, nil, nil)

	_ = c.Update(context.Background(), []domain.Descriptor{{URL: "https://two.example"}})
	second, _ := c.GetConnection(context.Background(), ports.SelectOptions{}, nil, nil)

	if first.ID() != second.ID() {
		t.Errorf("expected cloud pool to ignore subsequent updates once cached")
	}
}
