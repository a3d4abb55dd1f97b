package otel

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" authorization = Bearer x ,broken,=skip,tenant=escrow")
	if len(got) != 2 || got["authorization"] != "Bearer x" || got["tenant"] != "escrow" {
		t.Fatalf("unexpected headers %v", got)
	}
	if len(ParseHeaders("")) != 0 {
		t.Fatalf("empty input should yield no headers")
	}
}

func TestInitWithoutExporters(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name to fail")
	}
	shutdown, err := Init(context.Background(), Config{ServiceName: "claimlinkd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestResourceCarriesAttributes(t *testing.T) {
	res, err := buildResource(Config{
		ServiceName: "claimlinkd",
		Environment: "test",
		Attributes:  map[string]string{"claimlink.chain_id": "31337"},
	})
	if err != nil {
		t.Fatalf("build resource: %v", err)
	}
	found := false
	for _, kv := range res.Attributes() {
		if string(kv.Key) == "claimlink.chain_id" && kv.Value.AsString() == "31337" {
			found = true
		}
	}
	if !found {
		t.Fatalf("chain id attribute missing from %v", res.Attributes())
	}
}
