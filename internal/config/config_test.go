package config

import (
	"strings"
	"testing"
)

const validYAML = `
shop:
  domain: test-shop.myshopify.com
  access_token: shpat_test
webhook:
  secret: shpss_test
`

func TestFromYAMLValid(t *testing.T) {
	cfg, err := FromYAML([]byte(validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Shop.Domain != "test-shop.myshopify.com" || cfg.Webhook.Secret != "shpss_test" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestValidateRequiresCredentials(t *testing.T) {
	if _, err := FromYAML([]byte("shop:\n  domain: test-shop.myshopify.com\n")); err == nil || !strings.Contains(err.Error(), "access_token") {
		t.Fatalf("expected access_token error, got %v", err)
	}
	if _, err := FromYAML([]byte("shop:\n  access_token: shpat_test\n")); err == nil || !strings.Contains(err.Error(), "domain") {
		t.Fatalf("expected domain error, got %v", err)
	}
}

func TestEndpointOverrideSkipsCredentialCheck(t *testing.T) {
	cfg, err := FromYAML([]byte("shop:\n  endpoint: http://127.0.0.1:9999/graphql\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint() != "http://127.0.0.1:9999/graphql" {
		t.Fatalf("endpoint = %q", cfg.Endpoint())
	}
}

func TestEndpointDerivedFromDomain(t *testing.T) {
	cfg, err := FromYAML([]byte(validYAML))
	if err != nil {
		t.Fatal(err)
	}
	want := "https://test-shop.myshopify.com/admin/api/2024-10/graphql.json"
	if cfg.Endpoint() != want {
		t.Fatalf("endpoint = %q, want %q", cfg.Endpoint(), want)
	}
	cfg.Shop.APIVersion = "2025-01"
	if !strings.Contains(cfg.Endpoint(), "/2025-01/") {
		t.Fatalf("endpoint = %q", cfg.Endpoint())
	}
}

func TestOrdersFirstDefault(t *testing.T) {
	cfg, err := FromYAML([]byte(validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OrdersFirst() != 10 {
		t.Fatalf("default = %d", cfg.OrdersFirst())
	}
	cfg.Provision.OrdersFirst = 25
	if cfg.OrdersFirst() != 25 {
		t.Fatalf("override = %d", cfg.OrdersFirst())
	}
}
