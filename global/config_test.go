package global

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	if err := Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if Global.Port != 8080 {
		t.Fatalf("port = %d", Global.Port)
	}
	if Global.JwtSecret == "" {
		t.Fatalf("jwt secret default missing")
	}
	if Global.Mongo.Uri == "" || Global.Mongo.Database == "" {
		t.Fatalf("mongo defaults missing: %+v", Global.Mongo)
	}
	if Global.Redis.PresenceTTL != 300 {
		t.Fatalf("presence ttl = %d", Global.Redis.PresenceTTL)
	}
	if Global.Assistant.TimeoutSec != 120 || Global.Assistant.Model != "llama2" {
		t.Fatalf("assistant defaults: %+v", Global.Assistant)
	}
	if Global.Turn.Port != 3478 || Global.Turn.TTLSec != 86400 {
		t.Fatalf("turn defaults: %+v", Global.Turn)
	}
	if len(Global.Cors.Origins) != 2 {
		t.Fatalf("cors defaults: %v", Global.Cors.Origins)
	}
	if Global.Nats.Enable || Global.Kafka.Enable {
		t.Fatalf("optional bypasses should default off")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TURN_SECRET", "coturn-shared-secret")
	t.Setenv("MONGO_DATABASE", "workspace_test")

	if err := Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if Global.Port != 9090 {
		t.Fatalf("env PORT not applied: %d", Global.Port)
	}
	if Global.Turn.Secret != "coturn-shared-secret" {
		t.Fatalf("env TURN_SECRET not applied: %q", Global.Turn.Secret)
	}
	if Global.Mongo.Database != "workspace_test" {
		t.Fatalf("env MONGO_DATABASE not applied: %q", Global.Mongo.Database)
	}
}

func TestGatewayID(t *testing.T) {
	old := Global.GatewayNodeId
	defer func() { Global.GatewayNodeId = old }()

	Global.GatewayNodeId = "gw-7"
	if got := GatewayID(); got != "gw-7" {
		t.Fatalf("GatewayID = %q", got)
	}

	Global.GatewayNodeId = ""
	if got := GatewayID(); len(got) < 4 || got[:3] != "gw-" {
		t.Fatalf("fallback GatewayID = %q", got)
	}
}
