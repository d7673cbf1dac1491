package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func withStubbedRPC(t *testing.T, stub func(method string, params interface{}) (json.RawMessage, *rpcError, error)) {
	t.Helper()
	original := escrowRPCCall
	escrowRPCCall = stub
	t.Cleanup(func() { escrowRPCCall = original })
}

func TestEscrowCreateCommand(t *testing.T) {
	var gotMethod string
	var gotParams map[string]interface{}
	withStubbedRPC(t, func(method string, params interface{}) (json.RawMessage, *rpcError, error) {
		gotMethod = method
		gotParams = params.(map[string]interface{})
		return json.RawMessage(`{"id":1}`), nil, nil
	})

	var stdout, stderr bytes.Buffer
	code := runEscrowCommand([]string{
		"create", "--kind", "1", "--buyer", "vlt1buyer", "--seller", "vlt1seller",
		"--amount", "100", "--release-offset", "3600",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	if gotMethod != "escrow_create" {
		t.Fatalf("unexpected method %q", gotMethod)
	}
	if gotParams["buyer"] != "vlt1buyer" || gotParams["seller"] != "vlt1seller" || gotParams["amount"] != "100" {
		t.Fatalf("unexpected params: %#v", gotParams)
	}
	if gotParams["releaseOffset"] != int64(3600) {
		t.Fatalf("unexpected release offset: %#v", gotParams["releaseOffset"])
	}
	if !strings.Contains(stdout.String(), `"id": 1`) {
		t.Fatalf("result not printed: %s", stdout.String())
	}
}

func TestEscrowCreateRequiresParties(t *testing.T) {
	withStubbedRPC(t, func(method string, params interface{}) (json.RawMessage, *rpcError, error) {
		t.Fatalf("RPC must not be called for invalid flags")
		return nil, nil, nil
	})

	var stdout, stderr bytes.Buffer
	code := runEscrowCommand([]string{"create", "--amount", "10"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "required") {
		t.Fatalf("missing usage hint: %s", stderr.String())
	}
}

func TestEscrowActorCommands(t *testing.T) {
	subcommands := map[string]string{
		"confirm":          "escrow_confirm",
		"confirm-delivery": "escrow_confirmDelivery",
		"claim":            "escrow_claim",
		"dispute-buyer":    "escrow_disputeBuyer",
		"dispute-seller":   "escrow_disputeSeller",
		"refund":           "escrow_refund",
		"resolve-seller":   "escrow_resolveSeller",
	}
	for sub, method := range subcommands {
		t.Run(sub, func(t *testing.T) {
			var gotMethod string
			withStubbedRPC(t, func(m string, params interface{}) (json.RawMessage, *rpcError, error) {
				gotMethod = m
				p := params.(map[string]interface{})
				if p["id"] != uint64(4) || p["caller"] != "vlt1caller" {
					t.Fatalf("unexpected params: %#v", p)
				}
				return json.RawMessage(`{"status":8}`), nil, nil
			})

			var stdout, stderr bytes.Buffer
			code := runEscrowCommand([]string{sub, "--id", "4", "--caller", "vlt1caller"}, &stdout, &stderr)
			if code != 0 {
				t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
			}
			if gotMethod != method {
				t.Fatalf("expected method %q, got %q", method, gotMethod)
			}
		})
	}
}

func TestEscrowDepositCommand(t *testing.T) {
	withStubbedRPC(t, func(method string, params interface{}) (json.RawMessage, *rpcError, error) {
		if method != "escrow_deposit" {
			t.Fatalf("unexpected method %q", method)
		}
		p := params.(map[string]interface{})
		if p["id"] != uint64(2) || p["from"] != "vlt1buyer" || p["value"] != "50" {
			t.Fatalf("unexpected params: %#v", p)
		}
		return json.RawMessage(`{"status":4}`), nil, nil
	})

	var stdout, stderr bytes.Buffer
	code := runEscrowCommand([]string{"deposit", "--id", "2", "--from", "vlt1buyer", "--value", "50"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
}

func TestEscrowCommandSurfacesRPCError(t *testing.T) {
	withStubbedRPC(t, func(method string, params interface{}) (json.RawMessage, *rpcError, error) {
		return nil, &rpcError{Code: -32024, Message: "conflict", Data: json.RawMessage(`"wrong status"`)}, nil
	})

	var stdout, stderr bytes.Buffer
	code := runEscrowCommand([]string{"confirm", "--id", "1", "--caller", "vlt1caller"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "-32024") || !strings.Contains(stderr.String(), "conflict") {
		t.Fatalf("RPC error not reported: %s", stderr.String())
	}
}

func TestEscrowCommandSurfacesTransportError(t *testing.T) {
	withStubbedRPC(t, func(method string, params interface{}) (json.RawMessage, *rpcError, error) {
		return nil, nil, fmt.Errorf("connection refused")
	})

	var stdout, stderr bytes.Buffer
	code := runEscrowCommand([]string{"last-id"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "connection refused") {
		t.Fatalf("transport error not reported: %s", stderr.String())
	}
}

func TestEscrowUnknownSubcommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runEscrowCommand([]string{"nope"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Unknown escrow subcommand") {
		t.Fatalf("missing error message: %s", stderr.String())
	}
}
