package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"vaultd/crypto"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL
var rpcAuthToken = os.Getenv("VAULTD_RPC_TOKEN")

func defaultRPCEndpoint() string {
	if url := os.Getenv("RPC_URL"); url != "" {
		return url
	}
	return "http://127.0.0.1:8645"
}

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		printUsage()
		return
	}

	switch args[0] {
	case "generate-key":
		generateKey()
	case "escrow":
		os.Exit(runEscrowCommand(args[1:], os.Stdout, os.Stderr))
	default:
		fmt.Printf("Unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: vault-cli <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  generate-key            Generate a new key and print its address")
	fmt.Println("  escrow <subcommand>     Drive the escrow engine (see 'escrow help')")
}

func generateKey() {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Printf("Error generating key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Address: %s\n", key.PubKey().Address().String())
	fmt.Printf("Private key: %s\n", hex.EncodeToString(key.Bytes()))
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func callRPC(method string, params interface{}) (json.RawMessage, *rpcError, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  []interface{}{params},
		ID:      1,
	})
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if rpcAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+rpcAuthToken)
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, nil, err
	}
	if decoded.Error != nil {
		return nil, decoded.Error, nil
	}
	return decoded.Result, nil, nil
}
