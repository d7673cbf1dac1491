package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var escrowRPCCall = callRPC

func runEscrowCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}

	switch args[0] {
	case "create":
		return runEscrowCreate(args[1:], stdout, stderr)
	case "get":
		return runEscrowGet(args[1:], stdout, stderr)
	case "last-id":
		return runEscrowSimple("escrow_getLastId", args[1:], stdout, stderr)
	case "balance":
		return runEscrowSimple("escrow_vaultBalance", args[1:], stdout, stderr)
	case "confirm":
		return runEscrowActor("escrow_confirm", args[1:], stdout, stderr)
	case "deposit":
		return runEscrowDeposit(args[1:], stdout, stderr)
	case "confirm-delivery":
		return runEscrowActor("escrow_confirmDelivery", args[1:], stdout, stderr)
	case "claim":
		return runEscrowActor("escrow_claim", args[1:], stdout, stderr)
	case "dispute-buyer":
		return runEscrowActor("escrow_disputeBuyer", args[1:], stdout, stderr)
	case "dispute-seller":
		return runEscrowActor("escrow_disputeSeller", args[1:], stdout, stderr)
	case "refund":
		return runEscrowActor("escrow_refund", args[1:], stdout, stderr)
	case "resolve-seller":
		return runEscrowActor("escrow_resolveSeller", args[1:], stdout, stderr)
	case "help":
		fmt.Fprintln(stdout, escrowUsage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown escrow subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}
}

func escrowUsage() string {
	return `Usage: vault-cli escrow <subcommand> [flags]
Subcommands:
  create            --kind <0|1> --buyer <addr> --seller <addr> --amount <n> [--release-offset <secs>]
  get               --id <n>
  last-id
  balance
  confirm           --id <n> --caller <addr>
  deposit           --id <n> --from <addr> --value <n>
  confirm-delivery  --id <n> --caller <addr>
  claim             --id <n> --caller <addr>
  dispute-buyer     --id <n> --caller <addr>
  dispute-seller    --id <n> --caller <addr>
  refund            --id <n> --caller <addr>
  resolve-seller    --id <n> --caller <addr>`
}

func newEscrowFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printEscrowResult(stdout io.Writer, result json.RawMessage) {
	var pretty map[string]interface{}
	if err := json.Unmarshal(result, &pretty); err != nil {
		fmt.Fprintln(stdout, string(result))
		return
	}
	encoded, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Fprintln(stdout, string(result))
		return
	}
	fmt.Fprintln(stdout, string(encoded))
}

func dispatchEscrowRPC(method string, params interface{}, stdout, stderr io.Writer) int {
	result, rpcErr, err := escrowRPCCall(method, params)
	if err != nil {
		fmt.Fprintf(stderr, "RPC call failed: %v\n", err)
		return 1
	}
	if rpcErr != nil {
		fmt.Fprintf(stderr, "RPC error %d (%s): %s\n", rpcErr.Code, rpcErr.Message, string(rpcErr.Data))
		return 1
	}
	printEscrowResult(stdout, result)
	return 0
}

func runEscrowCreate(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("escrow create", stderr)
	var (
		kind          uint
		buyer         string
		seller        string
		amount        string
		releaseOffset int64
	)
	fs.UintVar(&kind, "kind", 0, "escrow kind: 0 agreement based, 1 time based")
	fs.StringVar(&buyer, "buyer", "", "buyer bech32 address")
	fs.StringVar(&seller, "seller", "", "seller bech32 address")
	fs.StringVar(&amount, "amount", "", "escrow amount in base units")
	fs.Int64Var(&releaseOffset, "release-offset", 0, "seconds until release for time based escrows")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if buyer == "" || seller == "" || amount == "" {
		fmt.Fprintln(stderr, "Error: --buyer, --seller and --amount are required")
		return 1
	}
	params := map[string]interface{}{
		"kind":          kind,
		"buyer":         buyer,
		"seller":        seller,
		"amount":        amount,
		"releaseOffset": releaseOffset,
	}
	return dispatchEscrowRPC("escrow_create", params, stdout, stderr)
}

func runEscrowGet(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("escrow get", stderr)
	var id uint64
	fs.Uint64Var(&id, "id", 0, "escrow id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == 0 {
		fmt.Fprintln(stderr, "Error: --id is required")
		return 1
	}
	return dispatchEscrowRPC("escrow_get", map[string]interface{}{"id": id}, stdout, stderr)
}

func runEscrowSimple(method string, args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet(method, stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return dispatchEscrowRPC(method, map[string]interface{}{}, stdout, stderr)
}

func runEscrowActor(method string, args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet(method, stderr)
	var (
		id     uint64
		caller string
	)
	fs.Uint64Var(&id, "id", 0, "escrow id")
	fs.StringVar(&caller, "caller", "", "caller bech32 address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == 0 || caller == "" {
		fmt.Fprintln(stderr, "Error: --id and --caller are required")
		return 1
	}
	params := map[string]interface{}{"id": id, "caller": caller}
	return dispatchEscrowRPC(method, params, stdout, stderr)
}

func runEscrowDeposit(args []string, stdout, stderr io.Writer) int {
	fs := newEscrowFlagSet("escrow deposit", stderr)
	var (
		id    uint64
		from  string
		value string
	)
	fs.Uint64Var(&id, "id", 0, "escrow id")
	fs.StringVar(&from, "from", "", "buyer bech32 address")
	fs.StringVar(&value, "value", "", "deposit value in base units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if id == 0 || from == "" || value == "" {
		fmt.Fprintln(stderr, "Error: --id, --from and --value are required")
		return 1
	}
	params := map[string]interface{}{"id": id, "from": from, "value": value}
	return dispatchEscrowRPC("escrow_deposit", params, stdout, stderr)
}
