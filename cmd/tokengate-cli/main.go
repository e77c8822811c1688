// tokengate-cli is a command-line client for interacting with a
// tokengated daemon and the local identity keystore.
package main

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/monte1s/tokengate/config"
	"github.com/monte1s/tokengate/internal/keystore"
	"github.com/monte1s/tokengate/internal/rpc"
	"github.com/monte1s/tokengate/internal/rpcclient"
	"github.com/monte1s/tokengate/pkg/crypto"
	"github.com/monte1s/tokengate/pkg/types"
	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	rpcURL := "http://127.0.0.1:8670"
	dataDir := config.DefaultDataDir()

	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg := config.Default()
	cfg.DataDir = dataDir
	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "identity":
		cmdIdentity(cmdArgs, cfg.KeystoreDir())
	case "register":
		cmdRegister(client, cmdArgs, cfg.KeystoreDir())
	case "status":
		cmdStatus(client)
	case "balance":
		cmdBalance(client, cmdArgs)
	case "purchase":
		cmdPurchase(client, cmdArgs, cfg.KeystoreDir())
	case "sign-kyc":
		cmdSignKyc(cmdArgs, cfg.KeystoreDir())
	case "events":
		cmdEvents(client, cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`tokengate-cli - client for the tokengated daemon

Usage:
  tokengate-cli [--rpc URL] [--datadir DIR] <command> [args]

Identity commands (local keystore):
  identity new <name>            Create a new identity
  identity import <name>         Import an identity from a mnemonic
  identity list                  List identities
  identity address <name>        Show an identity's address

Daemon commands:
  register <name> <key-hex>      Register an identity with its 32-byte key
  status                         Show supply and sale state
  balance <address>              Show a token balance
  purchase <name> <key-hex> <kyc-sig-hex> [--stable N | --native N]
                                 Buy tokens in the sale as an identity
  sign-kyc <name> <key-hex>      Sign a KYC approval for a registered key
  events [from]                  Show the event feed
`)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// readPassword prompts for a password without echoing.
func readPassword(prompt string) []byte {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fatalf("read password: %v", err)
	}
	return password
}

func readLine(prompt string) string {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		fatalf("read input: %v", scanner.Err())
	}
	return strings.TrimSpace(scanner.Text())
}

// ── Identity commands ───────────────────────────────────────────────────

func cmdIdentity(args []string, ksDir string) {
	if len(args) == 0 {
		fatalf("identity requires a subcommand: new, import, list, address")
	}

	store, err := keystore.NewStore(ksDir)
	if err != nil {
		fatalf("open keystore: %v", err)
	}

	switch args[0] {
	case "new":
		if len(args) != 2 {
			fatalf("usage: identity new <name>")
		}
		mnemonic, err := keystore.GenerateMnemonic()
		if err != nil {
			fatalf("generate mnemonic: %v", err)
		}
		createIdentity(store, args[1], mnemonic)
		fmt.Println("\nRecovery mnemonic (write it down, it is shown once):")
		fmt.Printf("  %s\n", mnemonic)

	case "import":
		if len(args) != 2 {
			fatalf("usage: identity import <name>")
		}
		mnemonic := readLine("Mnemonic: ")
		if !keystore.ValidateMnemonic(mnemonic) {
			fatalf("invalid mnemonic")
		}
		createIdentity(store, args[1], mnemonic)

	case "list":
		names, err := store.List()
		if err != nil {
			fatalf("list identities: %v", err)
		}
		for _, name := range names {
			addr, err := store.Address(name)
			if err != nil {
				fmt.Printf("%s  (unreadable: %v)\n", name, err)
				continue
			}
			fmt.Printf("%s  %s\n", name, addr)
		}

	case "address":
		if len(args) != 2 {
			fatalf("usage: identity address <name>")
		}
		addr, err := store.Address(args[1])
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Println(addr)

	default:
		fatalf("unknown identity subcommand: %s", args[0])
	}
}

func createIdentity(store *keystore.Store, name, mnemonic string) {
	seed, err := keystore.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatalf("derive seed: %v", err)
	}

	password := readPassword("Password: ")
	confirm := readPassword("Confirm password: ")
	if string(password) != string(confirm) {
		fatalf("passwords do not match")
	}

	addr, err := store.Create(name, seed, password, keystore.DefaultKDFParams())
	if err != nil {
		fatalf("create identity: %v", err)
	}
	fmt.Printf("Identity %q created: %s\n", name, addr)
}

// unlock prompts for the password and returns the identity's signing key.
func unlock(ksDir, name string) *crypto.PrivateKey {
	store, err := keystore.NewStore(ksDir)
	if err != nil {
		fatalf("open keystore: %v", err)
	}
	priv, err := store.Unlock(name, readPassword("Password: "))
	if err != nil {
		fatalf("unlock %q: %v", name, err)
	}
	return priv
}

// ── Daemon commands ─────────────────────────────────────────────────────

func cmdRegister(client *rpcclient.Client, args []string, ksDir string) {
	if len(args) != 2 {
		fatalf("usage: register <name> <key-hex>")
	}
	key, err := types.ParseKey(args[1])
	if err != nil {
		fatalf("invalid key: %v", err)
	}

	priv := unlock(ksDir, args[0])
	defer priv.Zero()
	sig := priv.Sign(crypto.KeyDigest(key))

	var res rpc.RegistrationResult
	err = client.Call("registry_register", rpc.RegisterParam{
		Address:   priv.Address().String(),
		Key:       key.String(),
		Signature: hex.EncodeToString(sig),
	}, &res)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Registered %s with key %s\n", res.Address, res.Key)
}

func cmdStatus(client *rpcclient.Client) {
	var supply rpc.SupplyResult
	if err := client.Call("token_getSupply", nil, &supply); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Total supply:   %s\n", supply.TotalSupply)
	fmt.Printf("Restricted:     %v\n", supply.Restricted)

	var sale map[string]interface{}
	if err := client.Call("sale_getInfo", nil, &sale); err != nil {
		fatalf("%v", err)
	}
	out, _ := json.MarshalIndent(sale, "", "  ")
	fmt.Printf("Sale:\n%s\n", out)
}

func cmdBalance(client *rpcclient.Client, args []string) {
	if len(args) != 1 {
		fatalf("usage: balance <address>")
	}
	var res rpc.BalanceResult
	if err := client.Call("token_getBalance", rpc.AddressParam{Address: args[0]}, &res); err != nil {
		fatalf("%v", err)
	}
	fmt.Println(res.Balance)
}

// cmdPurchase signs the request with the buyer's own key: the daemon
// only accepts purchases whose request signer is the claimed buyer.
func cmdPurchase(client *rpcclient.Client, args []string, ksDir string) {
	if len(args) < 3 {
		fatalf("usage: purchase <name> <key-hex> <kyc-sig-hex> [--stable N | --native N]")
	}
	priv := unlock(ksDir, args[0])
	defer priv.Zero()

	params := rpc.PurchaseParam{
		Buyer:     priv.Address().String(),
		Key:       args[1],
		Signature: args[2],
	}
	rest := args[3:]
	for len(rest) > 0 {
		switch {
		case rest[0] == "--stable" && len(rest) > 1:
			params.StableAmount = rest[1]
			rest = rest[2:]
		case rest[0] == "--native" && len(rest) > 1:
			params.NativeValue = rest[1]
			rest = rest[2:]
		default:
			fatalf("unknown purchase flag: %s", rest[0])
		}
	}
	if params.StableAmount == "" && params.NativeValue == "" {
		fatalf("purchase requires --stable or --native")
	}

	var res rpc.PurchaseResult
	if err := client.CallAs(priv, "sale_purchase", params, &res); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Purchased %s tokens for %s\n", res.Tokens, res.Buyer)
}

func cmdSignKyc(args []string, ksDir string) {
	if len(args) != 2 {
		fatalf("usage: sign-kyc <name> <key-hex>")
	}
	key, err := types.ParseKey(args[1])
	if err != nil {
		fatalf("invalid key: %v", err)
	}

	priv := unlock(ksDir, args[0])
	defer priv.Zero()
	sig := priv.Sign(crypto.KeyDigest(key))
	fmt.Println(hex.EncodeToString(sig))
}

func cmdEvents(client *rpcclient.Client, args []string) {
	params := rpc.EventsParam{}
	if len(args) > 0 {
		if _, err := fmt.Sscanf(args[0], "%d", &params.From); err != nil {
			fatalf("invalid from sequence: %v", err)
		}
	}

	var events []map[string]interface{}
	if err := client.Call("events_get", params, &events); err != nil {
		fatalf("%v", err)
	}
	for _, ev := range events {
		out, _ := json.Marshal(ev)
		fmt.Println(string(out))
	}
}
