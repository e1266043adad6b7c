// Command kycctl is a CLI client for the kyc.v1.Verification service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/and161185/kyc-verifier/internal/api"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "kycctl")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kycctl")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tokenFile{AccessToken: tok, ExpiresAt: exp}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), b, 0o600)
}

func loadToken() (string, error) {
	if v := os.Getenv("KYC_TOKEN"); v != "" {
		return v, nil
	}
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", errors.New("no token (run `kycctl token` first)")
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("token expired (run `kycctl token` again)")
	}
	return tf.AccessToken, nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func transportCreds(plaintext bool, caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	switch {
	case plaintext:
		return insecure.NewCredentials(), nil
	case skipVerify:
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	case caPath == "":
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(addr string, plaintext bool, caPath string, skipVerify bool, bearer string) (*grpc.ClientConn, *api.VerificationClient, error) {
	creds, err := transportCreds(plaintext, caPath, skipVerify)
	if err != nil {
		return nil, nil, err
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.MaxCallSendMsgSize(16 << 20)),
	}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !plaintext}))
	}
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, api.NewVerificationClient(cc), nil
}

func fail(err error) {
	if st, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "error: %s: %s\n", st.Code(), st.Message())
	} else {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `kycctl CLI
Usage:
  kycctl -addr HOST:PORT [-plaintext | -cacert file | -insecure] <cmd> [args]

Commands:
  version
  token          -owner <uuid> [-jwt-key key] [-ttl 1h]   (saves token)
  upload         -type pan_kyc|aadhaar_pan -file <path.xlsx|.csv>
  verify         -type <type> -pan <id> [-aadhaar <id>] [-name n] [-father n] -dob <date>
  records        [-page n] [-limit n]
  batches        [-page n] [-limit n]
  batch-records  -batch <uuid> [-status all|pending|processing|verified|failed] [-page n] [-limit n]
  batch-stats    -batch <uuid>
  retry          -batch <uuid>
  rm-batch       -batch <uuid>
  stats          [-refresh]
  usage
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for RPC calls.
func main() {
	addr := flag.String("addr", envOr("KYC_ADDR", "localhost:8443"), "server addr")
	plaintext := flag.Bool("plaintext", false, "connect without TLS (dev)")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	skipVerify := flag.Bool("insecure", false, "skip cert verify (dev)")
	timeout := flag.Duration("timeout", 2*time.Minute, "RPC timeout")
	asJSON := flag.Bool("json", false, "print raw JSON responses")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "version":
		fmt.Printf("kycctl %s (%s)\n", version, buildDate)
		return
	case "token":
		if err := issueToken(args, os.Stdout); err != nil {
			fail(err)
		}
		return
	}

	tok, err := loadToken()
	if err != nil {
		fail(err)
	}
	cc, cl, err := dial(*addr, *plaintext, *caPath, *skipVerify, tok)
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out := &printer{w: os.Stdout, json: *asJSON}
	if err := run(ctx, cl, cmd, args, out); err != nil {
		if errors.Is(err, errUnknownCommand) {
			usage()
		}
		fail(err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
