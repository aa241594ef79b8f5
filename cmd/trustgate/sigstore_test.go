package main_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/meigma/trustgate/internal/testutil/virtualsigstore"
)

// sigstoreTestEnv is shared by every script so all fixtures chain to the
// same trusted root.
var sigstoreTestEnv *virtualsigstore.VirtualSigstore

func initSigstoreEnv() error {
	var err error
	sigstoreTestEnv, err = virtualsigstore.New()
	return err
}

// cmdSigstoreFixture signs an existing model and writes its bundle and the
// trusted root next to it.
// Usage: sigstore-fixture <model> <identity> <issuer>
func cmdSigstoreFixture(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("sigstore-fixture does not support negation")
	}
	if len(args) != 3 {
		ts.Fatalf("usage: sigstore-fixture <model> <identity> <issuer>")
	}
	if sigstoreTestEnv == nil {
		ts.Fatalf("sigstore environment not initialized")
	}

	modelPath := ts.MkAbs(args[0])
	data, err := os.ReadFile(modelPath)
	if err != nil {
		ts.Fatalf("read model: %v", err)
	}

	if _, err := sigstoreTestEnv.WriteFixture(filepath.Dir(modelPath), filepath.Base(modelPath), args[1], args[2], data); err != nil {
		ts.Fatalf("write fixture: %v", err)
	}
}

// cmdGenKey generates an ECDSA P-256 key pair as PKCS8 and PKIX PEM files.
// Usage: gen-key <private_key_file> <public_key_file>
func cmdGenKey(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("gen-key does not support negation")
	}
	if len(args) != 2 {
		ts.Fatalf("usage: gen-key <private_key_file> <public_key_file>")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		ts.Fatalf("generate key: %v", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		ts.Fatalf("marshal private key: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		ts.Fatalf("marshal public key: %v", err)
	}

	writePEM(ts, args[0], "PRIVATE KEY", privDER)
	writePEM(ts, args[1], "PUBLIC KEY", pubDER)
}

func writePEM(ts *testscript.TestScript, name, blockType string, der []byte) {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(ts.MkAbs(name), data, 0o600); err != nil {
		ts.Fatalf("write %s: %v", name, err)
	}
}
