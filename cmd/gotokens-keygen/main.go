// Command gotokens-keygen generates an RSA key pair in the PEM layout the
// engine's file provider expects.
//
//	gotokens-keygen -bits 2048 -private keys/jwt_private.pem -public keys/jwt_public.pem
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MrEthical07/goTokens/keystore"
)

func main() {
	var (
		bits        = flag.Int("bits", 2048, "RSA key size in bits (minimum 2048)")
		privatePath = flag.String("private", "jwt_private.pem", "output path for the private key PEM")
		publicPath  = flag.String("public", "jwt_public.pem", "output path for the public key PEM")
		force       = flag.Bool("force", false, "overwrite existing key files")
	)
	flag.Parse()

	if !*force {
		for _, path := range []string{*privatePath, *publicPath} {
			if _, err := os.Stat(path); err == nil {
				fmt.Fprintf(os.Stderr, "%s already exists; pass -force to overwrite\n", path)
				os.Exit(2)
			}
		}
	}

	material, err := keystore.GenerateKeyPair(*bits)
	if err != nil {
		fmt.Fprintf(os.Stderr, "key generation failed: %v\n", err)
		os.Exit(1)
	}

	for _, target := range []struct {
		path string
		data []byte
		mode os.FileMode
	}{
		{*privatePath, material.PrivatePEM, 0o600},
		{*publicPath, material.PublicPEM, 0o644},
	} {
		if dir := filepath.Dir(target.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				fmt.Fprintf(os.Stderr, "failed to create %s: %v\n", dir, err)
				os.Exit(1)
			}
		}
		if err := os.WriteFile(target.path, target.data, target.mode); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", target.path, err)
			os.Exit(1)
		}
	}

	kid, err := fingerprintOf(material)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generated keys but fingerprinting failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s and %s (kid %s, %d bits)\n", *privatePath, *publicPath, kid, *bits)
}

func fingerprintOf(material keystore.Material) (string, error) {
	private, err := keystore.ParsePrivateKey(material.PrivatePEM)
	if err != nil {
		return "", err
	}
	return keystore.Fingerprint(&private.PublicKey)
}
