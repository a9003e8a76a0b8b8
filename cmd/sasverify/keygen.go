package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sas-verify/core/crypto/keys"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a long-term Ed25519 identity key pair",
	Long: `Generates a new Ed25519 key pair suitable for use as a device's
long-term identity key (the key whose fingerprint is attested in MAC
verification). The seed is printed once; store it under the
environment variable named by your config's identity.ed25519_seed_env.`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	kp, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}

	priv, ok := kp.PrivateKey().(ed25519.PrivateKey)
	if !ok {
		return fmt.Errorf("unexpected private key type")
	}
	seed := priv.Seed()

	pub, ok := kp.PublicKey().(ed25519.PublicKey)
	if !ok {
		return fmt.Errorf("unexpected public key type")
	}
	fmt.Printf("Fingerprint: %s\n", keys.Ed25519Fingerprint(pub))
	fmt.Printf("Key id: %s\n", kp.ID())
	fmt.Printf("Seed (base64, keep secret): %s\n", base64.StdEncoding.EncodeToString(seed))
	return nil
}
