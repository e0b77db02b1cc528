package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/cobra"

	"chat-escrow/internal/config"
	"chat-escrow/internal/crypto"
)

const escrowKeyBits = 3072

// keyIDPattern keeps ids usable as plain file names inside --out.
var keyIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

func keygenCmd() *cobra.Command {
	var (
		keyID  string
		outDir string
		seal   bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an escrow keypair",
		Long: "Writes <id>.pem (or <id>.sealed when --seal is set) and <id>.pub.pem.\n" +
			"The public key is distributed to clients; the private key is added to escrow.keys.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyID == "" {
				return fmt.Errorf("--id is required")
			}
			if !keyIDPattern.MatchString(keyID) {
				return fmt.Errorf("invalid --id %q: use letters, digits, '.', '_' or '-'", keyID)
			}

			passphrase := ""
			if seal {
				passphrase = sealPassphrase()
				if passphrase == "" {
					return fmt.Errorf("--seal needs ESCROW_PASSPHRASE or escrow.passphrase in the config")
				}
			}

			priv, err := crypto.GenerateRSAKey(escrowKeyBits)
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			privPEM, err := crypto.MarshalPrivateKeyPEM(priv)
			if err != nil {
				return err
			}
			pubPEM, err := crypto.MarshalPublicKeyPEM(&priv.PublicKey)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0o700); err != nil {
				return fmt.Errorf("failed to create output dir: %w", err)
			}

			privPath := filepath.Join(outDir, keyID+".pem")
			privData := privPEM
			if seal {
				sealed, err := crypto.SealPrivateKey(privPEM, passphrase)
				if err != nil {
					return err
				}
				privPath = filepath.Join(outDir, keyID+".sealed")
				privData = []byte(sealed + "\n")
			}
			pubPath := filepath.Join(outDir, keyID+".pub.pem")

			if err := writeNew(privPath, privData, 0o600); err != nil {
				return err
			}
			if err := writeNew(pubPath, pubPEM, 0o644); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "private key: %s\n", privPath)
			fmt.Fprintf(out, "public key:  %s\n", pubPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&keyID, "id", "", "key id stored as admin_key_id in message metadata")
	cmd.Flags().StringVar(&outDir, "out", "keys", "output directory")
	cmd.Flags().BoolVar(&seal, "seal", false, "encrypt the private key with the escrow passphrase")
	return cmd
}

func sealPassphrase() string {
	if p := os.Getenv("ESCROW_PASSPHRASE"); p != "" {
		return p
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return ""
	}
	return cfg.Escrow.Passphrase
}

// writeNew refuses to overwrite an existing key file.
func writeNew(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
