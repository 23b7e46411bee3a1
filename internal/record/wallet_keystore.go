package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WalletKeystore is the onboarding collaborator's output: a business's
// EVM wallet plus its sealed private key (spec §6). Railclaw never opens
// these — they exist so the external onboarding flow has somewhere
// durable to write, using the same atomic-write discipline as payment
// records.
type WalletKeystore struct {
	BusinessID           string    `json:"business_id"`
	Email                string    `json:"email"`
	Address              string    `json:"address"`
	EncryptedPrivateKey  string    `json:"encrypted_private_key"`
	DerivationPath       string    `json:"derivation_path"`
	CreatedAt            time.Time `json:"created_at"`
}

func (s *Store) walletPath(businessID string) string {
	return filepath.Join(s.dataDir, "wallets", businessID+".enc.json")
}

func (s *Store) SaveWalletKeystore(w WalletKeystore) error {
	path := s.walletPath(w.BusinessID)
	if err := writeAtomic(path, w); err != nil {
		return err
	}
	// spec §6: file mode 0600 — writeAtomic's temp file defaults to 0644,
	// so tighten permissions on the final path explicitly.
	return os.Chmod(path, 0o600)
}

func (s *Store) LoadWalletKeystore(businessID string) (*WalletKeystore, error) {
	data, err := os.ReadFile(s.walletPath(businessID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Kind: KindNotFound, PaymentID: businessID}
		}
		return nil, fmt.Errorf("record: load wallet keystore: %w", err)
	}
	var w WalletKeystore
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &w, nil
}
