package config

import "os"

// InitializeConfig wires the ambient collaborators the core depends on
// through interfaces: the ledger database, the risk-limit cache, and the
// event bus. Any failure here means the engine cannot accept intents.
func InitializeConfig() error {
	NewLoggerService()

	if os.Getenv("LEDGER_DRIVER") == "postgres" {
		if err := ConnectDatabase(); err != nil {
			return err
		}
	}

	if err := NewCacheService(); err != nil {
		return err
	}

	if err := ConnectNats(); err != nil {
		return err
	}

	return nil
}
