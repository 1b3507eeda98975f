package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfigDir(t *testing.T, relayerJSON, evmJSON string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relayer.json"), []byte(relayerJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "evm.json"), []byte(evmJSON), 0o644))
	return dir
}

const validRelayerJSON = `{
	"database": {
		"mongo_uri": "mongodb://localhost:27017",
		"mongo_database": "relayer",
		"postgres_url": "postgres://localhost:5432/platform"
	},
	"rabbitmq": {"host": "localhost", "port": 5672, "user": "guest", "password": "guest"}
}`

const validEvmJSON = `[
	{"chain_id": 31337, "name": "localnet", "rpc_url": "http://localhost:8545", "private_key": "aa"}
]`

func TestLoadAppliesDefaults(t *testing.T) {
	dir := writeConfigDir(t, validRelayerJSON, validEvmJSON)

	cfg, err := Load(dir)
	require.NoError(t, err)

	require.Len(t, cfg.EvmNetworks, 1)
	network := cfg.EvmNetworks[0]
	require.Equal(t, int64(31337), network.ChainID)
	require.Equal(t, int64(5), network.Confirmations)
	require.Equal(t, int64(1000), network.ScanBatchSize)
	require.Equal(t, uint64(3000000), network.GasLimit)

	require.Equal(t, 15*time.Second, cfg.Jobs.TransactionInterval)
	require.Equal(t, 15*time.Second, cfg.Jobs.ScanInterval)
	require.Equal(t, 30*time.Second, cfg.Jobs.LockTTL)
	require.Equal(t, 3000, cfg.HealthPort)
}

func TestLoadConvertsMillisecondIntervals(t *testing.T) {
	relayerJSON := `{
		"database": {
			"mongo_uri": "mongodb://localhost:27017",
			"mongo_database": "relayer",
			"postgres_url": "postgres://localhost:5432/platform"
		},
		"rabbitmq": {"host": "localhost", "port": 5672},
		"jobs": {"transaction_interval": 5000, "scan_interval": 10000, "lock_ttl": 20000}
	}`
	dir := writeConfigDir(t, relayerJSON, validEvmJSON)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.Jobs.TransactionInterval)
	require.Equal(t, 10*time.Second, cfg.Jobs.ScanInterval)
	require.Equal(t, 20*time.Second, cfg.Jobs.LockTTL)
}

func TestReadJsonArrayConfigBindsSnakeCaseKeys(t *testing.T) {
	dir := t.TempDir()
	evmJSON := `[{
		"chain_id": 31337,
		"name": "localnet",
		"rpc_url": "http://localhost:8545",
		"encrypted_key": "enc",
		"key_nonce": "nonce",
		"confirmations": 3,
		"scan_batch_size": 500,
		"gas_limit": 1500000
	}]`
	path := filepath.Join(dir, "evm.json")
	require.NoError(t, os.WriteFile(path, []byte(evmJSON), 0o644))

	networks, err := ReadJsonArrayConfig[EvmNetworkConfig](path)
	require.NoError(t, err)
	require.Len(t, networks, 1)

	network := networks[0]
	require.Equal(t, int64(31337), network.ChainID)
	require.Equal(t, "localnet", network.Name)
	require.Equal(t, "http://localhost:8545", network.RPCUrl)
	require.Equal(t, "enc", network.EncryptedKey)
	require.Equal(t, "nonce", network.KeyNonce)
	require.Equal(t, int64(3), network.Confirmations)
	require.Equal(t, int64(500), network.ScanBatchSize)
	require.Equal(t, uint64(1500000), network.GasLimit)
}

func TestLoadRejectsNetworkWithoutRPCUrl(t *testing.T) {
	evmJSON := `[{"chain_id": 31337, "name": "localnet", "private_key": "aa"}]`
	dir := writeConfigDir(t, validRelayerJSON, evmJSON)

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	relayerJSON := `{
		"database": {"mongo_uri": "mongodb://localhost:27017"},
		"rabbitmq": {"host": "localhost", "port": 5672}
	}`
	dir := writeConfigDir(t, relayerJSON, validEvmJSON)

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	require.NoError(t, LoadEnv())
	t.Setenv("DATABASE_URL", "postgres://override:5432/platform")
	t.Setenv("MONGODB_DATABASE", "relayer_override")

	dir := writeConfigDir(t, validRelayerJSON, validEvmJSON)
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "postgres://override:5432/platform", cfg.Database.PostgresURL)
	require.Equal(t, "relayer_override", cfg.Database.MongoDatabase)
}
