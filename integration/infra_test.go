//go:build integration

package integration_test

import (
	"context"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/metadata-collector/internal/config"
	"github.com/openkcm/metadata-collector/internal/dbtest/postgrestest"
	"github.com/openkcm/metadata-collector/internal/dbtest/valkeytest"
)

type closeFunc func(ctx context.Context)

type infraStat struct {
	PostgresPort   nat.Port
	PostgresPool   *pgxpool.Pool
	ValKeyPort     nat.Port
	ConfigFilePath string
	SocketPath     string
	Procdir        string
	Cfg            config.Config

	closeFuncs []closeFunc
}

func embedded(value string) commoncfg.SourceRef {
	return commoncfg.SourceRef{Source: "embedded", Value: value}
}

func initInfra(t *testing.T, exeName string) (istat infraStat) {
	t.Helper()

	// The config is read from $PWD/config.yaml, so every process runs in
	// its own subdirectory.
	wd, err := os.Getwd()
	require.NoError(t, err, "failed to get wd")
	istat.Procdir = filepath.Join(wd, exeName+"-test")
	istat.ConfigFilePath = filepath.Join(istat.Procdir, "config.yaml")

	err = os.MkdirAll(istat.Procdir, fs.ModePerm)
	require.NoError(t, err, "failed to create a dir for the process")

	err = os.WriteFile(istat.ConfigFilePath, []byte(validConfig), fs.ModePerm)
	require.NoError(t, err, "failed to write config file")

	err = commoncfg.LoadConfig(&istat.Cfg, nil, istat.Procdir)
	require.NoError(t, err, "failed to load config")

	// A unix socket saves looking up a free port.
	istat.SocketPath = filepath.Join(istat.Procdir, exeName+".sock")
	istat.Cfg.HTTP.Address = "unix://" + istat.SocketPath
	istat.Cfg.OAuth.ClientID = embedded("client-id")
	istat.Cfg.OAuth.ClientSecret = embedded("client-secret")

	return istat
}

// PreparePostgres starts a migrated database and points the datastore at it.
func (istat *infraStat) PreparePostgres(t *testing.T) {
	t.Helper()

	pgPool, pgPort, pgTerminate := postgrestest.Start(t.Context())

	istat.PostgresPort = pgPort
	istat.PostgresPool = pgPool
	istat.closeFuncs = append(istat.closeFuncs, pgTerminate)

	istat.Cfg.Datastore.Type = config.DatastorePostgres
	istat.Cfg.Database.Name = postgrestest.DBName
	istat.Cfg.Database.User = embedded(postgrestest.DBUser)
	istat.Cfg.Database.Password = embedded(postgrestest.DBPassword)
	istat.Cfg.Database.Host = embedded(postgrestest.DBHost)
	istat.Cfg.Database.Port = pgPort.Port()
	istat.Cfg.Database.SSLMode = postgrestest.DBSSLMode
}

// PrepareValKey starts a ValKey instance and keeps sessions in it.
func (istat *infraStat) PrepareValKey(t *testing.T) {
	t.Helper()

	_, vkPort, vkTerminate := valkeytest.Start(t.Context())

	istat.ValKeyPort = vkPort
	istat.closeFuncs = append(istat.closeFuncs, vkTerminate)

	istat.Cfg.Session.Backend = config.SessionBackendValKey
	istat.Cfg.ValKey.Host = embedded(net.JoinHostPort("localhost", vkPort.Port()))
	istat.Cfg.ValKey.User = embedded("")
	istat.Cfg.ValKey.Password = embedded("")
}

// PrepareConfig writes a config file for running the test into the ConfigFilePath.
func (istat *infraStat) PrepareConfig(t *testing.T) {
	t.Helper()

	cfgMap := make(map[string]any)
	err := mapstructure.Decode(istat.Cfg, &cfgMap)
	require.NoError(t, err, "failed to decode config")

	out, err := yaml.Marshal(cfgMap)
	require.NoError(t, err, "failed to encode config")

	err = os.WriteFile(istat.ConfigFilePath, out, fs.ModePerm)
	require.NoError(t, err, "failed to write config")
}

// StartCommand runs the binary with args inside Procdir and stops it with
// SIGTERM at the end of the test so that coverprofiles are written.
func (istat *infraStat) StartCommand(t *testing.T, logName string, args ...string) {
	t.Helper()

	currdir, err := os.Getwd()
	require.NoError(t, err, "failed to get wd")

	cmdOut, err := os.Create(filepath.Join(currdir, logName+".log"))
	require.NoError(t, err, "failed to create a log file")
	t.Cleanup(func() { cmdOut.Close() })

	cmd := exec.CommandContext(t.Context(), filepath.Join(currdir, binary), args...)
	cmd.Dir = istat.Procdir
	cmd.Stdout = cmdOut
	cmd.Stderr = cmdOut

	t.Logf("starting an app process. Logs will be saved into %s", cmdOut.Name())
	require.NoError(t, cmd.Start(), "could not start command")

	t.Cleanup(func() {
		_ = syscall.Kill(cmd.Process.Pid, syscall.SIGTERM)
		_ = cmd.Wait()
	})
}

func (istat *infraStat) Close(ctx context.Context) {
	os.Remove(istat.ConfigFilePath)
	os.RemoveAll(istat.Procdir)

	for _, close := range istat.closeFuncs {
		close(ctx)
	}
}
