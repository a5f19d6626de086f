// Package fetch retrieves document bytes from the configured storage
// backend. Every backend enforces the size ceiling before transfer and
// maps storage faults onto the shared error taxonomy.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/gestordocs/ingestor/internal/config"
	"github.com/gestordocs/ingestor/internal/core"
)

// SFTPFetcher downloads documents from a remote SFTP tree. Each Fetch
// dials a fresh session so a stale connection can never poison later
// runs; the retry policy above absorbs the reconnect cost.
type SFTPFetcher struct {
	addr       string
	sshConfig  *ssh.ClientConfig
	remoteBase string
	maxBytes   int64
	logger     *slog.Logger
}

func NewSFTPFetcher(cfg *config.Config) (*SFTPFetcher, error) {
	if cfg.SFTPAddr == "" || cfg.SFTPUser == "" {
		return nil, fmt.Errorf("sftp address and user are required")
	}
	sshCfg := &ssh.ClientConfig{
		User: cfg.SFTPUser,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.SFTPPass),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.SFTPTimeout,
	}
	return &SFTPFetcher{
		addr:       cfg.SFTPAddr,
		sshConfig:  sshCfg,
		remoteBase: cfg.SFTPRemoteBase,
		maxBytes:   cfg.FetchMaxBytes,
		logger:     slog.Default().With("component", "fetch.sftp"),
	}, nil
}

// Fetch downloads the document into memory. The remote size is checked
// against the ceiling before any transfer and verified again after the
// read; a short read means the file changed mid-transfer and is
// reported as transient so the run is retried.
func (f *SFTPFetcher) Fetch(ctx context.Context, documentID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sshConn, err := ssh.Dial("tcp", f.addr, f.sshConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: sftp dial %s: %v", core.ErrTransient, f.addr, err)
	}
	defer sshConn.Close()

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		return nil, fmt.Errorf("%w: sftp session: %v", core.ErrTransient, err)
	}
	defer client.Close()

	remotePath := path.Join(f.remoteBase, documentID)
	info, err := client.Stat(remotePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", core.ErrNotFound, remotePath)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", core.ErrTransient, remotePath, err)
	}
	if info.Size() > f.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", core.ErrSizeLimit, remotePath, info.Size(), f.maxBytes)
	}

	file, err := client.Open(remotePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", core.ErrNotFound, remotePath)
		}
		return nil, fmt.Errorf("%w: open %s: %v", core.ErrTransient, remotePath, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", core.ErrTransient, remotePath, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s grew past the %d byte limit during transfer", core.ErrSizeLimit, remotePath, f.maxBytes)
	}
	if int64(len(data)) != info.Size() {
		return nil, fmt.Errorf("%w: %s short read, got %d of %d bytes", core.ErrTransient, remotePath, len(data), info.Size())
	}

	f.logger.Debug("document fetched", "path", remotePath, "bytes", len(data))
	return data, nil
}
