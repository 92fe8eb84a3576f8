// Package remote executes named programs on the GENAPP application server
// over SSH and pulls files back over SFTP.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// TransferStats reports an SFTP pull. A transfer is complete only when
// Transferred == Total exactly.
type TransferStats struct {
	Transferred int64
	Total       int64
}

// Complete reports whether every byte of the remote file arrived.
func (s TransferStats) Complete() bool { return s.Transferred == s.Total }

// Runner is the remote execution channel: run a command capturing both
// streams, or fetch a file with progress reporting.
type Runner interface {
	Run(ctx context.Context, command string) (stdout, stderr string, err error)
	Fetch(ctx context.Context, remotePath, localPath string, progress func(transferred, total int64)) (TransferStats, error)
}

// Client runs commands on one SSH endpoint with password authentication.
// Every call opens and closes its own connection; the batch is low-volume and
// serial, so connection reuse buys nothing.
type Client struct {
	Host     string
	User     string
	Password string

	// Timeout bounds the dial and each remote command. The source system could
	// hang the whole batch on a wedged remote call; this is the bounded
	// replacement.
	Timeout time.Duration
}

func NewClient(host, user, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{Host: host, User: user, Password: password, Timeout: timeout}
}

func (c *Client) dial() (*ssh.Client, error) {
	cfg := &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.Password(c.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.Timeout,
	}
	client, err := ssh.Dial("tcp", net.JoinHostPort(c.Host, "22"), cfg)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.Host, err)
	}
	return client, nil
}

// Run executes command remotely and returns its captured stdout and stderr.
// The remote program's exit status is not inspected: callers apply the
// "silence on stderr = success" convention. A transport failure is returned
// as err.
func (c *Client) Run(ctx context.Context, command string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	client, err := c.dial()
	if err != nil {
		return "", "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("open session on %s: %w", c.Host, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		return "", "", fmt.Errorf("remote command on %s: %w", c.Host, ctx.Err())
	}

	// An *ssh.ExitError means the remote program ran and exited non-zero; the
	// stderr contract decides success, not the exit code.
	if err != nil {
		if _, exited := err.(*ssh.ExitError); !exited {
			return stdout.String(), stderr.String(), fmt.Errorf("remote command on %s: %w", c.Host, err)
		}
	}
	return stdout.String(), stderr.String(), nil
}

// Fetch copies remotePath to localPath over SFTP. progress, when non-nil, is
// invoked as bytes arrive with the running transferred count and the remote
// file size.
func (c *Client) Fetch(ctx context.Context, remotePath, localPath string, progress func(transferred, total int64)) (TransferStats, error) {
	if err := ctx.Err(); err != nil {
		return TransferStats{}, err
	}

	client, err := c.dial()
	if err != nil {
		return TransferStats{}, err
	}
	defer client.Close()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return TransferStats{}, fmt.Errorf("open sftp channel to %s: %w", c.Host, err)
	}
	defer sc.Close()

	src, err := sc.Open(remotePath)
	if err != nil {
		return TransferStats{}, fmt.Errorf("open remote file %s: %w", remotePath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return TransferStats{}, fmt.Errorf("stat remote file %s: %w", remotePath, err)
	}
	total := info.Size()

	dst, err := os.Create(localPath)
	if err != nil {
		return TransferStats{}, fmt.Errorf("create local file %s: %w", localPath, err)
	}
	defer dst.Close()

	counter := &countingWriter{total: total, progress: progress}
	transferred, err := io.Copy(io.MultiWriter(dst, counter), src)
	stats := TransferStats{Transferred: transferred, Total: total}
	if err != nil {
		return stats, fmt.Errorf("copy %s: %w", remotePath, err)
	}
	return stats, nil
}

type countingWriter struct {
	transferred int64
	total       int64
	progress    func(transferred, total int64)
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.transferred += int64(len(p))
	if w.progress != nil {
		w.progress(w.transferred, w.total)
	}
	return len(p), nil
}
