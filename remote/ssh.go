package remote

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"netbench/configuration"
	"netbench/errors"
)

const (
	packageName = "remote"

	dialTimeout      = 10 * time.Second
	defaultDialTries = 30
	defaultDialWait  = 2 * time.Second
)

var (
	ErrKeyRead     = fmt.Errorf("failed to read SSH private key")
	ErrKeyParse    = fmt.Errorf("failed to parse SSH private key")
	ErrSSHDial     = fmt.Errorf("failed to establish SSH connection")
	ErrSessionInit = fmt.Errorf("failed to begin SSH session")
	ErrCMDExec     = fmt.Errorf("failed to execute SSH command")
	ErrNonZeroExit = fmt.Errorf("remote command exited nonzero")
	ErrSFTPInit    = fmt.Errorf("failed to begin SFTP session")
	ErrUpload      = fmt.Errorf("failed to upload file")
)

// Client is the remote-execution capability used against launched hosts.
type Client interface {
	CopyFile(ctx context.Context, host, localPath, remotePath string) error
	Run(ctx context.Context, host, command string) error
	Shell(ctx context.Context, host string, in io.Reader, out, errOut io.Writer) error
}

// SSH runs commands and copies files over SSH with public key auth. Host keys
// are not verified: hosts are freshly launched and their keys are unknown.
type SSH struct {
	user      string
	port      int
	keyPath   string
	output    io.Writer
	dialTries int
	dialWait  time.Duration
	logger    *zap.Logger
}

// NewSSH returns a client configured from cfg. Remote command output is
// streamed to output, which may be nil.
func NewSSH(cfg *configuration.Config, output io.Writer) *SSH {
	if output == nil {
		output = io.Discard
	}
	return &SSH{
		user:      cfg.SSHUser,
		port:      cfg.SSHPort,
		keyPath:   cfg.SSHKeyPath,
		output:    output,
		dialTries: defaultDialTries,
		dialWait:  defaultDialWait,
		logger:    zap.L().With(zap.String("package", packageName)),
	}
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func loadSigner(keyPath string) (ssh.Signer, error) {
	path, err := expandHome(keyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyRead, err)
	}
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyRead, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyParse, err)
	}
	return signer, nil
}

// connect dials host, retrying while sshd on a fresh instance comes up.
func (s *SSH) connect(ctx context.Context, host string) (*ssh.Client, error) {
	signer, err := loadSigner(s.keyPath)
	if err != nil {
		return nil, errors.New(errors.ErrRemote, "failed to load SSH identity",
			map[string]interface{}{
				"key_path": s.keyPath,
			}, err)
	}

	config := &ssh.ClientConfig{
		User:            s.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}
	addr := net.JoinHostPort(host, strconv.Itoa(s.port))

	var lastErr error
	for attempt := 1; attempt <= s.dialTries; attempt++ {
		client, err := dial(ctx, addr, config)
		if err == nil {
			return client, nil
		}
		lastErr = err
		s.logger.Debug("SSH dial failed",
			zap.String("operation", "connect"),
			zap.String("host", host),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == s.dialTries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.dialWait):
		}
	}

	return nil, errors.New(errors.ErrRemote, "failed to connect to host",
		map[string]interface{}{
			"host":     addr,
			"user":     s.user,
			"attempts": s.dialTries,
		}, fmt.Errorf("%w: %w", ErrSSHDial, lastErr))
}

func dial(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: config.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// wait blocks until fn returns or ctx is done, in which case the connection
// is torn down to unblock fn.
func wait(ctx context.Context, client *ssh.Client, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		client.Close()
		<-done
		return ctx.Err()
	}
}

// CopyFile uploads localPath to remotePath, keeping the permission bits.
// A relative remotePath is resolved against the remote user's home.
func (s *SSH) CopyFile(ctx context.Context, host, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return errors.New(errors.ErrRemote, "failed to open local file",
			map[string]interface{}{
				"local_path": localPath,
			}, err)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return errors.New(errors.ErrRemote, "failed to stat local file",
			map[string]interface{}{
				"local_path": localPath,
			}, err)
	}

	client, err := s.connect(ctx, host)
	if err != nil {
		return err
	}
	defer client.Close()

	err = wait(ctx, client, func() error {
		sftpc, err := sftp.NewClient(client)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSFTPInit, err)
		}
		defer sftpc.Close()

		dst, err := sftpc.Create(remotePath)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUpload, err)
		}
		defer dst.Close()
		if _, err := dst.ReadFrom(src); err != nil {
			return fmt.Errorf("%w: %w", ErrUpload, err)
		}
		if err := dst.Chmod(info.Mode().Perm()); err != nil {
			return fmt.Errorf("%w: %w", ErrUpload, err)
		}
		return nil
	})
	if err != nil {
		return errors.New(errors.ErrRemote, "failed to copy file to host",
			map[string]interface{}{
				"host":        host,
				"local_path":  localPath,
				"remote_path": remotePath,
			}, err)
	}

	s.logger.Info("Copied file to host",
		zap.String("operation", "copy_file"),
		zap.String("host", host),
		zap.String("remote_path", remotePath),
		zap.Int64("bytes", info.Size()),
	)
	return nil
}

// Run executes command on host, streaming its output. A command that exits
// nonzero yields an error wrapping ErrNonZeroExit.
func (s *SSH) Run(ctx context.Context, host, command string) error {
	client, err := s.connect(ctx, host)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return errors.New(errors.ErrRemote, "failed to open session",
			map[string]interface{}{
				"host": host,
			}, fmt.Errorf("%w: %w", ErrSessionInit, err))
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stdout = s.output
	session.Stderr = io.MultiWriter(s.output, &stderr)

	s.logger.Debug("Running remote command",
		zap.String("operation", "run"),
		zap.String("host", host),
		zap.String("command", command),
	)
	err = wait(ctx, client, func() error { return session.Run(command) })
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	ctxMap := map[string]interface{}{
		"host":    host,
		"command": command,
		"stderr":  stderr.String(),
	}
	var exitErr *ssh.ExitError
	if stderrors.As(err, &exitErr) {
		ctxMap["exit_status"] = exitErr.ExitStatus()
		return errors.New(errors.ErrRemote, "remote command failed", ctxMap,
			fmt.Errorf("%w: %w", ErrNonZeroExit, err))
	}
	return errors.New(errors.ErrRemote, "remote command failed", ctxMap,
		fmt.Errorf("%w: %w", ErrCMDExec, err))
}

// Shell attaches an interactive login shell on host to the given streams and
// returns when the remote shell exits.
func (s *SSH) Shell(ctx context.Context, host string, in io.Reader, out, errOut io.Writer) error {
	client, err := s.connect(ctx, host)
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return errors.New(errors.ErrRemote, "failed to open session",
			map[string]interface{}{
				"host": host,
			}, fmt.Errorf("%w: %w", ErrSessionInit, err))
	}
	defer session.Close()

	session.Stdout = out
	session.Stderr = errOut
	// Stdin is pumped outside the session so Wait does not block on a read
	// that only returns with the next keystroke.
	stdin, err := session.StdinPipe()
	if err != nil {
		return errors.New(errors.ErrRemote, "failed to open stdin",
			map[string]interface{}{
				"host": host,
			}, fmt.Errorf("%w: %w", ErrSessionInit, err))
	}
	go func() {
		_, _ = io.Copy(stdin, in)
		stdin.Close()
	}()

	// Input arrives line by line from a terminal that already echoes.
	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm", 40, 120, modes); err != nil {
		return errors.New(errors.ErrRemote, "failed to request terminal",
			map[string]interface{}{
				"host": host,
			}, err)
	}
	if err := session.Shell(); err != nil {
		return errors.New(errors.ErrRemote, "failed to start shell",
			map[string]interface{}{
				"host": host,
			}, fmt.Errorf("%w: %w", ErrCMDExec, err))
	}

	s.logger.Info("Entered interactive shell",
		zap.String("operation", "shell"),
		zap.String("host", host),
		zap.String("user", s.user),
	)
	err = wait(ctx, client, session.Wait)

	// The exit status of an interactive shell is that of the last command typed.
	var exitErr *ssh.ExitError
	if err == nil || stderrors.As(err, &exitErr) {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	return errors.New(errors.ErrRemote, "interactive shell failed",
		map[string]interface{}{
			"host": host,
		}, err)
}
