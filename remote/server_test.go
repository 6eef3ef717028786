package remote

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// testServer is an in-process SSH server that answers exec, shell and sftp
// requests. Commands starting with "./" that mention "fail" exit 3.
type testServer struct {
	host string
	port int

	mu       sync.Mutex
	commands []string
}

// newTestServer starts a server accepting only the key it writes to the
// returned path.
func newTestServer(t *testing.T) (*testServer, string) {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	userPub, userPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	authorized, err := ssh.NewPublicKey(userPub)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(userPriv, "netbench-test")
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600))

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("public key is not authorized")
		},
	}
	config.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	addr := listener.Addr().(*net.TCPAddr)
	s := &testServer{host: addr.IP.String(), port: addr.Port}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go s.handleConn(conn, config)
		}
	}()
	return s, keyPath
}

func (s *testServer) ran() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *testServer) handleConn(conn net.Conn, config *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			return
		}
		go s.handleSession(channel, requests)
	}
}

func exitStatus(code uint32) []byte {
	return ssh.Marshal(struct{ Status uint32 }{code})
}

func (s *testServer) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				return
			}
			req.Reply(true, nil)

			s.mu.Lock()
			s.commands = append(s.commands, payload.Command)
			s.mu.Unlock()

			if strings.HasPrefix(payload.Command, "./") && strings.Contains(payload.Command, "fail") {
				fmt.Fprintln(channel.Stderr(), "setup failed")
				channel.SendRequest("exit-status", false, exitStatus(3))
				return
			}
			fmt.Fprintf(channel, "ran %s\n", payload.Command)
			channel.SendRequest("exit-status", false, exitStatus(0))
			return
		case "pty-req":
			req.Reply(true, nil)
		case "shell":
			req.Reply(true, nil)
			io.Copy(channel, channel)
			channel.SendRequest("exit-status", false, exitStatus(0))
			return
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			server, err := sftp.NewServer(channel)
			if err != nil {
				return
			}
			server.Serve()
			return
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// syncBuffer is a bytes.Buffer safe for the concurrent stdout and stderr
// copies of an SSH session.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
