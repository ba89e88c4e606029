package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig reaches a device attached to a remote host. The remote command
// must bridge its stdin/stdout to the device, e.g.
// `socat - /dev/ttyACM0,raw,echo=0,b115200`.
type SSHConfig struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
	Command                     string
	Args                        []string
	Retry                       BackoffConfig
}

// SSH is a Channel over the stdio of a remote bridge process.
type SSH struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser

	mu      sync.Mutex
	pending []byte
	readErr error

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

var _ Conn = (*SSH)(nil)

func DialSSH(cfg SSHConfig) (*SSH, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("%w: ssh bridge command", ErrMissingEndpoint)
	}
	client, err := retryDial(cfg.Retry, cfg.Host, cfg.dial)
	if err != nil {
		return nil, fmt.Errorf("transport: ssh dial: %w", err)
	}
	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("transport: ssh session: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, err
	}
	command := joinCommand(cfg.Command, cfg.Args)
	if err := session.Start(command); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("transport: ssh start %q: %w", command, err)
	}

	s := &SSH{
		client:  client,
		session: session,
		stdin:   stdin,
		done:    make(chan struct{}),
	}
	go s.pump(stdout)
	log.Debug().Str("host", cfg.Host).Str("command", command).Msg("transport.SSH.dial connected")
	return s, nil
}

func (s *SSH) pump(r io.Reader) {
	defer close(s.done)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.pending = append(s.pending, buf[:n]...)
			s.mu.Unlock()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrClosed
			}
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
	}
}

// TryRead drains bytes already pumped from the remote side. A read error is
// reported only after buffered bytes are consumed.
func (s *SSH) TryRead() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) > 0 {
		out := s.pending
		s.pending = nil
		return out, nil
	}
	return nil, s.readErr
}

func (s *SSH) Write(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeAll(s.stdin, p)
}

func (s *SSH) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()
		_ = s.session.Close()
		err = s.client.Close()
		<-s.done
	})
	return err
}

func (cfg SSHConfig) dial() (*ssh.Client, error) {
	address, err := cfg.address()
	if err != nil {
		return nil, err
	}

	config, err := cfg.clientConfig()
	if err != nil {
		return nil, err
	}

	if cfg.Timeout <= 0 {
		return ssh.Dial("tcp", address, config)
	}

	conn, err := net.DialTimeout("tcp", address, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (cfg SSHConfig) address() (string, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return "", fmt.Errorf("%w: ssh host", ErrMissingEndpoint)
	}

	if cfg.Port != "" {
		return net.JoinHostPort(host, cfg.Port), nil
	}

	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}

	return net.JoinHostPort(host, "22"), nil
}

func (cfg SSHConfig) clientConfig() (*ssh.ClientConfig, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("ssh user is required")
	}

	signer, err := cfg.signer()
	if err != nil {
		return nil, err
	}

	var hostKeyCallback ssh.HostKeyCallback
	if cfg.InsecureSkipHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		callback, err := cfg.knownHostsCallback()
		if err != nil {
			return nil, err
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	}, nil
}

func (cfg SSHConfig) signer() (ssh.Signer, error) {
	if cfg.KeyPath == "" {
		return nil, fmt.Errorf("ssh key path is required")
	}

	privateKey, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	if len(cfg.Passphrase) > 0 {
		return ssh.ParsePrivateKeyWithPassphrase(privateKey, cfg.Passphrase)
	}

	return ssh.ParsePrivateKey(privateKey)
}

func (cfg SSHConfig) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(cfg.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("known hosts path not set and home dir unavailable")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	return knownhosts.New(path)
}

func joinCommand(cmd string, args []string) string {
	if len(args) == 0 {
		return cmd
	}

	var builder strings.Builder
	builder.WriteString(cmd)
	for _, arg := range args {
		builder.WriteByte(' ')
		builder.WriteString(shellEscape(arg))
	}

	return builder.String()
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}

	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
