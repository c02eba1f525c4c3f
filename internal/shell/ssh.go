package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHSpawner starts the device shell on a remote host, typically the
// border router that holds the commissioning fabric.
type SSHSpawner struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration

	Path string
	Args []string
}

func (s SSHSpawner) String() string {
	return fmt.Sprintf("ssh://%s@%s %s", s.User, s.Host, joinCommand(s.Path, s.Args))
}

// Spawn dials the host, authenticates and starts the shell in a new
// session. Cancelling ctx at any point before the session starts tears
// the connection down, including mid-handshake.
func (s SSHSpawner) Spawn(ctx context.Context) (Process, error) {
	if strings.TrimSpace(s.Path) == "" {
		return nil, fmt.Errorf("%w: empty shell path", ErrNoSpawn)
	}
	target, err := s.resolve()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: s.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", target.addr)
	if err != nil {
		return nil, err
	}
	if s.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.Timeout))
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	proc, err := target.open(conn, joinCommand(s.Path, s.Args))
	if !stop() {
		if proc != nil {
			_ = proc.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return proc, nil
}

// sshTarget is a validated destination: where to connect and how to
// authenticate once there.
type sshTarget struct {
	addr   string
	config *ssh.ClientConfig
}

func (s SSHSpawner) resolve() (sshTarget, error) {
	host := strings.TrimSpace(s.Host)
	if host == "" {
		return sshTarget{}, fmt.Errorf("%w: ssh host is required", ErrNoSpawn)
	}
	addr := host
	switch {
	case s.Port != "":
		addr = net.JoinHostPort(host, s.Port)
	default:
		if _, _, err := net.SplitHostPort(host); err != nil {
			addr = net.JoinHostPort(host, "22")
		}
	}
	if s.User == "" {
		return sshTarget{}, fmt.Errorf("%w: ssh user is required", ErrNoSpawn)
	}

	auth, err := s.publicKeyAuth()
	if err != nil {
		return sshTarget{}, err
	}
	verify, err := s.hostKeys()
	if err != nil {
		return sshTarget{}, err
	}
	return sshTarget{
		addr: addr,
		config: &ssh.ClientConfig{
			User:            s.User,
			Auth:            []ssh.AuthMethod{auth},
			HostKeyCallback: verify,
			Timeout:         s.Timeout,
		},
	}, nil
}

func (s SSHSpawner) publicKeyAuth() (ssh.AuthMethod, error) {
	if s.KeyPath == "" {
		return nil, fmt.Errorf("%w: ssh key path is required", ErrNoSpawn)
	}
	pem, err := os.ReadFile(s.KeyPath)
	if err != nil {
		return nil, err
	}
	var key ssh.Signer
	if len(s.Passphrase) > 0 {
		key, err = ssh.ParsePrivateKeyWithPassphrase(pem, s.Passphrase)
	} else {
		key, err = ssh.ParsePrivateKey(pem)
	}
	if err != nil {
		return nil, fmt.Errorf("ssh key %s: %w", s.KeyPath, err)
	}
	return ssh.PublicKeys(key), nil
}

func (s SSHSpawner) hostKeys() (ssh.HostKeyCallback, error) {
	if s.InsecureSkipHostKeyChecking {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := strings.TrimSpace(s.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: known hosts path not set and home dir unavailable", ErrNoSpawn)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return knownhosts.New(path)
}

// open runs the handshake over conn and starts command in a fresh session.
// On failure everything opened so far is closed again.
func (t sshTarget) open(conn net.Conn, command string) (*sshProcess, error) {
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, t.addr, t.config)
	if err != nil {
		return nil, fmt.Errorf("ssh handshake with %s: %w", t.addr, err)
	}
	client := ssh.NewClient(clientConn, chans, reqs)

	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	proc := &sshProcess{client: client, session: session}
	if proc.stdin, err = session.StdinPipe(); err == nil {
		if proc.stdout, err = session.StdoutPipe(); err == nil {
			if proc.stderr, err = session.StderrPipe(); err == nil {
				err = session.Start(command)
			}
		}
	}
	if err != nil {
		_ = proc.Close()
		return nil, err
	}
	return proc, nil
}

type sshProcess struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  io.Reader
	killed  atomic.Bool
}

func (p *sshProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *sshProcess) Stdout() io.Reader     { return p.stdout }
func (p *sshProcess) Stderr() io.Reader     { return p.stderr }

func (p *sshProcess) Wait() (int, error) {
	defer p.Close()

	err := p.session.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Signal() != "" {
			return -1, nil
		}
		return exitErr.ExitStatus(), nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) || p.killed.Load() {
		return -1, nil
	}
	return -1, err
}

// Kill signals the remote shell and tears the session down so the local
// stream readers see EOF even when the server ignores the signal.
func (p *sshProcess) Kill() error {
	p.killed.Store(true)
	err := p.session.Signal(ssh.SIGKILL)
	_ = p.Close()
	return err
}

func (p *sshProcess) Close() error {
	_ = p.session.Close()
	return p.client.Close()
}
