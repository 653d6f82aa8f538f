package shell

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHConfig holds the connection settings for the remote host.
type SSHConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	KeyFile  string
	Timeout  time.Duration
}

// SSH is a Transport backed by an interactive PTY session over SSH.
// A background reader drains session output into an internal buffer
// that ReadAvailable consumes.
type SSH struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser

	mu        sync.Mutex
	buf       []byte
	connected bool
}

// DialSSH connects to the remote host and starts an interactive shell
// with a PTY.
func DialSSH(cfg SSHConfig) (*SSH, error) {
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
		auth = append(auth, ssh.KeyboardInteractive(
			func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = cfg.Password
				}
				return answers, nil
			}))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("ssh: no authentication method configured")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ssh session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm-256color", 40, 120, modes); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	s := &SSH{
		client:    client,
		session:   session,
		stdin:     stdin,
		connected: true,
	}
	go s.pump(stdout)
	go s.pump(stderr)

	log.Printf("[ssh] connected to %s as %s", addr, cfg.User)
	return s, nil
}

// pump copies session output into the drain buffer until EOF.
func (s *SSH) pump(r io.Reader) {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf = append(s.buf, chunk[:n]...)
			s.mu.Unlock()
		}
		if err != nil {
			s.mu.Lock()
			s.connected = false
			s.mu.Unlock()
			if err != io.EOF {
				log.Printf("[ssh] read: %v", err)
			}
			return
		}
	}
}

// Send writes raw bytes to the remote shell.
func (s *SSH) Send(data string) error {
	s.mu.Lock()
	ok := s.connected
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("ssh: not connected")
	}
	if _, err := io.WriteString(s.stdin, data); err != nil {
		return fmt.Errorf("ssh write: %w", err)
	}
	return nil
}

// ReadAvailable drains the output buffer and returns it with control
// codes stripped. It never blocks.
func (s *SSH) ReadAvailable() string {
	s.mu.Lock()
	data := s.buf
	s.buf = nil
	s.mu.Unlock()
	if len(data) == 0 {
		return ""
	}
	return StripControlCodes(string(data))
}

// Connected reports whether the session is still usable.
func (s *SSH) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Close tears down the session and connection.
func (s *SSH) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.session.Close()
	return s.client.Close()
}
