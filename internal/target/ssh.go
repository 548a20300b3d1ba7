package target

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"go.crosstest.dev/harness/errors"
	"go.crosstest.dev/harness/shellquote"
)

const (
	defaultSSHUser = "root"
	defaultSSHPort = 22
)

var targetRegexp = regexp.MustCompile(`^([^@]+@)?([^:@]+)(:\d+)?$`)

// SSHOptions configures an SSH connection.
type SSHOptions struct {
	User     string
	Hostname string
	Port     int

	KeyFile string

	ConnectTimeout time.Duration
}

// ParseSSHTarget parses "[user@]host[:port]" into o, applying defaults.
func ParseSSHTarget(target string, o *SSHOptions) error {
	m := targetRegexp.FindStringSubmatch(target)
	if m == nil {
		return errors.Errorf("couldn't parse %q as [user@]hostname[:port]", target)
	}
	o.User = defaultSSHUser
	if m[1] != "" {
		o.User = m[1][:len(m[1])-1]
	}
	o.Hostname = m[2]
	o.Port = defaultSSHPort
	if m[3] != "" {
		p, err := strconv.Atoi(m[3][1:])
		if err != nil || p <= 0 || p > 65535 {
			return errors.Errorf("invalid port %q", m[3][1:])
		}
		o.Port = p
	}
	return nil
}

func authMethods(o *SSHOptions) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if o.KeyFile != "" {
		key, err := os.ReadFile(o.KeyFile)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read private key %s", o.KeyFile)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse private key %s", o.KeyFile)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	return methods, nil
}

// SSH is a Target backed by a persistent SSH connection to a remote shell.
type SSH struct {
	client *ssh.Client
}

var _ Target = (*SSH)(nil)

// DialSSH establishes a connection described by o.
func DialSSH(ctx context.Context, o *SSHOptions) (*SSH, error) {
	if o.Port == 0 {
		o.Port = defaultSSHPort
	}
	if o.User == "" {
		o.User = defaultSSHUser
	}
	methods, err := authMethods(o)
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User:            o.User,
		Auth:            methods,
		Timeout:         o.ConnectTimeout,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	addr := fmt.Sprintf("%s:%d", o.Hostname, o.Port)
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", addr)
	}
	return &SSH{client: client}, nil
}

func (s *SSH) run(ctx context.Context, args []string) ([]byte, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SSH session")
	}
	defer sess.Close()

	line := shellquote.EscapeSlice(args)
	var out bytes.Buffer
	sess.Stdout = &out
	sess.Stderr = &out
	if err := sess.Run(line); err != nil {
		return out.Bytes(), errors.Wrapf(err, "remote command %v failed", args)
	}
	return out.Bytes(), nil
}

func (s *SSH) PrepareProcess(prefixArgs []string, workDir string) []string {
	line := shellquote.EscapeSlice(prefixArgs)
	if workDir != "" {
		line = fmt.Sprintf("cd %s && %s", shellquote.Escape(workDir), line)
	}
	return []string{"sh", "-c", line}
}

type sshProcess struct {
	sess   *ssh.Session
	stdout io.Reader
}

func (p *sshProcess) Stdout() io.Reader { return p.stdout }
func (p *sshProcess) Wait() error       { return p.sess.Wait() }
func (p *sshProcess) Kill() error       { return p.sess.Signal(ssh.SIGKILL) }

func (s *SSH) StartProcess(ctx context.Context, args []string, workDir string) (Process, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SSH session")
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, errors.Wrap(err, "failed to open stdout pipe")
	}
	line := shellquote.EscapeSlice(args)
	if workDir != "" {
		line = fmt.Sprintf("cd %s && %s", shellquote.Escape(workDir), line)
	}
	if err := sess.Start(line); err != nil {
		sess.Close()
		return nil, errors.Wrapf(err, "failed to start remote command %v", args)
	}
	return &sshProcess{sess: sess, stdout: stdout}, nil
}

func (s *SSH) RunCommand(ctx context.Context, args []string, workDir string) ([]byte, error) {
	line := shellquote.EscapeSlice(args)
	if workDir != "" {
		line = fmt.Sprintf("cd %s && %s", shellquote.Escape(workDir), line)
	}
	return s.run(ctx, []string{"sh", "-c", line})
}

// PushFile streams local's bytes to remote by piping them into a remote
// "cat > file" shell command over stdin; no sftp dependency is carried,
// since an SSH session alone is enough to move a file.
func (s *SSH) PushFile(ctx context.Context, local, remote string) error {
	data, err := os.ReadFile(local)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", local)
	}
	sess, err := s.client.NewSession()
	if err != nil {
		return errors.Wrap(err, "failed to open SSH session")
	}
	defer sess.Close()
	sess.Stdin = bytes.NewReader(data)
	dir := parentDir(remote)
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s", shellquote.Escape(dir), shellquote.Escape(remote))
	if err := sess.Run(cmd); err != nil {
		return errors.Wrapf(err, "failed to push %s to %s", local, remote)
	}
	return nil
}

// PullFile reads remote via "cat" and writes it to local.
func (s *SSH) PullFile(ctx context.Context, remote, local string) error {
	out, err := s.run(ctx, []string{"cat", remote})
	if err != nil {
		return errors.Wrapf(err, "failed to pull %s", remote)
	}
	if err := os.MkdirAll(parentDir(local), 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", parentDir(local))
	}
	if err := os.WriteFile(local, out, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", local)
	}
	return nil
}

func (s *SSH) ListDir(ctx context.Context, dir string) ([]string, error) {
	out, err := s.run(ctx, []string{"ls", "-1A", dir})
	if err != nil {
		if bytes.Contains(out, []byte("No such file or directory")) {
			return nil, ErrNotExist
		}
		return nil, err
	}
	var names []string
	for _, line := range splitLines(string(out)) {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func (s *SSH) MakeDirs(ctx context.Context, dir string) error {
	if _, err := s.run(ctx, []string{"mkdir", "-p", dir}); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}
	return nil
}

func (s *SSH) Remove(ctx context.Context, path string) error {
	if _, err := s.run(ctx, []string{"rm", "-rf", path}); err != nil {
		return errors.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}

func (s *SSH) Move(ctx context.Context, src, dst string) error {
	if _, err := s.run(ctx, []string{"mv", src, dst}); err != nil {
		return errors.Wrapf(err, "failed to move %s to %s", src, dst)
	}
	return nil
}

func (s *SSH) Copy(ctx context.Context, src, dst string) error {
	if _, err := s.run(ctx, []string{"cp", "-r", src, dst}); err != nil {
		return errors.Wrapf(err, "failed to copy %s to %s", src, dst)
	}
	return nil
}

func (s *SSH) AwaitReady(ctx context.Context, probePath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := s.run(ctx, []string{"test", "-e", probePath}); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("timed out waiting for %s", probePath)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// ForwardPort opens a local listener that forwards connections to the same
// port on the remote host: an accept loop dialing out over the SSH
// connection per incoming connection.
func (s *SSH) ForwardPort(ctx context.Context, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return errors.Wrapf(err, "failed to listen on port %d", port)
	}
	go func() {
		for {
			local, err := ln.Accept()
			if err != nil {
				return
			}
			remote, err := s.client.Dial("tcp", fmt.Sprintf("localhost:%d", port))
			if err != nil {
				local.Close()
				continue
			}
			go pipeAndClose(local, remote)
			go pipeAndClose(remote, local)
		}
	}()
	return nil
}

func pipeAndClose(dst io.WriteCloser, src io.Reader) {
	io.Copy(dst, src)
	dst.Close()
}

func (s *SSH) Close() error {
	return s.client.Close()
}

func parentDir(path string) string {
	i := bytes.LastIndexByte([]byte(path), '/')
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
