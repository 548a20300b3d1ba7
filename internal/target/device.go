package target

import (
	"context"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/electricbubble/gadb"

	"go.crosstest.dev/harness/errors"
	"go.crosstest.dev/harness/shellquote"
)

// Device is a Target backed by an Android device reached over ADB via the
// gadb client library. Unlike SSH, a Device has no working-directory
// concept in its shell invocations; workDir is folded into the argv as a
// "cd" prefix, same as for SSH.
type Device struct {
	dev *gadb.Device
}

var _ Target = (*Device)(nil)

// DialDevice connects to the ADB server at host:port and returns the first
// attached device.
func DialDevice(ctx context.Context, host string, port int) (*Device, error) {
	client, err := gadb.NewClient()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to adb server")
	}
	if err := client.Connect(host, port); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to adb server at %s:%d", host, port)
	}
	devices, err := client.DeviceList()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list adb devices")
	}
	if len(devices) == 0 {
		return nil, errors.New("no adb devices attached")
	}
	return &Device{dev: &devices[0]}, nil
}

func (d *Device) shellLine(args []string, workDir string) string {
	line := shellquote.EscapeSlice(args)
	if workDir != "" {
		line = "cd " + shellquote.Escape(workDir) + " && " + line
	}
	return line
}

func (d *Device) PrepareProcess(prefixArgs []string, workDir string) []string {
	return []string{"sh", "-c", d.shellLine(prefixArgs, workDir)}
}

func (d *Device) StartProcess(ctx context.Context, args []string, workDir string) (Process, error) {
	out, err := d.dev.RunShellCommand(d.shellLine(args, workDir))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to run %v on device", args)
	}
	return &finishedProcess{stdout: strings.NewReader(out)}, nil
}

// finishedProcess adapts gadb's synchronous shell command result (gadb
// exposes no streaming/async shell execution) to the Process interface: the
// command has already completed by the time StartProcess returns.
type finishedProcess struct {
	stdout io.Reader
}

func (p *finishedProcess) Stdout() io.Reader { return p.stdout }
func (p *finishedProcess) Wait() error       { return nil }
func (p *finishedProcess) Kill() error       { return nil }

func (d *Device) RunCommand(ctx context.Context, args []string, workDir string) ([]byte, error) {
	out, err := d.dev.RunShellCommand(d.shellLine(args, workDir))
	if err != nil {
		return []byte(out), errors.Wrapf(err, "command %v failed on device", args)
	}
	return []byte(out), nil
}

func (d *Device) PushFile(ctx context.Context, local, remote string) error {
	f, err := os.Open(local)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", local)
	}
	defer f.Close()

	dir := path.Dir(remote)
	if err := d.MakeDirs(ctx, dir); err != nil {
		return err
	}
	if err := d.dev.Push(f, remote, time.Now()); err != nil {
		return errors.Wrapf(err, "failed to push %s to device:%s", local, remote)
	}
	return nil
}

func (d *Device) PullFile(ctx context.Context, remote, local string) error {
	if err := os.MkdirAll(path.Dir(local), 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", path.Dir(local))
	}
	out, err := os.Create(local)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", local)
	}
	defer out.Close()
	if err := d.dev.Pull(remote, out); err != nil {
		return errors.Wrapf(err, "failed to pull device:%s to %s", remote, local)
	}
	return nil
}

func (d *Device) ListDir(ctx context.Context, dir string) ([]string, error) {
	out, err := d.dev.RunShellCommand("ls -1A " + shellquote.Escape(dir))
	if err != nil || strings.Contains(out, "No such file or directory") {
		return nil, ErrNotExist
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// MakeDirs creates dir and all of its ancestors on the device, consulting
// and updating the process-wide deviceMkdirCache so that repeated pushes
// into the same directory during a run don't each pay for a shell
// round-trip, per spec.
func (d *Device) MakeDirs(ctx context.Context, dir string) error {
	if deviceMkdirCache.has(dir) {
		return nil
	}
	if parent := path.Dir(dir); parent != dir && parent != "/" && parent != "." {
		if err := d.MakeDirs(ctx, parent); err != nil {
			return err
		}
	}
	if _, err := d.dev.RunShellCommand("mkdir " + shellquote.Escape(dir)); err != nil {
		return errors.Wrapf(err, "failed to create device:%s", dir)
	}
	deviceMkdirCache.mark(dir)
	return nil
}

func (d *Device) Remove(ctx context.Context, remotePath string) error {
	if _, err := d.dev.RunShellCommand("rm -rf " + shellquote.Escape(remotePath)); err != nil {
		return errors.Wrapf(err, "failed to remove device:%s", remotePath)
	}
	return nil
}

func (d *Device) Move(ctx context.Context, src, dst string) error {
	if _, err := d.dev.RunShellCommand("mv " + shellquote.Escape(src) + " " + shellquote.Escape(dst)); err != nil {
		return errors.Wrapf(err, "failed to move device:%s to device:%s", src, dst)
	}
	return nil
}

func (d *Device) Copy(ctx context.Context, src, dst string) error {
	if _, err := d.dev.RunShellCommand("cp -r " + shellquote.Escape(src) + " " + shellquote.Escape(dst)); err != nil {
		return errors.Wrapf(err, "failed to copy device:%s to device:%s", src, dst)
	}
	return nil
}

func (d *Device) AwaitReady(ctx context.Context, probePath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if out, err := d.dev.RunShellCommand("test -e " + shellquote.Escape(probePath) + " && echo ok"); err == nil && strings.TrimSpace(out) == "ok" {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("timed out waiting for device:%s", probePath)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// ForwardPort asks the ADB server to forward the host port to the same
// port on the device, the device-side analogue of SSH.ForwardPort.
func (d *Device) ForwardPort(ctx context.Context, port int) error {
	if err := d.dev.Forward(port, port); err != nil {
		return errors.Wrapf(err, "failed to forward port %d", port)
	}
	return nil
}

func (d *Device) Close() error {
	return nil
}
