package composer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Microphone opens an audio capture. Open fails when the device is missing
// or access is denied.
type Microphone interface {
	Open(ctx context.Context) (Recording, error)
}

// Recording is one capture in progress. Stop returns the encoded clip;
// Cancel throws it away.
type Recording interface {
	Stop() ([]byte, error)
	Cancel()
}

// CommandMicrophone records by running an external encoder that writes a
// WebM/Opus stream to stdout, e.g.
//
//	ffmpeg -loglevel error -f pulse -i default -c:a libopus -f webm -
type CommandMicrophone struct {
	Command string
	Args    []string
	// StopTimeout bounds how long Stop waits for the encoder to flush.
	StopTimeout time.Duration
}

func DefaultMicrophone() *CommandMicrophone {
	return &CommandMicrophone{
		Command:     "ffmpeg",
		Args:        []string{"-loglevel", "error", "-f", "pulse", "-i", "default", "-c:a", "libopus", "-f", "webm", "-"},
		StopTimeout: 5 * time.Second,
	}
}

func (m *CommandMicrophone) Open(ctx context.Context) (Recording, error) {
	path, err := exec.LookPath(m.Command)
	if err != nil {
		return nil, fmt.Errorf("recorder %q not found: %w", m.Command, err)
	}
	cmd := exec.Command(path, m.Args...)
	r := &commandRecording{cmd: cmd, done: make(chan struct{}), timeout: m.StopTimeout}
	cmd.Stdout = &r.out
	cmd.Stderr = &r.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}
	go func() {
		r.waitErr = cmd.Wait()
		close(r.done)
	}()

	// An encoder that cannot open the device exits almost immediately.
	select {
	case <-r.done:
		return nil, fmt.Errorf("recorder exited: %s", r.stderrText())
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
		r.Cancel()
		return nil, ctx.Err()
	}
	return r, nil
}

type commandRecording struct {
	cmd     *exec.Cmd
	out     bytes.Buffer
	stderr  bytes.Buffer
	done    chan struct{}
	waitErr error
	timeout time.Duration
	once    sync.Once
}

func (r *commandRecording) stderrText() string {
	if s := bytes.TrimSpace(r.stderr.Bytes()); len(s) > 0 {
		return string(s)
	}
	return "no output"
}

func (r *commandRecording) Stop() ([]byte, error) {
	var stopErr error
	r.once.Do(func() {
		// ffmpeg finalizes the container on SIGINT.
		if err := r.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
			stopErr = fmt.Errorf("failed to stop recorder: %w", err)
			return
		}
		timeout := r.timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		select {
		case <-r.done:
		case <-time.After(timeout):
			_ = r.cmd.Process.Kill()
			<-r.done
			stopErr = errors.New("recorder did not stop in time")
		}
	})
	if stopErr != nil {
		return nil, stopErr
	}
	<-r.done
	if r.out.Len() == 0 {
		return nil, fmt.Errorf("recording is empty: %s", r.stderrText())
	}
	return r.out.Bytes(), nil
}

func (r *commandRecording) Cancel() {
	r.once.Do(func() {
		_ = r.cmd.Process.Kill()
		<-r.done
		r.out.Reset()
	})
}
